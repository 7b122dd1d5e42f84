package fix

// Mailbox is a single-slot channel where a newer post replaces an unread one.
// It carries state from the tick goroutine to the main loop.
type Mailbox[T any] struct {
	ch chan T
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, 1)}
}

// Post never blocks. Only one goroutine may post.
func (m *Mailbox[T]) Post(v T) {
	for {
		select {
		case m.ch <- v:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// Take returns the pending value, if any.
func (m *Mailbox[T]) Take() (T, bool) {
	select {
	case v := <-m.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
