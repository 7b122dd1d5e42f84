package path

import (
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"unsafe"

	"navcore/internal/geo"
)

// PointSize is the storage cost of one route point.
const PointSize = int(unsafe.Sizeof(geo.Position{}))

// DefaultSafetyMargin is held back from the budget for everything else.
const DefaultSafetyMargin = 256

// MemoryBudget reports how many bytes a route may occupy.
type MemoryBudget interface {
	AvailableBytes() int
}

// StaticBudget is a fixed byte count.
type StaticBudget int

func (b StaticBudget) AvailableBytes() int { return int(b) }

// RuntimeBudget derives the budget from the Go heap: the lower of Ceiling and
// the runtime soft memory limit, minus what the heap already holds. With
// neither set it reports MaxInt32.
type RuntimeBudget struct {
	Ceiling int
}

var readMemStats = runtime.ReadMemStats

func (b RuntimeBudget) AvailableBytes() int {
	limit := int64(b.Ceiling)
	if soft := debug.SetMemoryLimit(-1); soft != math.MaxInt64 && (limit <= 0 || soft < limit) {
		limit = soft
	}
	if limit <= 0 {
		return math.MaxInt32
	}
	var ms runtime.MemStats
	readMemStats(&ms)
	avail := limit - int64(ms.HeapAlloc)
	switch {
	case avail < 0:
		return 0
	case avail > math.MaxInt32:
		return math.MaxInt32
	}
	return int(avail)
}

// MaxPoints is the largest route the budget admits after the margin.
func MaxPoints(b MemoryBudget, margin int) int {
	return (b.AvailableBytes() - margin) / PointSize
}

// Allocator provides route storage. It may refuse.
type Allocator interface {
	Allocate(n int) ([]geo.Position, error)
}

// HeapAllocator allocates from the Go heap, refusing anything above Limit
// points when Limit is set.
type HeapAllocator struct {
	Limit int
}

func (a HeapAllocator) Allocate(n int) ([]geo.Position, error) {
	if n < 0 || (a.Limit > 0 && n > a.Limit) {
		return nil, fmt.Errorf("refused %d points", n)
	}
	return make([]geo.Position, n), nil
}
