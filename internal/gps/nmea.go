package gps

import (
	"math"
	"time"

	nmea "github.com/adrianmo/go-nmea"

	"navcore/internal/geo"
)

// receiverState accumulates RMC and GGA into one fix.
type receiverState struct {
	pos      geo.Position
	posValid bool
	fixAt    time.Time
	fixUTC   string

	quality   string
	sats      int
	satsKnown bool
	hdop      float64
	hdopKnown bool

	sentences uint64
}

// apply folds one parsed sentence into the state. It reports whether the
// sentence was one the receiver cares about.
func (st *receiverState) apply(now time.Time, s nmea.Sentence) bool {
	switch m := s.(type) {
	case nmea.RMC:
		st.sentences++
		if m.Validity != nmea.ValidRMC {
			st.posValid = false
			return true
		}
		st.setPosition(now, m.Latitude, m.Longitude, m.Time)
		return true
	case nmea.GGA:
		st.sentences++
		st.quality = m.FixQuality
		if m.FixQuality == nmea.Invalid || m.FixQuality == "" {
			st.posValid = false
			st.satsKnown = false
			st.hdopKnown = false
			return true
		}
		st.sats = int(m.NumSatellites)
		st.satsKnown = true
		st.hdop = m.HDOP
		st.hdopKnown = m.HDOP > 0
		st.setPosition(now, m.Latitude, m.Longitude, m.Time)
		return true
	}
	return false
}

func (st *receiverState) setPosition(now time.Time, lat, lon float64, t nmea.Time) {
	st.pos = geo.FromDegrees(lat, lon)
	st.posValid = true
	st.fixAt = now
	if t.Valid {
		st.fixUTC = t.String()
	}
}

// complete reports whether every field needed for guidance is known.
func (st *receiverState) complete() bool {
	return st.posValid && st.satsKnown && st.hdopKnown
}

// position returns the fix aged against now, or the invalid sentinel when any
// component is missing.
func (st *receiverState) position(now time.Time) geo.Position {
	if !st.complete() {
		return geo.Invalid()
	}
	p := st.pos
	age := now.Sub(st.fixAt).Milliseconds()
	switch {
	case age < 0:
		p.Age = 0
	case age >= int64(geo.InvalidAge):
		p.Age = geo.InvalidAge - 1
	default:
		p.Age = uint32(age)
	}
	return p
}

func (st *receiverState) snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Enabled:    true,
		Valid:      st.complete(),
		FixQuality: st.quality,
		LastFixUTC: st.fixUTC,
		Sentences:  st.sentences,
	}
	if st.posValid {
		snap.Position = st.pos
		snap.LatDeg, snap.LonDeg = st.pos.Degrees()
		snap.FixAgeSec = math.Max(0, now.Sub(st.fixAt).Seconds())
	} else {
		snap.Position = geo.Invalid()
	}
	if st.satsKnown {
		n := st.sats
		snap.Satellites = &n
	}
	if st.hdopKnown {
		h := st.hdop
		snap.HDOP = &h
	}
	return snap
}
