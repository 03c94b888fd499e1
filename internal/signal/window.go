package signal

import (
	"math"
	"time"

	"polymarket-meanrev/pkg/types"
)

// Window is a bounded FIFO of snapshots for one market. It owns its
// entries exclusively: observations are appended by the generator and
// evicted oldest-first once capacity is reached. Timestamps must be
// strictly increasing; duplicates and out-of-order arrivals are refused
// without disturbing the existing history.
type Window struct {
	capacity int
	snaps    []types.MarketSnapshot
}

// NewWindow creates a rolling window holding at most capacity snapshots.
func NewWindow(capacity int) *Window {
	return &Window{
		capacity: capacity,
		snaps:    make([]types.MarketSnapshot, 0, capacity),
	}
}

// Add appends a snapshot. Returns false if the timestamp is not strictly
// after the newest entry (duplicate or out-of-order observation).
func (w *Window) Add(snap types.MarketSnapshot) bool {
	if n := len(w.snaps); n > 0 && !snap.Timestamp.After(w.snaps[n-1].Timestamp) {
		return false
	}
	if len(w.snaps) == w.capacity {
		copy(w.snaps, w.snaps[1:])
		w.snaps = w.snaps[:w.capacity-1]
	}
	w.snaps = append(w.snaps, snap)
	return true
}

// Len returns the number of snapshots currently held.
func (w *Window) Len() int { return len(w.snaps) }

// Last returns the newest snapshot and whether one exists.
func (w *Window) Last() (types.MarketSnapshot, bool) {
	if len(w.snaps) == 0 {
		return types.MarketSnapshot{}, false
	}
	return w.snaps[len(w.snaps)-1], true
}

// Mean returns the trailing mean of mid prices over the window.
func (w *Window) Mean() float64 {
	if len(w.snaps) == 0 {
		return 0
	}
	var sum float64
	for _, s := range w.snaps {
		sum += s.MidPrice
	}
	return sum / float64(len(w.snaps))
}

// Stddev returns the sample standard deviation of mid prices.
// Returns 0 for fewer than two observations.
func (w *Window) Stddev() float64 {
	n := len(w.snaps)
	if n < 2 {
		return 0
	}
	mean := w.Mean()
	var ss float64
	for _, s := range w.snaps {
		d := s.MidPrice - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Span returns the time covered by the window, zero if under two entries.
func (w *Window) Span() time.Duration {
	if len(w.snaps) < 2 {
		return 0
	}
	return w.snaps[len(w.snaps)-1].Timestamp.Sub(w.snaps[0].Timestamp)
}
