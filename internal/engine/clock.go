package engine

import "sync/atomic"

// Clock numbers collections within a run.
//
// Every collection the engine visits, skipped ones included, gets the next
// value, so the run journal lists collections in the order they were
// processed regardless of their outcome.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// although the engine drives it from a single goroutine.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
