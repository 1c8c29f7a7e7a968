package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing identifiers starting at
// start+1. The zero value is ready to use and starts at 1.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer whose first Next() returns start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next identifier.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued identifier (0 if none).
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Observe raises the sequencer so that Next never returns a value
// <= v. Used after replaying a journal or restoring a snapshot.
func (s *Sequencer) Observe(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Reset forces the last issued identifier to v.
func (s *Sequencer) Reset(v uint64) {
	s.last.Store(v)
}
