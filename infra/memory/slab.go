package memory

import (
	"errors"

	"github.com/bits-and-blooms/bitset"
)

// Handle addresses one slot of a Slab.
type Handle int32

// NilHandle never names an allocated slot.
const NilHandle Handle = -1

var (
	ErrSlabExhausted = errors.New("memory: slab exhausted")
	ErrDoubleFree    = errors.New("memory: slot already free")
	ErrInvalidHandle = errors.New("memory: handle out of range")
)

// Slab is a fixed-capacity stack pool of T records.
// It is NOT safe for concurrent use; the owner serializes access.
type Slab[T any] struct {
	slots []T
	free  []Handle
	live  *bitset.BitSet
}

// NewSlab preallocates capacity zeroed slots.
func NewSlab[T any](capacity int) *Slab[T] {
	if capacity <= 0 {
		panic("memory.NewSlab: capacity must be positive")
	}
	s := &Slab[T]{
		slots: make([]T, capacity),
		free:  make([]Handle, capacity),
		live:  bitset.New(uint(capacity)),
	}
	// Lowest index on top of the stack.
	for i := 0; i < capacity; i++ {
		s.free[i] = Handle(capacity - 1 - i)
	}
	return s
}

// Allocate pops a free slot and returns it zero-initialized.
func (s *Slab[T]) Allocate() (Handle, error) {
	n := len(s.free)
	if n == 0 {
		return NilHandle, ErrSlabExhausted
	}
	h := s.free[n-1]
	s.free = s.free[:n-1]
	var zero T
	s.slots[h] = zero
	s.live.Set(uint(h))
	return h, nil
}

// Free returns h to the pool. Freeing a slot twice or a handle
// outside the slab is rejected and leaves the free stack untouched.
func (s *Slab[T]) Free(h Handle) error {
	if !s.inRange(h) {
		return ErrInvalidHandle
	}
	if !s.live.Test(uint(h)) {
		return ErrDoubleFree
	}
	s.live.Clear(uint(h))
	s.free = append(s.free, h)
	return nil
}

// At returns the record stored at h. The pointer is stable for the
// lifetime of the slab but its contents are reused once h is freed.
func (s *Slab[T]) At(h Handle) *T {
	return &s.slots[h]
}

// Live reports whether h is currently allocated.
func (s *Slab[T]) Live(h Handle) bool {
	return s.inRange(h) && s.live.Test(uint(h))
}

// Cap returns the fixed capacity.
func (s *Slab[T]) Cap() int { return len(s.slots) }

// Len returns the number of allocated slots.
func (s *Slab[T]) Len() int { return len(s.slots) - len(s.free) }

// Available returns how many more slots can be allocated.
func (s *Slab[T]) Available() int { return len(s.free) }

// Each visits allocated slots in index order until fn returns false.
func (s *Slab[T]) Each(fn func(Handle, *T) bool) {
	for i, ok := s.live.NextSet(0); ok; i, ok = s.live.NextSet(i + 1) {
		if !fn(Handle(i), &s.slots[i]) {
			return
		}
	}
}

func (s *Slab[T]) inRange(h Handle) bool {
	return h >= 0 && int(h) < len(s.slots)
}
