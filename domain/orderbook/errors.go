package orderbook

import "errors"

var (
	// ErrCapacityExhausted means the slab has no free slot. The order
	// was rejected before any state changed.
	ErrCapacityExhausted = errors.New("orderbook: capacity exhausted")

	// ErrInvalidOrder covers non-positive price or shares, an unknown
	// side, or a price outside the bounded ladder's domain.
	ErrInvalidOrder = errors.New("orderbook: invalid order")

	// ErrOrderNotResting is returned when the target of a cancel or
	// reduction already filled, was canceled, or never existed.
	ErrOrderNotResting = errors.New("orderbook: order not resting")

	// ErrInvariantViolation is a programming error: an empty level in a
	// ladder, a best price naming an absent level, or broken links.
	ErrInvariantViolation = errors.New("orderbook: invariant violation")
)
