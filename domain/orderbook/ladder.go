package orderbook

import "matchbook/infra/memory"

// Ladder indexes one side's price levels. Bids rank highest price
// first, asks lowest price first.
type Ladder interface {
	// Level returns the level at price, creating an empty one on first access.
	Level(price int64) *PriceLevel
	// Find returns the level at price, or nil if no level is present.
	Find(price int64) *PriceLevel
	// RemoveIfEmpty drops the level at price if it holds no orders and
	// re-derives the best price when that level was the best.
	RemoveIfEmpty(price int64) bool
	// Best returns the level at the best price, or nil if the ladder is empty.
	Best() *PriceLevel
	// BestPrice returns the best price, or NoPrice if the ladder is empty.
	BestPrice() int64
	// Len returns the number of present levels.
	Len() int
	// Walk visits levels best to worst until fn returns false.
	Walk(fn func(*PriceLevel) bool)
	// InDomain reports whether price can be stored in this ladder.
	InDomain(price int64) bool
}

// better reports whether a has priority over b on side s.
func better(s Side, a, b int64) bool {
	if s == Buy {
		return a > b
	}
	return a < b
}

// NewLadder picks the bounded array ladder when maxPrice > 0 and the
// unbounded tree ladder otherwise.
func NewLadder(side Side, maxPrice int64, orders *memory.Slab[Order]) Ladder {
	if maxPrice > 0 {
		return NewArrayLadder(side, maxPrice, orders)
	}
	return NewTreeLadder(side, orders)
}
