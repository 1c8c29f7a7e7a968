package orderbook

import (
	"github.com/bits-and-blooms/bitset"

	"matchbook/infra/memory"
)

// ArrayLadder is the bounded-domain ladder: the price is an index into
// a preallocated slice of levels. Slots may hold stale empty levels;
// presence is tracked only by the occupied bitset.
//
// Bits are stored by priority rank (asks: price, bids: maxTick-price)
// so the next best price is always the next set bit.
type ArrayLadder struct {
	side     Side
	maxTick  int64
	levels   []PriceLevel
	occupied *bitset.BitSet
	best     int64
	count    int
	orders   *memory.Slab[Order]
}

func NewArrayLadder(side Side, maxTick int64, orders *memory.Slab[Order]) *ArrayLadder {
	if maxTick <= 0 {
		panic("orderbook.NewArrayLadder: maxTick must be positive")
	}
	return &ArrayLadder{
		side:     side,
		maxTick:  maxTick,
		levels:   make([]PriceLevel, maxTick+1),
		occupied: bitset.New(uint(maxTick + 1)),
		best:     NoPrice,
		orders:   orders,
	}
}

func (l *ArrayLadder) rank(price int64) uint {
	if l.side == Buy {
		return uint(l.maxTick - price)
	}
	return uint(price)
}

func (l *ArrayLadder) priceAt(rank uint) int64 {
	if l.side == Buy {
		return l.maxTick - int64(rank)
	}
	return int64(rank)
}

func (l *ArrayLadder) InDomain(price int64) bool {
	return price > 0 && price <= l.maxTick
}

func (l *ArrayLadder) Level(price int64) *PriceLevel {
	r := l.rank(price)
	if !l.occupied.Test(r) {
		l.levels[price] = newLevel(price, l.orders)
		l.occupied.Set(r)
		l.count++
		if l.best == NoPrice || better(l.side, price, l.best) {
			l.best = price
		}
	}
	return &l.levels[price]
}

func (l *ArrayLadder) Find(price int64) *PriceLevel {
	if !l.InDomain(price) || !l.occupied.Test(l.rank(price)) {
		return nil
	}
	return &l.levels[price]
}

func (l *ArrayLadder) RemoveIfEmpty(price int64) bool {
	lvl := l.Find(price)
	if lvl == nil || !lvl.Empty() {
		return false
	}
	r := l.rank(price)
	l.occupied.Clear(r)
	l.count--
	if price == l.best {
		if next, ok := l.occupied.NextSet(r); ok {
			l.best = l.priceAt(next)
		} else {
			l.best = NoPrice
		}
	}
	return true
}

func (l *ArrayLadder) Best() *PriceLevel {
	if l.best == NoPrice {
		return nil
	}
	return &l.levels[l.best]
}

func (l *ArrayLadder) BestPrice() int64 { return l.best }

func (l *ArrayLadder) Len() int { return l.count }

func (l *ArrayLadder) Walk(fn func(*PriceLevel) bool) {
	if l.best == NoPrice {
		return
	}
	for r, ok := l.rank(l.best), true; ok; r, ok = l.occupied.NextSet(r + 1) {
		if !fn(&l.levels[l.priceAt(r)]) {
			return
		}
	}
}
