package orderbook

import (
	"github.com/tidwall/btree"

	"matchbook/infra/memory"
)

// TreeLadder is the unbounded ladder backed by a B-tree keyed by
// price. Insert, remove and best-price re-derivation are O(log n).
type TreeLadder struct {
	side   Side
	levels *btree.Map[int64, *PriceLevel]
	best   *PriceLevel
	orders *memory.Slab[Order]
}

func NewTreeLadder(side Side, orders *memory.Slab[Order]) *TreeLadder {
	return &TreeLadder{
		side:   side,
		levels: btree.NewMap[int64, *PriceLevel](32),
		orders: orders,
	}
}

func (t *TreeLadder) InDomain(price int64) bool { return price > 0 }

func (t *TreeLadder) Level(price int64) *PriceLevel {
	if lvl, ok := t.levels.Get(price); ok {
		return lvl
	}
	lvl := new(PriceLevel)
	*lvl = newLevel(price, t.orders)
	t.levels.Set(price, lvl)
	if t.best == nil || better(t.side, price, t.best.Price) {
		t.best = lvl
	}
	return lvl
}

func (t *TreeLadder) Find(price int64) *PriceLevel {
	lvl, _ := t.levels.Get(price)
	return lvl
}

func (t *TreeLadder) RemoveIfEmpty(price int64) bool {
	lvl, ok := t.levels.Get(price)
	if !ok || !lvl.Empty() {
		return false
	}
	t.levels.Delete(price)
	if t.best == lvl {
		t.best = t.extreme()
	}
	return true
}

func (t *TreeLadder) extreme() *PriceLevel {
	var (
		lvl *PriceLevel
		ok  bool
	)
	if t.side == Buy {
		_, lvl, ok = t.levels.Max()
	} else {
		_, lvl, ok = t.levels.Min()
	}
	if !ok {
		return nil
	}
	return lvl
}

func (t *TreeLadder) Best() *PriceLevel { return t.best }

func (t *TreeLadder) BestPrice() int64 {
	if t.best == nil {
		return NoPrice
	}
	return t.best.Price
}

func (t *TreeLadder) Len() int { return t.levels.Len() }

func (t *TreeLadder) Walk(fn func(*PriceLevel) bool) {
	visit := func(_ int64, lvl *PriceLevel) bool { return fn(lvl) }
	if t.side == Buy {
		t.levels.Reverse(visit)
	} else {
		t.levels.Scan(visit)
	}
}
