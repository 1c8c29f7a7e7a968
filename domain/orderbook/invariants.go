package orderbook

import (
	"fmt"

	"matchbook/infra/memory"
)

// CheckInvariants walks the whole book and reports the first broken
// structural invariant wrapped in ErrInvariantViolation. It is O(n)
// and meant for tests and Config.Debug.
func (b *Book) CheckInvariants() error {
	if err := b.checkSlots(); err != nil {
		return err
	}
	total := 0
	for _, side := range [...]Side{Buy, Sell} {
		n, err := b.checkLadder(side)
		if err != nil {
			return err
		}
		total += n
	}
	if total != b.orders.Len() {
		return fmt.Errorf("%w: %d orders linked, %d slots allocated", ErrInvariantViolation, total, b.orders.Len())
	}
	if total != len(b.index) {
		return fmt.Errorf("%w: %d orders linked, %d indexed", ErrInvariantViolation, total, len(b.index))
	}
	return nil
}

// checkSlots walks the slab itself: every allocated slot must hold a
// resting order indexed under its own id.
func (b *Book) checkSlots() error {
	var err error
	b.orders.Each(func(h memory.Handle, o *Order) bool {
		switch idx, ok := b.index[o.ID]; {
		case o.ID == 0:
			err = fmt.Errorf("%w: slot %d holds an order without id", ErrInvariantViolation, h)
		case !ok || idx != h:
			err = fmt.Errorf("%w: slot %d order %d not indexed there", ErrInvariantViolation, h, o.ID)
		case !o.Resting():
			err = fmt.Errorf("%w: slot %d order %d allocated with status %s", ErrInvariantViolation, h, o.ID, o.Status)
		}
		return err == nil
	})
	return err
}

func (b *Book) checkLadder(side Side) (int, error) {
	ladder := b.ladder(side)
	best := ladder.BestPrice()
	if (best == NoPrice) != (ladder.Len() == 0) {
		return 0, fmt.Errorf("%w: %s best %d with %d levels", ErrInvariantViolation, side, best, ladder.Len())
	}
	if best != NoPrice {
		if lvl := ladder.Find(best); lvl == nil || lvl.Empty() || ladder.Best() != lvl {
			return 0, fmt.Errorf("%w: %s best %d names no live level", ErrInvariantViolation, side, best)
		}
	}

	var (
		err    error
		levels int
		orders int
		prev   = NoPrice
	)
	ladder.Walk(func(lvl *PriceLevel) bool {
		levels++
		if levels == 1 && lvl.Price != best {
			err = fmt.Errorf("%w: %s walk starts at %d, best is %d", ErrInvariantViolation, side, lvl.Price, best)
			return false
		}
		if prev != NoPrice && !better(side, prev, lvl.Price) {
			err = fmt.Errorf("%w: %s levels out of order %d then %d", ErrInvariantViolation, side, prev, lvl.Price)
			return false
		}
		prev = lvl.Price
		var n int
		n, err = b.checkLevel(side, lvl)
		orders += n
		return err == nil
	})
	if err != nil {
		return 0, err
	}
	if levels != ladder.Len() {
		return 0, fmt.Errorf("%w: %s walked %d levels, ladder holds %d", ErrInvariantViolation, side, levels, ladder.Len())
	}
	return orders, nil
}

func (b *Book) checkLevel(side Side, lvl *PriceLevel) (int, error) {
	if lvl.Empty() {
		return 0, fmt.Errorf("%w: empty %s level at %d", ErrInvariantViolation, side, lvl.Price)
	}
	var (
		count  int
		volume int64
		prev   = memory.NilHandle
		seq    uint64
	)
	for h := lvl.head; h != memory.NilHandle; h = b.orders.At(h).next {
		if !b.orders.Live(h) {
			return 0, fmt.Errorf("%w: freed slot %d linked at %d", ErrInvariantViolation, h, lvl.Price)
		}
		o := b.orders.At(h)
		switch {
		case o.prev != prev:
			return 0, fmt.Errorf("%w: order %d has broken prev link", ErrInvariantViolation, o.ID)
		case o.Side != side || o.Price != lvl.Price:
			return 0, fmt.Errorf("%w: order %d (%s@%d) in %s level %d", ErrInvariantViolation, o.ID, o.Side, o.Price, side, lvl.Price)
		case !o.Resting() || o.Remaining <= 0:
			return 0, fmt.Errorf("%w: order %d linked with status %s remaining %d", ErrInvariantViolation, o.ID, o.Status, o.Remaining)
		case count > 0 && o.Seq < seq:
			return 0, fmt.Errorf("%w: order %d breaks FIFO at %d", ErrInvariantViolation, o.ID, lvl.Price)
		}
		if idx, ok := b.index[o.ID]; !ok || idx != h {
			return 0, fmt.Errorf("%w: order %d missing from index", ErrInvariantViolation, o.ID)
		}
		seq = o.Seq
		prev = h
		count++
		volume += o.Remaining
		if count > b.orders.Cap() {
			return 0, fmt.Errorf("%w: cycle in level %d", ErrInvariantViolation, lvl.Price)
		}
	}
	if prev != lvl.tail {
		return 0, fmt.Errorf("%w: level %d tail mismatch", ErrInvariantViolation, lvl.Price)
	}
	if count != lvl.OrderCount || volume != lvl.TotalQty {
		return 0, fmt.Errorf("%w: level %d caches count=%d qty=%d, actual count=%d qty=%d",
			ErrInvariantViolation, lvl.Price, lvl.OrderCount, lvl.TotalQty, count, volume)
	}
	return count, nil
}

func (b *Book) checkInvariants() {
	if !b.debug {
		return
	}
	if err := b.CheckInvariants(); err != nil {
		panic(err)
	}
}
