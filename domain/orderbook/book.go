package orderbook

import (
	"fmt"
	"slices"

	"matchbook/infra/memory"
	"matchbook/infra/sequence"
)

// DefaultCapacity is used when Config.Capacity is zero.
const DefaultCapacity = 1 << 20

// IDSource produces unique order identifiers (>= 1). AddOrder rejects
// a zero or repeated id with ErrInvalidOrder and leaves the book as is.
type IDSource interface {
	Next() uint64
}

type Config struct {
	// Capacity bounds the number of simultaneously resting orders.
	Capacity int
	// MaxPrice > 0 selects the array ladder over ticks [1, MaxPrice];
	// zero selects the unbounded tree ladder.
	MaxPrice int64
	// IDs defaults to a sequencer starting at 1.
	IDs IDSource
	// LastTradeID resumes trade numbering after a restart.
	LastTradeID uint64
	// OnTrade, if set, is called synchronously for every trade. It must
	// not call back into the book.
	OnTrade func(Transaction)
	// Debug re-checks every invariant after each mutation and panics
	// on the first violation.
	Debug bool
}

// Book is a single-instrument limit order book. It is single-writer:
// callers needing concurrency serialize all access through one owner.
type Book struct {
	bids   Ladder
	asks   Ladder
	orders *memory.Slab[Order]
	index  map[OrderID]memory.Handle
	ledger []Transaction

	ids     IDSource
	seq     uint64
	txSeq   uint64
	onTrade func(Transaction)
	debug   bool
}

func New(cfg Config) *Book {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.IDs == nil {
		cfg.IDs = sequence.New(0)
	}
	orders := memory.NewSlab[Order](cfg.Capacity)
	return &Book{
		bids:    NewLadder(Buy, cfg.MaxPrice, orders),
		asks:    NewLadder(Sell, cfg.MaxPrice, orders),
		orders:  orders,
		index:   make(map[OrderID]memory.Handle, cfg.Capacity),
		ids:     cfg.IDs,
		txSeq:   cfg.LastTradeID,
		onTrade: cfg.OnTrade,
		debug:   cfg.Debug,
	}
}

func (b *Book) ladder(s Side) Ladder {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) validate(side Side, price, shares int64) error {
	switch {
	case side != Buy && side != Sell:
		return fmt.Errorf("%w: unknown side %d", ErrInvalidOrder, side)
	case shares <= 0:
		return fmt.Errorf("%w: shares %d must be positive", ErrInvalidOrder, shares)
	case price <= 0:
		return fmt.Errorf("%w: price %d must be positive", ErrInvalidOrder, price)
	case !b.ladder(side).InDomain(price):
		return fmt.Errorf("%w: price %d outside ladder domain", ErrInvalidOrder, price)
	}
	return nil
}

// AddOrder rests a new limit order without matching it. Batch several
// submissions and call ExecuteOrders to cross them.
func (b *Book) AddOrder(side Side, price, shares int64) (OrderRef, error) {
	if err := b.validate(side, price, shares); err != nil {
		return NilRef, err
	}
	if b.orders.Available() == 0 {
		return NilRef, fmt.Errorf("%w: %d orders resting", ErrCapacityExhausted, b.orders.Len())
	}
	id := OrderID(b.ids.Next())
	if id == 0 {
		return NilRef, fmt.Errorf("%w: id source returned 0", ErrInvalidOrder)
	}
	if _, dup := b.index[id]; dup {
		return NilRef, fmt.Errorf("%w: id source repeated order id %d", ErrInvalidOrder, id)
	}
	h, err := b.orders.Allocate()
	if err != nil {
		return NilRef, fmt.Errorf("%w: %w", ErrCapacityExhausted, err)
	}
	b.seq++
	o := b.orders.At(h)
	*o = Order{
		ID:        id,
		Side:      side,
		Price:     price,
		Remaining: shares,
		Original:  shares,
		Seq:       b.seq,
		Status:    Active,
	}
	b.insert(h, o)
	return OrderRef{ID: id, slot: h}, nil
}

// PlaceOrder adds the order and immediately runs the crossing loop,
// returning the trades of that run.
func (b *Book) PlaceOrder(side Side, price, shares, now int64) (OrderRef, []Transaction, error) {
	ref, err := b.AddOrder(side, price, shares)
	if err != nil {
		return NilRef, nil, err
	}
	return ref, b.ExecuteOrders(now), nil
}

// Restore re-inserts a previously captured order keeping its id and
// entry sequence. Orders of one level must be restored oldest first.
func (b *Book) Restore(r RestingOrder) (OrderRef, error) {
	if err := b.validate(r.Side, r.Price, r.Remaining); err != nil {
		return NilRef, err
	}
	if r.ID == 0 {
		return NilRef, fmt.Errorf("%w: restored order has no id", ErrInvalidOrder)
	}
	if _, dup := b.index[r.ID]; dup {
		return NilRef, fmt.Errorf("%w: duplicate order id %d", ErrInvalidOrder, r.ID)
	}
	h, err := b.orders.Allocate()
	if err != nil {
		return NilRef, fmt.Errorf("%w: %w", ErrCapacityExhausted, err)
	}
	if r.Original < r.Remaining {
		r.Original = r.Remaining
	}
	status := Active
	if r.Original > r.Remaining {
		status = PartiallyFilled
	}
	b.seq = max(b.seq, r.Seq)
	if obs, ok := b.ids.(interface{ Observe(uint64) }); ok {
		obs.Observe(uint64(r.ID))
	}
	o := b.orders.At(h)
	*o = Order{
		ID:        r.ID,
		Side:      r.Side,
		Price:     r.Price,
		Remaining: r.Remaining,
		Original:  r.Original,
		Seq:       r.Seq,
		Status:    status,
		LastFill:  r.LastFill,
	}
	b.insert(h, o)
	return OrderRef{ID: r.ID, slot: h}, nil
}

func (b *Book) insert(h memory.Handle, o *Order) {
	b.ladder(o.Side).Level(o.Price).PushBack(h)
	b.index[o.ID] = h
	b.checkInvariants()
}

func (b *Book) resolve(ref OrderRef) (memory.Handle, *Order, bool) {
	if !b.orders.Live(ref.slot) {
		return memory.NilHandle, nil, false
	}
	o := b.orders.At(ref.slot)
	if o.ID != ref.ID || !o.Resting() {
		return memory.NilHandle, nil, false
	}
	return ref.slot, o, true
}

// CancelOrder removes a resting order. It returns false, changing
// nothing, when the ref is stale, unknown, filled or already canceled.
func (b *Book) CancelOrder(ref OrderRef) bool {
	h, o, ok := b.resolve(ref)
	if !ok {
		return false
	}
	b.retire(h, o, Canceled)
	b.checkInvariants()
	return true
}

// CancelByID cancels the resting order with the given id.
func (b *Book) CancelByID(id OrderID) bool {
	h, ok := b.index[id]
	if !ok {
		return false
	}
	return b.CancelOrder(OrderRef{ID: id, slot: h})
}

// ReduceOrder lowers a resting order's remaining shares by qty while
// keeping its time priority. Reducing to zero or below cancels it.
func (b *Book) ReduceOrder(ref OrderRef, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reduction %d must be positive", ErrInvalidOrder, qty)
	}
	h, o, ok := b.resolve(ref)
	if !ok {
		return fmt.Errorf("%w: order %d", ErrOrderNotResting, ref.ID)
	}
	if qty >= o.Remaining {
		b.retire(h, o, Canceled)
	} else {
		b.ladder(o.Side).Find(o.Price).Reduce(h, qty)
	}
	b.checkInvariants()
	return nil
}

// retire unlinks a resting order, reclaims its level if emptied and
// frees its slot.
func (b *Book) retire(h memory.Handle, o *Order, status Status) {
	ladder := b.ladder(o.Side)
	lvl := ladder.Find(o.Price)
	if lvl == nil {
		panic(fmt.Errorf("%w: order %d has no level at %d", ErrInvariantViolation, o.ID, o.Price))
	}
	lvl.Remove(h)
	ladder.RemoveIfEmpty(o.Price)
	o.Status = status
	delete(b.index, o.ID)
	if err := b.orders.Free(h); err != nil {
		panic(fmt.Errorf("%w: freeing order %d: %w", ErrInvariantViolation, o.ID, err))
	}
}

// BestBid returns the highest resting buy price.
func (b *Book) BestBid() (int64, bool) {
	p := b.bids.BestPrice()
	return p, p != NoPrice
}

// BestAsk returns the lowest resting sell price.
func (b *Book) BestAsk() (int64, bool) {
	p := b.asks.BestPrice()
	return p, p != NoPrice
}

// Transactions returns a copy of every trade ever executed, in
// execution order.
func (b *Book) Transactions() []Transaction {
	return slices.Clone(b.ledger)
}

// TransactionCount returns the ledger length.
func (b *Book) TransactionCount() int { return len(b.ledger) }

// LastTradeID returns the id of the most recent trade.
func (b *Book) LastTradeID() uint64 { return b.txSeq }

// Order returns a copy of the resting order named by ref.
func (b *Book) Order(ref OrderRef) (Order, bool) {
	_, o, ok := b.resolve(ref)
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Lookup returns a copy of the resting order with the given id.
func (b *Book) Lookup(id OrderID) (Order, bool) {
	h, ok := b.index[id]
	if !ok {
		return Order{}, false
	}
	return b.Order(OrderRef{ID: id, slot: h})
}

// Ref returns a ref for the resting order with the given id.
func (b *Book) Ref(id OrderID) (OrderRef, bool) {
	h, ok := b.index[id]
	if !ok {
		return NilRef, false
	}
	return OrderRef{ID: id, slot: h}, true
}

// Resting returns the number of orders in the book.
func (b *Book) Resting() int { return b.orders.Len() }

// Capacity returns the fixed order capacity.
func (b *Book) Capacity() int { return b.orders.Cap() }

// Levels returns the number of price levels on side s.
func (b *Book) Levels(s Side) int { return b.ladder(s).Len() }

// Depth returns up to n levels of side s, best first. n <= 0 returns all.
func (b *Book) Depth(s Side, n int) []LevelView {
	out := make([]LevelView, 0, max(n, 0))
	b.ladder(s).Walk(func(lvl *PriceLevel) bool {
		out = append(out, lvl.view())
		return n <= 0 || len(out) < n
	})
	return out
}

// WalkOrders visits copies of side s's resting orders in priority
// order until fn returns false.
func (b *Book) WalkOrders(s Side, fn func(Order) bool) {
	cont := true
	b.ladder(s).Walk(func(lvl *PriceLevel) bool {
		lvl.Each(func(_ memory.Handle, o *Order) bool {
			cont = fn(*o)
			return cont
		})
		return cont
	})
}
