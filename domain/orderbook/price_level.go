package orderbook

import (
	"fmt"

	"matchbook/infra/memory"
)

// PriceLevel is a FIFO queue at a single price. Orders are linked by
// slab index, so every operation is O(1) and allocation-free.
type PriceLevel struct {
	Price int64

	orders *memory.Slab[Order]
	head   memory.Handle
	tail   memory.Handle

	TotalQty   int64
	OrderCount int
}

func newLevel(price int64, orders *memory.Slab[Order]) PriceLevel {
	return PriceLevel{
		Price:  price,
		orders: orders,
		head:   memory.NilHandle,
		tail:   memory.NilHandle,
	}
}

// PushBack appends h at the tail.
func (p *PriceLevel) PushBack(h memory.Handle) {
	o := p.orders.At(h)
	o.next = memory.NilHandle
	o.prev = p.tail
	if p.tail != memory.NilHandle {
		p.orders.At(p.tail).next = h
	} else {
		p.head = h
	}
	p.tail = h
	p.TotalQty += o.Remaining
	p.OrderCount++
}

// Front returns the oldest order, or NilHandle when empty.
func (p *PriceLevel) Front() memory.Handle {
	return p.head
}

// Remove splices h out from any position.
func (p *PriceLevel) Remove(h memory.Handle) {
	o := p.orders.At(h)
	if o.prev != memory.NilHandle {
		p.orders.At(o.prev).next = o.next
	} else {
		p.head = o.next
	}
	if o.next != memory.NilHandle {
		p.orders.At(o.next).prev = o.prev
	} else {
		p.tail = o.prev
	}
	o.next, o.prev = memory.NilHandle, memory.NilHandle
	p.TotalQty -= o.Remaining
	p.OrderCount--
}

// PopFront removes and returns the head, or NilHandle when empty.
func (p *PriceLevel) PopFront() memory.Handle {
	h := p.head
	if h == memory.NilHandle {
		return memory.NilHandle
	}
	p.Remove(h)
	return h
}

// Reduce lowers the remaining quantity of member h by qty in place.
// The order keeps its queue position.
func (p *PriceLevel) Reduce(h memory.Handle, qty int64) {
	p.orders.At(h).Remaining -= qty
	p.TotalQty -= qty
}

func (p *PriceLevel) Empty() bool {
	return p.OrderCount == 0
}

// Each visits members head to tail until fn returns false.
func (p *PriceLevel) Each(fn func(memory.Handle, *Order) bool) {
	for h := p.head; h != memory.NilHandle; {
		o := p.orders.At(h)
		next := o.next
		if !fn(h, o) {
			return
		}
		h = next
	}
}

func (p *PriceLevel) String() string {
	return fmt.Sprintf("PriceLevel{Price=%d, Orders=%d, TotalQty=%d}", p.Price, p.OrderCount, p.TotalQty)
}

// LevelView is a read-only copy of one level's aggregates.
type LevelView struct {
	Price      int64
	TotalQty   int64
	OrderCount int
}

func (p *PriceLevel) view() LevelView {
	return LevelView{Price: p.Price, TotalQty: p.TotalQty, OrderCount: p.OrderCount}
}
