package orderbook

import (
	"fmt"

	"matchbook/infra/memory"
)

type Side uint8
type Status uint8

// OrderID identifies an order for its whole life. Valid ids are >= 1.
type OrderID uint64

const (
	Buy Side = iota
	Sell
)

const (
	Active Status = iota
	PartiallyFilled
	Filled
	Canceled
)

// NoPrice is the best-price sentinel of an empty ladder. Valid prices are > 0.
const NoPrice int64 = 0

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

func (s Status) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Filled:
		return "FILLED"
	case Canceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Order is a resting order record. It lives inside the book's slab;
// prev/next link it into its price level by slab index.
type Order struct {
	ID        OrderID
	Side      Side
	Price     int64
	Remaining int64
	Original  int64
	Seq       uint64
	Status    Status
	// LastFill is the execution time of the latest trade against the
	// order, zero until it first trades.
	LastFill int64

	prev memory.Handle
	next memory.Handle
}

// Resting reports whether the order can still trade.
func (o *Order) Resting() bool {
	return o.Status == Active || o.Status == PartiallyFilled
}

// Executed returns the quantity traded so far.
func (o *Order) Executed() int64 {
	return o.Original - o.Remaining
}

// earlier reports whether o has time priority over other. Equal
// sequences only occur for restored orders and fall back to the id.
func (o *Order) earlier(other *Order) bool {
	if o.Seq != other.Seq {
		return o.Seq < other.Seq
	}
	return o.ID < other.ID
}

// OrderRef is the caller's handle on a submitted order. A ref goes
// stale once the order fills or is canceled; the book detects that by
// comparing the id stored in the slot.
type OrderRef struct {
	ID   OrderID
	slot memory.Handle
}

// NilRef never names a resting order.
var NilRef = OrderRef{slot: memory.NilHandle}

// Valid reports whether the ref was ever issued by a book.
func (r OrderRef) Valid() bool { return r.ID != 0 && r.slot != memory.NilHandle }

// RestingOrder is an order as captured by snapshots and restored into a book.
type RestingOrder struct {
	ID        OrderID
	Side      Side
	Price     int64
	Remaining int64
	Original  int64
	Seq       uint64
	LastFill  int64
}
