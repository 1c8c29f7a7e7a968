package orderbook

// Transaction is one execution between a buy and a sell order.
// Price is always the limit price of whichever order entered first.
type Transaction struct {
	ID          uint64
	Qty         int64
	Price       int64
	Time        int64
	BuyOrderID  OrderID
	SellOrderID OrderID
	// Aggressor is the side of the later-arriving order.
	Aggressor Side
}
