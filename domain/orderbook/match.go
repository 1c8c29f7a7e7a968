package orderbook

import (
	"slices"

	"matchbook/infra/memory"
)

// ExecuteOrders crosses the book until the best bid is below the best
// ask or a side is empty. It returns the trades of this run, which are
// also appended to the ledger. With nothing crossable it returns nil
// and changes nothing.
func (b *Book) ExecuteOrders(now int64) []Transaction {
	start := len(b.ledger)
	for {
		bid, ask := b.bids.Best(), b.asks.Best()
		if bid == nil || ask == nil || bid.Price < ask.Price {
			break
		}
		bh, ah := bid.Front(), ask.Front()
		buy, sell := b.orders.At(bh), b.orders.At(ah)

		// The earlier order was resting; the trade prints at its price.
		price, aggressor := buy.Price, Sell
		if sell.earlier(buy) {
			price, aggressor = sell.Price, Buy
		}
		qty := min(buy.Remaining, sell.Remaining)

		b.txSeq++
		tx := Transaction{
			ID:          b.txSeq,
			Qty:         qty,
			Price:       price,
			Time:        now,
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
			Aggressor:   aggressor,
		}
		b.ledger = append(b.ledger, tx)

		bid.Reduce(bh, qty)
		ask.Reduce(ah, qty)
		buy.LastFill, sell.LastFill = now, now
		b.settle(bh, buy)
		b.settle(ah, sell)

		if b.onTrade != nil {
			b.onTrade(tx)
		}
	}
	if len(b.ledger) == start {
		return nil
	}
	b.checkInvariants()
	return slices.Clone(b.ledger[start:])
}

// settle retires an exhausted order; a survivor keeps its place at the
// head of its level.
func (b *Book) settle(h memory.Handle, o *Order) {
	if o.Remaining == 0 {
		b.retire(h, o, Filled)
		return
	}
	o.Status = PartiallyFilled
}
