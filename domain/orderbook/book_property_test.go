package orderbook

import (
	"testing"

	"pgregory.net/rapid"
)

// shadowOrder is the model's view of one resting order.
type shadowOrder struct {
	ref       OrderRef
	side      Side
	price     int64
	remaining int64
	seq       int
}

// bookModel drives a Book with random commands and checks every
// observable against a naive map-based model.
type bookModel struct {
	book   *Book
	orders map[OrderID]*shadowOrder
	ids    []OrderID
	seq    int
	now    int64
}

func newBookModel(maxPrice int64) *bookModel {
	return &bookModel{
		book:   New(Config{Capacity: 64, MaxPrice: maxPrice, Debug: true}),
		orders: make(map[OrderID]*shadowOrder),
	}
}

func (m *bookModel) add(t *rapid.T) {
	side := rapid.SampledFrom([]Side{Buy, Sell}).Draw(t, "side")
	price := rapid.Int64Range(90, 110).Draw(t, "price")
	shares := rapid.Int64Range(1, 50).Draw(t, "shares")

	ref, err := m.book.AddOrder(side, price, shares)
	if len(m.orders) == m.book.Capacity() {
		if err == nil {
			t.Fatalf("add succeeded on a full book")
		}
		return
	}
	if err != nil {
		t.Fatalf("add %s %d@%d: %v", side, shares, price, err)
	}
	if _, dup := m.orders[ref.ID]; dup {
		t.Fatalf("id %d issued twice", ref.ID)
	}
	m.seq++
	m.orders[ref.ID] = &shadowOrder{ref: ref, side: side, price: price, remaining: shares, seq: m.seq}
	m.ids = append(m.ids, ref.ID)
}

func (m *bookModel) cancel(t *rapid.T) {
	if len(m.ids) == 0 {
		t.Skip("nothing ever submitted")
	}
	id := rapid.SampledFrom(m.ids).Draw(t, "id")
	o, live := m.orders[id]
	ref := OrderRef{ID: id, slot: -1}
	if live {
		ref = o.ref
	}
	if got := m.book.CancelByID(id); got != live {
		t.Fatalf("cancel %d = %v, model says resting=%v", id, got, live)
	}
	if m.book.CancelOrder(ref) {
		t.Fatalf("second cancel of %d succeeded", id)
	}
	delete(m.orders, id)
}

func (m *bookModel) reduce(t *rapid.T) {
	if len(m.orders) == 0 {
		t.Skip("empty book")
	}
	id := rapid.SampledFrom(m.ids).Draw(t, "id")
	o, live := m.orders[id]
	if !live {
		return
	}
	qty := rapid.Int64Range(1, o.remaining+5).Draw(t, "qty")
	if err := m.book.ReduceOrder(o.ref, qty); err != nil {
		t.Fatalf("reduce %d by %d: %v", id, qty, err)
	}
	if qty >= o.remaining {
		delete(m.orders, id)
	} else {
		o.remaining -= qty
	}
}

// best returns the model's highest priority order on side s.
func (m *bookModel) best(s Side) *shadowOrder {
	var top *shadowOrder
	for _, o := range m.orders {
		if o.side != s {
			continue
		}
		if top == nil || better(s, o.price, top.price) || (o.price == top.price && o.seq < top.seq) {
			top = o
		}
	}
	return top
}

func (m *bookModel) execute(t *rapid.T) {
	m.now++
	txs := m.book.ExecuteOrders(m.now)
	for _, tx := range txs {
		buy, sell := m.best(Buy), m.best(Sell)
		if buy == nil || sell == nil {
			t.Fatalf("trade %d on a one-sided model", tx.ID)
		}
		if tx.BuyOrderID != buy.ref.ID || tx.SellOrderID != sell.ref.ID {
			t.Fatalf("trade %d paired %d/%d, priority says %d/%d",
				tx.ID, tx.BuyOrderID, tx.SellOrderID, buy.ref.ID, sell.ref.ID)
		}
		if buy.price < sell.price {
			t.Fatalf("trade %d crossed non-crossing prices %d < %d", tx.ID, buy.price, sell.price)
		}
		resting, aggressor := buy, Sell
		if sell.seq < buy.seq {
			resting, aggressor = sell, Buy
		}
		if tx.Price != resting.price || tx.Aggressor != aggressor {
			t.Fatalf("trade %d at %d aggressor %s, want %d aggressor %s",
				tx.ID, tx.Price, tx.Aggressor, resting.price, aggressor)
		}
		if want := min(buy.remaining, sell.remaining); tx.Qty != want {
			t.Fatalf("trade %d qty %d, want %d", tx.ID, tx.Qty, want)
		}
		for _, o := range []*shadowOrder{buy, sell} {
			o.remaining -= tx.Qty
			if o.remaining == 0 {
				delete(m.orders, o.ref.ID)
			}
		}
	}
	if buy, sell := m.best(Buy), m.best(Sell); buy != nil && sell != nil && buy.price >= sell.price {
		t.Fatalf("book still crosses after execute: %d >= %d", buy.price, sell.price)
	}
	if again := m.book.ExecuteOrders(m.now); again != nil {
		t.Fatalf("second execute produced %d trades", len(again))
	}
}

func (m *bookModel) check(t *rapid.T) {
	if err := m.book.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	if m.book.Resting() != len(m.orders) {
		t.Fatalf("book rests %d orders, model %d", m.book.Resting(), len(m.orders))
	}
	var volume [2]int64
	for id, want := range m.orders {
		got, ok := m.book.Lookup(id)
		if !ok {
			t.Fatalf("order %d missing from book", id)
		}
		if got.Remaining != want.remaining || got.Price != want.price || got.Side != want.side {
			t.Fatalf("order %d is %s %d@%d, model %s %d@%d",
				id, got.Side, got.Remaining, got.Price, want.side, want.remaining, want.price)
		}
		volume[want.side] += want.remaining
	}
	for _, s := range []Side{Buy, Sell} {
		var total int64
		for _, lvl := range m.book.Depth(s, 0) {
			total += lvl.TotalQty
		}
		if total != volume[s] {
			t.Fatalf("%s depth volume %d, model %d", s, total, volume[s])
		}
		top, price := m.best(s), m.book.ladder(s).BestPrice()
		if (top == nil) != (price == NoPrice) || (top != nil && top.price != price) {
			t.Fatalf("%s best price %d disagrees with model", s, price)
		}
	}
}

func TestBookMatchesModel(t *testing.T) {
	for name, maxPrice := range map[string]int64{"array": 200, "tree": 0} {
		t.Run(name, func(t *testing.T) {
			rapid.Check(t, func(t *rapid.T) {
				m := newBookModel(maxPrice)
				t.Repeat(map[string]func(*rapid.T){
					"add":     m.add,
					"cancel":  m.cancel,
					"reduce":  m.reduce,
					"execute": m.execute,
					"":        m.check,
				})
			})
		})
	}
}

// TestLadderVariantsAgree replays one command stream into both ladder
// kinds and requires identical trades.
func TestLadderVariantsAgree(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		array := New(Config{Capacity: 128, MaxPrice: 200})
		tree := New(Config{Capacity: 128})
		n := rapid.IntRange(1, 100).Draw(t, "n")
		for i := 0; i < n; i++ {
			side := rapid.SampledFrom([]Side{Buy, Sell}).Draw(t, "side")
			price := rapid.Int64Range(1, 200).Draw(t, "price")
			shares := rapid.Int64Range(1, 100).Draw(t, "shares")
			_, errA := array.AddOrder(side, price, shares)
			_, errT := tree.AddOrder(side, price, shares)
			if (errA == nil) != (errT == nil) {
				t.Fatalf("add diverged: array=%v tree=%v", errA, errT)
			}
			if rapid.Bool().Draw(t, "execute") {
				a, b := array.ExecuteOrders(int64(i)), tree.ExecuteOrders(int64(i))
				if len(a) != len(b) {
					t.Fatalf("step %d: array %d trades, tree %d", i, len(a), len(b))
				}
				for j := range a {
					if a[j] != b[j] {
						t.Fatalf("step %d trade %d: array %+v tree %+v", i, j, a[j], b[j])
					}
				}
			}
		}
	})
}
