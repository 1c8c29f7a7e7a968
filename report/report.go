// Package report renders book state and bench results as plain text.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"matchbook/domain/orderbook"
)

// Formatter turns integer ticks into decimal prices. Scale is the number
// of decimal places one tick stands for: 100 with Scale 2 prints "1.00".
type Formatter struct {
	Scale int32
}

func (f Formatter) Price(ticks int64) string {
	return decimal.New(ticks, -f.Scale).StringFixed(f.Scale)
}

// Notional prints qty*price in price units. It is computed in decimal
// so unbounded tree-ladder prices cannot overflow.
func (f Formatter) Notional(tx orderbook.Transaction) string {
	return decimal.New(tx.Price, -f.Scale).Mul(decimal.NewFromInt(tx.Qty)).StringFixed(f.Scale)
}

// WriteLedger prints one line per trade, order ids in hex.
func (f Formatter) WriteLedger(w io.Writer, txs []orderbook.Transaction) error {
	if _, err := fmt.Fprintf(w, "Executed transactions: %d\n", len(txs)); err != nil {
		return err
	}
	for _, t := range txs {
		_, err := fmt.Fprintf(w, "Trade %d: %d @ %s = %s (BuyID=%x, SellID=%x, Aggressor=%s, Time=%d)\n",
			t.ID, t.Qty, f.Price(t.Price), f.Notional(t), uint64(t.BuyOrderID), uint64(t.SellOrderID), t.Aggressor, t.Time)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteDepth prints the aggregated levels of both sides, asks above
// bids, best prices adjacent to the spread line.
func (f Formatter) WriteDepth(w io.Writer, bids, asks []orderbook.LevelView) error {
	asks = slices.Clone(asks)
	slices.Reverse(asks)

	if _, err := fmt.Fprintln(w, "Sell levels:"); err != nil {
		return err
	}
	for _, l := range asks {
		if err := f.writeLevel(w, l); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, "-----"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "Buy levels:"); err != nil {
		return err
	}
	for _, l := range bids {
		if err := f.writeLevel(w, l); err != nil {
			return err
		}
	}
	return nil
}

func (f Formatter) writeLevel(w io.Writer, l orderbook.LevelView) error {
	_, err := fmt.Fprintf(w, "%12s  %10d  (%d orders)\n", f.Price(l.Price), l.TotalQty, l.OrderCount)
	return err
}

// WriteOrders prints every resting order of one side.
func (f Formatter) WriteOrders(w io.Writer, orders []orderbook.Order) error {
	for _, o := range orders {
		_, err := fmt.Fprintf(w, "%-5s ID %x %d/%d @ %s %s LastFill=%d\n",
			o.Side.String()+":", uint64(o.ID), o.Remaining, o.Original, f.Price(o.Price), o.Status, o.LastFill)
		if err != nil {
			return err
		}
	}
	return nil
}

// Summary describes one bench run.
type Summary struct {
	RunID    string
	Seed     uint64
	Commands int
	Rejected int
	Trades   int
	Shares   int64
	Resting  int
	Elapsed  time.Duration
	Ops      []LatencyStats
}

func (s Summary) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	fmt.Fprintf(cw, "run      %s\n", s.RunID)
	fmt.Fprintf(cw, "seed     %d\n", s.Seed)
	fmt.Fprintf(cw, "commands %d (rejected %d)\n", s.Commands, s.Rejected)
	fmt.Fprintf(cw, "trades   %d (%d shares)\n", s.Trades, s.Shares)
	fmt.Fprintf(cw, "resting  %d\n", s.Resting)
	fmt.Fprintf(cw, "elapsed  %s\n", s.Elapsed)
	if s.Elapsed > 0 {
		fmt.Fprintf(cw, "rate     %.0f cmd/s\n", float64(s.Commands)/s.Elapsed.Seconds())
	}
	for _, op := range s.Ops {
		fmt.Fprintf(cw, "%-8s n=%d mean=%s p50=%s p99=%s max=%s\n",
			op.Op, op.Count, op.Mean, op.P50, op.P99, op.Max)
	}
	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

// Files is everything a bench run dumps to its output directory.
type Files struct {
	Summary Summary
	Bids    []orderbook.LevelView
	Asks    []orderbook.LevelView
	Orders  []orderbook.Order
	Ledger  []orderbook.Transaction
}

// WriteDir writes summary.txt, depth.txt, orders.txt and ledger.txt into dir.
func (f Formatter) WriteDir(dir string, files Files) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	writers := []struct {
		name string
		fn   func(io.Writer) error
	}{
		{"summary.txt", func(w io.Writer) error { _, err := files.Summary.WriteTo(w); return err }},
		{"depth.txt", func(w io.Writer) error { return f.WriteDepth(w, files.Bids, files.Asks) }},
		{"orders.txt", func(w io.Writer) error { return f.WriteOrders(w, files.Orders) }},
		{"ledger.txt", func(w io.Writer) error { return f.WriteLedger(w, files.Ledger) }},
	}
	for _, wr := range writers {
		if err := writeFile(filepath.Join(dir, wr.name), wr.fn); err != nil {
			return fmt.Errorf("report %s: %w", wr.name, err)
		}
	}
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
