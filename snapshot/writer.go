package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"matchbook/domain/orderbook"
)

const fileName = "snapshot.bin"

// Capture copies the resting orders of book. lastOrderID is the last id
// handed out by the book's id source.
func Capture(book *orderbook.Book, journalSeq, lastOrderID uint64) *Snapshot {
	s := &Snapshot{
		Version:     Version,
		JournalSeq:  journalSeq,
		LastOrderID: lastOrderID,
		LastTradeID: book.LastTradeID(),
		Created:     time.Now(),
		Orders:      make([]OrderEntry, 0, book.Resting()),
	}
	for _, side := range [...]orderbook.Side{orderbook.Buy, orderbook.Sell} {
		book.WalkOrders(side, func(o orderbook.Order) bool {
			s.Orders = append(s.Orders, OrderEntry{
				ID:        uint64(o.ID),
				Side:      int(o.Side),
				Price:     o.Price,
				Remaining: o.Remaining,
				Original:  o.Original,
				Seq:       o.Seq,
				LastFill:  o.LastFill,
			})
			return true
		})
	}
	return s
}

type Writer struct {
	Dir string
}

// Write replaces the snapshot in Dir atomically.
func (w *Writer) Write(s *Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0755); err != nil {
		return err
	}

	f, err := os.CreateTemp(w.Dir, fileName+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := gob.NewEncoder(f).Encode(s); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(w.Dir, fileName))
}
