package snapshot

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"matchbook/domain/orderbook"
)

// Load reads the snapshot in dir. A missing snapshot is not an error:
// it returns nil and the caller starts from an empty book.
func Load(dir string) (*Snapshot, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", f.Name(), err)
	}
	if s.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	return &s, nil
}

// Restore inserts every captured order into book, which should be empty
// and configured with LastTradeID and an id source resumed from the
// snapshot.
func (s *Snapshot) Restore(book *orderbook.Book) error {
	for _, e := range s.Orders {
		_, err := book.Restore(orderbook.RestingOrder{
			ID:        orderbook.OrderID(e.ID),
			Side:      orderbook.Side(e.Side),
			Price:     e.Price,
			Remaining: e.Remaining,
			Original:  e.Original,
			Seq:       e.Seq,
			LastFill:  e.LastFill,
		})
		if err != nil {
			return fmt.Errorf("snapshot: restore order %d: %w", e.ID, err)
		}
	}
	return nil
}
