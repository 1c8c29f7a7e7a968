package snapshot

import (
	"errors"
	"time"
)

const Version = 1

var ErrVersion = errors.New("snapshot: unsupported version")

type Snapshot struct {
	Version int
	// JournalSeq is the last journal record reflected in Orders.
	JournalSeq  uint64
	LastOrderID uint64
	LastTradeID uint64
	Created     time.Time
	Orders      []OrderEntry
}

// OrderEntry is one resting order. Entries of a side are stored in
// priority order, oldest first within a level.
type OrderEntry struct {
	ID        uint64
	Side      int
	Price     int64
	Remaining int64
	Original  int64
	Seq       uint64
	LastFill  int64
}
