package exit

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"

	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrNotFound      = errors.New("exit: record not found")
	ErrInvalidRecord = errors.New("exit: invalid record")
)

// -------------------- Record --------------------

// Record is one trade waiting for, or done with, publication.
type Record struct {
	TradeID     uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const recordHeader = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, recordHeader+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[recordHeader:], r.Payload)
	return buf
}

// decodeRecord copies b; pebble owns the slices it returns.
func decodeRecord(id uint64, b []byte) (Record, error) {
	if len(b) < recordHeader {
		return Record{}, fmt.Errorf("%w: length %d", ErrInvalidRecord, len(b))
	}
	return Record{
		TradeID:     id,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     bytes.Clone(b[recordHeader:]),
	}, nil
}

// -------------------- Outbox --------------------

// Outbox stores executed trades in pebble until the broadcaster has
// delivered them. Keys are tx/<trade id>, so scans run in trade order.
type Outbox struct {
	db   *pebble.DB
	sync *pebble.WriteOptions
}

type Options struct {
	// NoSync skips fsync on writes. Tests and benchmarks only.
	NoSync bool
}

func Open(dir string, opts Options) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	wo := pebble.Sync
	if opts.NoSync {
		wo = pebble.NoSync
	}
	return &Outbox{db: db, sync: wo}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// -------------------- API --------------------

// Publish stores a batch of trades as NEW in one atomic write. It lets
// the outbox sit beside the Kafka producer as a trade publisher.
func (o *Outbox) Publish(_ context.Context, txs []orderbook.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	batch := o.db.NewBatch()
	defer batch.Close()

	var payload []byte
	for _, tx := range txs {
		payload = codec.AppendTransaction(payload[:0], tx)
		rec := Record{State: StateNew, Payload: payload}
		if err := batch.Set(keyFor(tx.ID), encodeRecord(rec), nil); err != nil {
			return err
		}
	}
	return batch.Commit(o.sync)
}

func (o *Outbox) MarkSent(tradeID uint64) error {
	return o.update(tradeID, func(r *Record) { r.State = StateSent })
}

func (o *Outbox) MarkAcked(tradeID uint64) error {
	return o.update(tradeID, func(r *Record) { r.State = StateAcked })
}

// MarkFailed records a failed delivery attempt; the entry stays pending.
func (o *Outbox) MarkFailed(tradeID uint64) error {
	return o.update(tradeID, func(r *Record) {
		r.State = StateFailed
		r.Retries++
	})
}

func (o *Outbox) update(tradeID uint64, fn func(*Record)) error {
	rec, err := o.Get(tradeID)
	if err != nil {
		return err
	}
	fn(&rec)
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(tradeID), encodeRecord(rec), o.sync)
}

// Get returns the current record for a trade.
func (o *Outbox) Get(tradeID uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(tradeID))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, fmt.Errorf("%w: trade %d", ErrNotFound, tradeID)
	}
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()

	return decodeRecord(tradeID, val)
}

// -------------------- Scan --------------------

// ScanPending visits every entry not yet acknowledged, up to limit
// entries (limit <= 0 means all). A SENT entry is pending too: the
// process may have stopped before the ack was recorded.
func (o *Outbox) ScanPending(limit int, fn func(Record) error) error {
	seen := 0
	return o.scan(func(r Record) (bool, error) {
		if r.State == StateAcked {
			return true, nil
		}
		seen++
		if err := fn(r); err != nil {
			return false, err
		}
		return limit <= 0 || seen < limit, nil
	})
}

// Counts returns the number of entries per state.
func (o *Outbox) Counts() (map[State]int, error) {
	out := make(map[State]int, 4)
	err := o.scan(func(r Record) (bool, error) {
		out[r.State]++
		return true, nil
	})
	return out, err
}

// TruncateAckedUpTo deletes ACKED entries with trade id <= upTo.
func (o *Outbox) TruncateAckedUpTo(upTo uint64) (int, error) {
	batch := o.db.NewBatch()
	defer batch.Close()

	n := 0
	err := o.scan(func(r Record) (bool, error) {
		if r.TradeID > upTo {
			return false, nil
		}
		if r.State != StateAcked {
			return true, nil
		}
		n++
		return true, batch.Delete(keyFor(r.TradeID), nil)
	})
	if err != nil || n == 0 {
		return 0, err
	}
	return n, batch.Commit(o.sync)
}

func (o *Outbox) scan(fn func(Record) (bool, error)) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		id, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(id, iter.Value())
		if err != nil {
			return err
		}
		more, err := fn(rec)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

const keyPrefix = "tx/"

func keyFor(tradeID uint64) []byte {
	return []byte(fmt.Sprintf(keyPrefix+"%020d", tradeID))
}

func parseKey(b []byte) (uint64, error) {
	id, err := strconv.ParseUint(string(bytes.TrimPrefix(b, []byte(keyPrefix))), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: key %q", ErrInvalidRecord, b)
	}
	return id, nil
}
