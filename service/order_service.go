package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
	"matchbook/infra/metrics"
	"matchbook/infra/sequence"
	entrywal "matchbook/infra/wal/entry"
	"matchbook/snapshot"
)

var (
	ErrJournal  = errors.New("service: journal append failed")
	ErrPublish  = errors.New("service: trade publication failed")
	ErrNotFresh = errors.New("service: recovery needs an untouched book")
	ErrNotFound = errors.New("service: order not resting")
)

// Publisher receives every batch of trades produced by Execute.
type Publisher interface {
	Publish(ctx context.Context, txs []orderbook.Transaction) error
}

type namedPublisher struct {
	name string
	pub  Publisher
}

type Options struct {
	Book orderbook.Config
	// Journal, if set, records every command before it is applied.
	Journal *entrywal.WAL
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

/*
OrderService is the ONLY write entry point into the book.

All coordination between:
- domain (orderbook)
- infra (journal, publishers, metrics)
- snapshot
happens here, under one mutex.
*/
type OrderService struct {
	mu         sync.Mutex
	bookCfg    orderbook.Config
	book       *orderbook.Book
	ids        *sequence.Sequencer
	journalSeq *sequence.Sequencer
	journal    *entrywal.WAL
	publishers []namedPublisher
	metrics    *metrics.Metrics
	log        *zap.Logger
	touched    bool
}

func NewOrderService(opts Options) *OrderService {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ids := sequence.New(0)
	opts.Book.IDs = ids
	return &OrderService{
		bookCfg:    opts.Book,
		book:       orderbook.New(opts.Book),
		ids:        ids,
		journalSeq: sequence.New(0),
		journal:    opts.Journal,
		metrics:    opts.Metrics,
		log:        opts.Logger.Named("order_service"),
	}
}

// AddPublisher registers a trade sink. Call before serving traffic.
func (s *OrderService) AddPublisher(name string, p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishers = append(s.publishers, namedPublisher{name: name, pub: p})
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// Place rests a new limit order without matching it.
func (s *OrderService) Place(side orderbook.Side, price, shares int64) (orderbook.OrderRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.metrics.Observe(metrics.OpAdd, time.Now())

	if err := s.record(codec.Command{Kind: codec.CommandAdd, Side: side, Price: price, Shares: shares}); err != nil {
		return orderbook.NilRef, err
	}
	ref, err := s.book.AddOrder(side, price, shares)
	if err != nil {
		s.metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
		return orderbook.NilRef, err
	}
	s.metrics.OrdersAccepted.WithLabelValues(side.String()).Inc()
	s.metrics.RestingOrders.Set(float64(s.book.Resting()))
	return ref, nil
}

// Cancel removes the resting order with the given id.
func (s *OrderService) Cancel(id orderbook.OrderID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.metrics.Observe(metrics.OpCancel, time.Now())

	if err := s.record(codec.Command{Kind: codec.CommandCancel, OrderID: id}); err != nil {
		return false, err
	}
	ok := s.book.CancelByID(id)
	if ok {
		s.metrics.Cancels.Inc()
		s.metrics.RestingOrders.Set(float64(s.book.Resting()))
	}
	return ok, nil
}

// Reduce lowers a resting order by qty, keeping its priority.
func (s *OrderService) Reduce(id orderbook.OrderID, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.metrics.Observe(metrics.OpReduce, time.Now())

	ref, ok := s.book.Ref(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err := s.record(codec.Command{Kind: codec.CommandReduce, OrderID: id, Shares: qty}); err != nil {
		return err
	}
	if err := s.book.ReduceOrder(ref, qty); err != nil {
		return err
	}
	s.metrics.RestingOrders.Set(float64(s.book.Resting()))
	return nil
}

// Execute crosses the book and hands the resulting trades to every
// publisher. Trades are returned even when a publisher fails.
func (s *OrderService) Execute(ctx context.Context, now int64) ([]orderbook.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := time.Now()

	if err := s.record(codec.Command{Kind: codec.CommandExecute, Now: now}); err != nil {
		return nil, err
	}
	txs := s.book.ExecuteOrders(now)
	s.metrics.Observe(metrics.OpExecute, start)
	if len(txs) == 0 {
		return nil, nil
	}

	var shares int64
	for _, tx := range txs {
		shares += tx.Qty
	}
	s.metrics.Trades.Add(float64(len(txs)))
	s.metrics.TradedShares.Add(float64(shares))
	s.metrics.RestingOrders.Set(float64(s.book.Resting()))

	return txs, s.publish(ctx, txs)
}

func (s *OrderService) publish(ctx context.Context, txs []orderbook.Transaction) error {
	var errs []error
	for _, p := range s.publishers {
		if err := p.pub.Publish(ctx, txs); err != nil {
			s.metrics.PublishErrors.WithLabelValues(p.name).Inc()
			s.log.Error("publish failed",
				zap.String("publisher", p.name),
				zap.Int("trades", len(txs)),
				zap.Uint64("first_trade", txs[0].ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPublish, errors.Join(errs...))
	}
	return nil
}

// record journals c under the next journal sequence.
func (s *OrderService) record(c codec.Command) error {
	s.touched = true
	if s.journal == nil {
		return nil
	}
	seq := s.journalSeq.Next()
	if err := s.journal.Append(entrywal.NewRecord(seq, c)); err != nil {
		s.log.Error("journal append failed", zap.Uint64("seq", seq), zap.Stringer("kind", c.Kind), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrJournal, err)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, orderbook.ErrCapacityExhausted):
		return "capacity"
	case errors.Is(err, orderbook.ErrInvalidOrder):
		return "invalid"
	default:
		return "other"
	}
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) BestBid() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.BestBid()
}

func (s *OrderService) BestAsk() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.BestAsk()
}

func (s *OrderService) Depth(side orderbook.Side, n int) []orderbook.LevelView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Depth(side, n)
}

func (s *OrderService) Lookup(id orderbook.OrderID) (orderbook.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Lookup(id)
}

// Orders returns side's resting orders in priority order.
func (s *OrderService) Orders(side orderbook.Side) []orderbook.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orderbook.Order
	s.book.WalkOrders(side, func(o orderbook.Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

// Transactions returns a copy of the ledger.
func (s *OrderService) Transactions() []orderbook.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Transactions()
}

// Stats is a point-in-time summary of the book.
type Stats struct {
	Resting     int
	BidLevels   int
	AskLevels   int
	Trades      int
	LastOrderID uint64
	LastTradeID uint64
	JournalSeq  uint64
}

func (s *OrderService) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Resting:     s.book.Resting(),
		BidLevels:   s.book.Levels(orderbook.Buy),
		AskLevels:   s.book.Levels(orderbook.Sell),
		Trades:      s.book.TransactionCount(),
		LastOrderID: s.ids.Current(),
		LastTradeID: s.book.LastTradeID(),
		JournalSeq:  s.journalSeq.Current(),
	}
}

// Snapshot captures the resting orders together with the journal
// position they reflect.
func (s *OrderService) Snapshot() *snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot.Capture(s.book, s.journalSeq.Current(), s.ids.Current())
}

// CheckInvariants validates the whole book.
func (s *OrderService) CheckInvariants() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.CheckInvariants()
}
