package broadcaster

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	exitwal "matchbook/infra/wal/exit"
)

const (
	DefaultInterval = 250 * time.Millisecond
	DefaultBatch    = 512
)

// Broadcaster drains the trade outbox into Kafka. Each entry is marked
// SENT before the send and ACKED after the broker confirms it, so a
// crash between the two re-sends rather than drops.
type Broadcaster struct {
	outbox   *exitwal.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	batch    int
	log      *zap.Logger
}

type Option func(*Broadcaster)

func WithInterval(d time.Duration) Option { return func(b *Broadcaster) { b.interval = d } }
func WithBatch(n int) Option              { return func(b *Broadcaster) { b.batch = n } }
func WithLogger(l *zap.Logger) Option     { return func(b *Broadcaster) { b.log = l } }

// Stats summarizes one drain pass.
type Stats struct {
	Sent   int
	Failed int
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

// NewSyncProducer dials brokers with acks from all in-sync replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	return sarama.NewSyncProducer(brokers, cfg)
}

func New(
	outbox *exitwal.Outbox,
	producer sarama.SyncProducer,
	topic string,
	opts ...Option,
) *Broadcaster {
	b := &Broadcaster{
		outbox:   outbox,
		producer: producer,
		topic:    topic,
		interval: DefaultInterval,
		batch:    DefaultBatch,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.interval <= 0 {
		b.interval = DefaultInterval
	}
	if b.batch <= 0 {
		b.batch = DefaultBatch
	}
	b.log = b.log.Named("broadcaster")
	return b
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run drains the outbox every interval until ctx is done, then makes
// one final pass.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info("started", zap.String("topic", b.topic), zap.Duration("interval", b.interval))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_, err := b.DrainOnce()
			b.log.Info("stopped")
			return err

		case <-ticker.C:
			if _, err := b.DrainOnce(); err != nil {
				b.log.Error("drain failed", zap.Error(err))
			}
		}
	}
}

// ------------------------------------------------
// DRAIN
// ------------------------------------------------

// DrainOnce publishes up to one batch of pending entries. A failed
// send leaves the entry FAILED for the next pass; outbox errors abort
// the pass.
func (b *Broadcaster) DrainOnce() (Stats, error) {
	var st Stats
	err := b.outbox.ScanPending(b.batch, func(rec exitwal.Record) error {
		if err := b.outbox.MarkSent(rec.TradeID); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(strconv.FormatUint(rec.TradeID, 10)),
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			st.Failed++
			b.log.Warn("send failed",
				zap.Uint64("trade_id", rec.TradeID),
				zap.Uint32("retries", rec.Retries+1),
				zap.Error(err))
			return b.outbox.MarkFailed(rec.TradeID)
		}

		st.Sent++
		return b.outbox.MarkAcked(rec.TradeID)
	})
	if st.Sent > 0 || st.Failed > 0 {
		b.log.Debug("drained", zap.Int("sent", st.Sent), zap.Int("failed", st.Failed))
	}
	return st, err
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	err := b.producer.Close()
	if errors.Is(err, sarama.ErrClosedClient) {
		return nil
	}
	return err
}
