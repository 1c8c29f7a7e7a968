package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"matchbook/domain/orderbook"
	"matchbook/infra/codec"
)

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes trades straight to a topic, one message per
// trade keyed by trade id.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes a batch of trades in one call.
func (p *Producer) Publish(ctx context.Context, txs []orderbook.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(txs))
	for i, tx := range txs {
		msgs[i] = Message(tx)
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Message renders a trade as a Kafka message.
func Message(tx orderbook.Transaction) kafka.Message {
	return kafka.Message{
		Key:   strconv.AppendUint(nil, tx.ID, 10),
		Value: codec.MarshalTransaction(tx),
		Time:  time.Unix(0, tx.Time),
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
