package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rustyeddy/intraday/journal"
	"github.com/rustyeddy/intraday/portfolio"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka emits closed trades and risk events as JSON envelopes keyed by
// symbol. States are only sent when Snapshots is set; they are large and
// Redis already carries the latest one.
type Kafka struct {
	writer    messageWriter
	topic     string
	Snapshots bool
}

func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Kafka{writer: w, topic: topic}
}

func (k *Kafka) PublishState(ctx context.Context, st portfolio.State) error {
	if !k.Snapshots {
		return nil
	}
	return k.publish(ctx, "portfolio", Envelope{Type: TypeState, Time: st.Time, State: &st})
}

func (k *Kafka) PublishTrade(ctx context.Context, t journal.TradeRecord) error {
	return k.publish(ctx, t.Symbol, Envelope{Type: TypeTrade, Time: t.CloseTime, Trade: &t})
}

func (k *Kafka) PublishEvent(ctx context.Context, e journal.Event) error {
	key := e.Symbol
	if key == "" {
		key = string(e.Kind)
	}
	return k.publish(ctx, key, Envelope{Type: TypeEvent, Time: e.Time, Event: &e})
}

func (k *Kafka) publish(ctx context.Context, key string, env Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", env.Type, err)
	}
	msg := kafka.Message{Key: []byte(key), Value: data}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
