package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the Kafka notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes each event to a topic keyed by snipe id, so every event for
// one snipe lands on the same partition.
type Kafka struct {
	Writer MessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func (k Kafka) Notify(ctx context.Context, e Event) error {
	b, err := e.encode()
	if err != nil {
		return err
	}
	err = k.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.SnipeID),
		Value: b,
		Time:  e.At,
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k Kafka) Close() error { return k.Writer.Close() }
