package decisionlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the KafkaWriter uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter streams events to a Kafka topic, keyed by device ID so every
// decision about one device lands on the same partition.
type KafkaWriter struct {
	w      MessageWriter
	closed atomic.Bool
}

var _ Writer = (*KafkaWriter)(nil)

// NewKafkaWriter creates a writer producing to topic on brokers.
//
// Parameters:
//   - brokers: Bootstrap broker addresses (host:port)
//   - topic: Destination topic
//   - batchTimeout: Maximum time a message waits for its batch to fill
func NewKafkaWriter(brokers []string, topic string, batchTimeout time.Duration) *KafkaWriter {
	return NewKafkaWriterWith(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

// NewKafkaWriterWith wraps an existing message writer.
func NewKafkaWriterWith(w MessageWriter) *KafkaWriter {
	return &KafkaWriter{w: w}
}

// Write implements Writer.
func (k *KafkaWriter) Write(ctx context.Context, e Event) error {
	if k.closed.Load() {
		return ErrWriterClosed
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling decision event: %w", err)
	}

	key := e.DeviceID
	if key == "" {
		key = string(e.Type)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing to kafka: %w", err)
	}
	return nil
}

// Close flushes pending messages and releases the connection.
func (k *KafkaWriter) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := k.w.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing kafka writer: %w", err)
	}
	return nil
}
