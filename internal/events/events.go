// Package events publishes migration outcomes to kafka.
//
// A [Publisher] receives one [Event] per migrated or failed item. [Noop] is used when no
// brokers are configured; [KafkaPublisher] writes JSON messages keyed by the source key so
// all events about one item land on the same partition.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	TypeCompleted = "migration.completed"
	TypeFailed    = "migration.failed"

	DefaultTopic = "gpyt.migrations"
)

// Event describes the outcome of one item.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	SourceKey string    `json:"source_key"`
	Reference string    `json:"reference,omitempty"`
	Bytes     int64     `json:"bytes,omitempty"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Completed builds the event for a committed item.
func Completed(runID, key, ref string, bytes int64) Event {
	return Event{ID: uuid.NewString(), Type: TypeCompleted, RunID: runID, SourceKey: key, Reference: ref, Bytes: bytes, Time: time.Now().UTC()}
}

// Failed builds the event for a failed item.
func Failed(runID, key string, err error) Event {
	e := Event{ID: uuid.NewString(), Type: TypeFailed, RunID: runID, SourceKey: key, Time: time.Now().UTC()}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// messageWriter is the part of [kafkago.Writer] the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events to a kafka topic.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher for cfg. It fails when no brokers are configured.
func NewKafkaPublisher(cfg shared.EventsConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: events.brokers is empty", shared.ErrInvalidConfig)
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: kafkago.RequireOne,
			Compression:  CompressionFromString(cfg.Compression),
		},
		topic: topic,
	}, nil
}

// New returns a kafka publisher when brokers are configured and [Noop] otherwise.
func New(cfg shared.EventsConfig) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return Noop{}, nil
	}
	return NewKafkaPublisher(cfg)
}

// Topic returns the destination topic.
func (p *KafkaPublisher) Topic() string { return p.topic }

// Publish encodes e as JSON and writes it keyed by the source key.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(e.SourceKey),
		Value: value,
		Time:  e.Time,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// CompressionFromString maps a codec name to its kafka-go value. Unknown names mean snappy.
func CompressionFromString(name string) kafkago.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafkago.Gzip
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return kafkago.Snappy
	}
}
