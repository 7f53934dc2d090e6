package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/outbox"

	"github.com/segmentio/kafka-go"
)

var (
	ErrForwarderClosed = errors.New("kafkasink: forwarder closed")
	ErrNoBrokers       = errors.New("kafkasink: at least one broker is required")
	ErrNoTopic         = errors.New("kafkasink: topic is required")
)

const headerEventName = "event-name"

type Config struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	MaxAttempts  int
	RequiredAcks kafka.RequiredAcks
}

func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Topic == "" {
		return ErrNoTopic
	}
	return nil
}

// messageWriter is the part of *kafka.Writer the forwarder uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// envelope is the wire shape of every forwarded domain event.
type envelope struct {
	Event       string    `json:"event"`
	Key         string    `json:"key,omitempty"`
	ForwardedAt time.Time `json:"forwarded_at"`
	Payload     any       `json:"payload"`
}

// Forwarder writes domain events to one Kafka topic, keyed by the event's
// partition key so per-user (or per-product) ordering is kept.
type Forwarder struct {
	writer messageWriter
	topic  string
	closed atomic.Bool
	now    func() time.Time
}

func New(cfg Config) (*Forwarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = kafka.RequireAll
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		MaxAttempts:            cfg.MaxAttempts,
		RequiredAcks:           cfg.RequiredAcks,
		AllowAutoTopicCreation: true,
	}
	return newWithWriter(w, cfg.Topic), nil
}

func newWithWriter(w messageWriter, topic string) *Forwarder {
	return &Forwarder{writer: w, topic: topic, now: time.Now}
}

func (f *Forwarder) Forward(ctx context.Context, e domoutbox.Event) error {
	if f.closed.Load() {
		return ErrForwarderClosed
	}
	msg, err := f.encode(e)
	if err != nil {
		return err
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafkasink: write %s to %s: %w", e.EventName(), f.topic, err)
	}
	return nil
}

func (f *Forwarder) encode(e domoutbox.Event) (kafka.Message, error) {
	key := domoutbox.KeyOf(e)
	body, err := json.Marshal(envelope{
		Event:       e.EventName(),
		Key:         key,
		ForwardedAt: f.now().UTC(),
		Payload:     e,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafkasink: encode %s: %w", e.EventName(), err)
	}
	msg := kafka.Message{
		Value:   body,
		Headers: []kafka.Header{{Key: headerEventName, Value: []byte(e.EventName())}},
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	return msg, nil
}

// Close flushes pending batches; later Forward calls fail with ErrForwarderClosed.
func (f *Forwarder) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	return f.writer.Close()
}
