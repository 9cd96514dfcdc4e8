package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"dfas-hq/dfas/pkg/evidence"
)

// KafkaConfig configures the custody event stream.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic receives one message per committed custody entry.
	Topic string

	// MaxAttempts is how many times a publish is tried.
	// Default: 3
	MaxAttempts int

	// WriteTimeout bounds each attempt.
	// Default: 10s
	WriteTimeout time.Duration
}

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink streams committed custody entries to a Kafka topic. Messages are
// keyed by case ID, so every entry of a case lands on one partition in
// sequence order.
type KafkaSink struct {
	writer       messageWriter
	topic        string
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
	logger       *slog.Logger
}

// NewKafkaSink creates a sink writing to cfg.Topic.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaSink(w, cfg), nil
}

func newKafkaSink(w messageWriter, cfg KafkaConfig) *KafkaSink {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &KafkaSink{
		writer:       w,
		topic:        cfg.Topic,
		maxAttempts:  cfg.MaxAttempts,
		writeTimeout: cfg.WriteTimeout,
		backoff:      100 * time.Millisecond,
		logger:       slog.Default().With("component", "evidence.sink.kafka"),
	}
}

// custodyEvent is the message value.
type custodyEvent struct {
	Type  string                 `json:"type"`
	Entry *evidence.CustodyEntry `json:"entry"`
}

// Publish implements evidence.CustodySink.
func (s *KafkaSink) Publish(ctx context.Context, entry *evidence.CustodyEntry) error {
	value, err := json.Marshal(custodyEvent{Type: "custody." + entry.Action, Entry: entry})
	if err != nil {
		return fmt.Errorf("marshal custody entry: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(entry.CaseID),
		Value: value,
		Time:  entry.Timestamp,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	}

	var lastErr error
	backoff := s.backoff
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
		err := s.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		s.logger.Debug("custody publish attempt failed",
			"attempt", attempt,
			"sequence", entry.Sequence,
			"error", err,
		)

		if attempt == s.maxAttempts {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}

	return fmt.Errorf("publish to %s failed after %d attempts: %w", s.topic, s.maxAttempts, lastErr)
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
