package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/internal/clock"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// readErrorBackoff is the pause after a failed fetch before the reader is asked again.
const readErrorBackoff = time.Second

// MessageReader is the part of *kafka.Reader the consumer uses.
// Offsets are committed explicitly, only after a message was handled.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes the value of one message.
type Handler func(ctx context.Context, value []byte) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that no retry can fix (a malformed message).
// The consumer logs it and commits the message instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Consumer dispatches messages of one topic to handlers registered by message key
type Consumer struct {
	Config   *cfg.Config
	Logger   log.Logger
	topic    string
	reader   MessageReader
	clock    clock.Clock
	handlers map[string]Handler
}

// NewConsumer creates a group consumer for topic
func NewConsumer(config *cfg.Config, logger log.Logger, topic, groupID string) (*Consumer, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:       config.Kafka.Brokers,
		Topic:         topic,
		GroupID:       groupID,
		MinBytes:      10e3,        // 10KB
		MaxBytes:      10e6,        // 10MB
		MaxWait:       time.Second, // Maximum amount of time to wait for new data
		StartOffset:   kafka.FirstOffset,
		RetentionTime: 7 * 24 * time.Hour,
	})
	return NewConsumerWithReader(config, logger, topic, reader), nil
}

func NewConsumerWithReader(config *cfg.Config, logger log.Logger, topic string, reader MessageReader) *Consumer {
	return &Consumer{
		Config:   config,
		Logger:   logger,
		topic:    topic,
		reader:   reader,
		clock:    clock.NewSystem(),
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler registers a message handler for a specific message key
func (c *Consumer) RegisterHandler(key string, handler Handler) {
	c.handlers[key] = handler
}

// Start consumes until ctx is done or the reader is closed.
// A message is committed only after its handler succeeded (or failed permanently). A handler that
// keeps failing past retry.maxAttempts stops the consumer with an error and leaves the offset uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	c.Logger.Info(ctx, "Starting Kafka consumer for topic: %s", c.topic)

	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if stopped(ctx, err) {
				return nil
			}
			c.Logger.Error(ctx, "Error reading message: %v", err)
			if err := c.clock.Sleep(ctx, readErrorBackoff); err != nil {
				return nil
			}
			continue
		}

		key := string(message.Key)
		handler, exists := c.handlers[key]
		if !exists {
			c.Logger.Warn(ctx, "No handler registered for message with key: %s", key)
		} else if err := c.handle(ctx, handler, message); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			if stopped(ctx, err) {
				return nil
			}
			// Chưa commit thì message sẽ được đọc lại, upsert không bị trùng
			c.Logger.Error(ctx, "Failed to commit offset %d: %v", message.Offset, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler Handler, message kafka.Message) error {
	retry := c.Config.Retry
	delay := retry.Backoff
	for attempt := 1; ; attempt++ {
		err := handler(ctx, message.Value)
		if err == nil {
			c.Logger.Debug(ctx, "Processed message with key %s (offset %d)", message.Key, message.Offset)
			return nil
		}
		if IsPermanent(err) {
			c.Logger.Error(ctx, "Dropping message with key %s (offset %d): %v", message.Key, message.Offset, err)
			return nil
		}
		if retry.MaxAttempts > 0 && attempt >= retry.MaxAttempts {
			return fmt.Errorf("message with key %s (offset %d) failed after %d attempts: %w",
				message.Key, message.Offset, attempt, err)
		}

		c.Logger.Warn(ctx, "Error handling message with key %s (offset %d), attempt %d, retrying in %v: %v",
			message.Key, message.Offset, attempt, delay, err)
		if err := c.clock.Sleep(ctx, delay); err != nil {
			return err
		}
		if retry.Multiplier > 1 {
			delay = time.Duration(float64(delay) * retry.Multiplier)
		}
		if retry.MaxBackoff > 0 && delay > retry.MaxBackoff {
			delay = retry.MaxBackoff
		}
	}
}

func stopped(ctx context.Context, err error) bool {
	// Reader đã bị đóng
	return ctx.Err() != nil || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
