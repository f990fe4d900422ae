package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

var ErrNoBrokers = errors.New("no kafka brokers configured")

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON messages to one topic
type Producer struct {
	Config *cfg.Config
	Logger log.Logger
	topic  string
	writer MessageWriter
}

// NewProducer creates a producer writing to topic on the configured brokers
func NewProducer(config *cfg.Config, logger log.Logger, topic string) (*Producer, error) {
	if len(config.Kafka.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, errors.New("kafka topic is empty")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Kafka.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(config, logger, topic, writer), nil
}

func NewProducerWithWriter(config *cfg.Config, logger log.Logger, topic string, writer MessageWriter) *Producer {
	return &Producer{
		Config: config,
		Logger: logger,
		topic:  topic,
		writer: writer,
	}
}

func (p *Producer) Topic() string {
	return p.topic
}

// Publish sends value as JSON under key
func (p *Producer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka topic %s: %w", p.topic, err)
	}
	p.Logger.Debug(ctx, "Published %d bytes to %s key=%s", len(jsonBytes), p.topic, key)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
