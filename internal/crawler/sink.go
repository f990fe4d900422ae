package crawler

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/internal/model"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// Batch is everything one predicate produced in a run.
type Batch struct {
	RunID     string
	Predicate string
	Records   []model.RepositoryRecord
}

// Sink receives one batch per drained predicate.
type Sink interface {
	Name() string
	Persist(ctx context.Context, batch Batch) error
}

// RepoUpserter is implemented by *model.Repo.
type RepoUpserter interface {
	UpsertBatch(ctx context.Context, records []model.RepositoryRecord) (int, error)
}

// Publisher is implemented by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// DatabaseSink upserts each batch in its own transaction.
type DatabaseSink struct {
	Logger log.Logger
	repo   RepoUpserter
}

func NewDatabaseSink(logger log.Logger, repo RepoUpserter) *DatabaseSink {
	return &DatabaseSink{Logger: logger, repo: repo}
}

func (s *DatabaseSink) Name() string { return cfg.SinkDatabase }

func (s *DatabaseSink) Persist(ctx context.Context, batch Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}
	n, err := s.repo.UpsertBatch(ctx, batch.Records)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", batch.Predicate, err)
	}
	recordsPersistedTotal.WithLabelValues(s.Name()).Add(float64(n))
	s.Logger.Info(ctx, "Saved %d repositories for %s", n, batch.Predicate)
	return nil
}

// KafkaSink publishes each batch as one message; cmd/consumer writes it to the database.
type KafkaSink struct {
	Logger    log.Logger
	publisher Publisher
	now       func() time.Time
}

func NewKafkaSink(logger log.Logger, publisher Publisher) *KafkaSink {
	return &KafkaSink{Logger: logger, publisher: publisher, now: time.Now}
}

func (s *KafkaSink) Name() string { return cfg.SinkKafka }

func (s *KafkaSink) Persist(ctx context.Context, batch Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}
	message := model.RepositoryBatchMessage{
		RunID:      batch.RunID,
		Predicate:  batch.Predicate,
		ProducedAt: s.now().UTC(),
		Records:    batch.Records,
	}
	if err := s.publisher.Publish(ctx, model.RepositoryBatchKey, message); err != nil {
		return fmt.Errorf("publish %s: %w", batch.Predicate, err)
	}
	recordsPersistedTotal.WithLabelValues(s.Name()).Add(float64(len(batch.Records)))
	s.Logger.Info(ctx, "Published %d repositories for %s", len(batch.Records), batch.Predicate)
	return nil
}

// Close closes the publisher when it holds a connection.
func (s *KafkaSink) Close() error {
	if closer, ok := s.publisher.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// LogSink only logs; used for dry runs.
type LogSink struct {
	Logger log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Name() string { return cfg.SinkLog }

func (s *LogSink) Persist(ctx context.Context, batch Batch) error {
	s.Logger.Info(ctx, "[dry-run] %s: %d repositories", batch.Predicate, len(batch.Records))
	for _, record := range batch.Records {
		s.Logger.Debug(ctx, "[dry-run] %s %d", record.Name, record.Stars)
	}
	recordsPersistedTotal.WithLabelValues(s.Name()).Add(float64(len(batch.Records)))
	return nil
}
