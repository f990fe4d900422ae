package crawler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/thep200/github-star-sweeper/internal/model"
	"github.com/thep200/github-star-sweeper/pkg/kafka"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// RepositoryBatchHandler writes batches published by KafkaSink with the same upsert the database sink uses.
func RepositoryBatchHandler(logger log.Logger, repo RepoUpserter) kafka.Handler {
	return func(ctx context.Context, value []byte) error {
		var message model.RepositoryBatchMessage
		if err := json.Unmarshal(value, &message); err != nil {
			return kafka.Permanent(fmt.Errorf("failed to unmarshal repository batch: %w", err))
		}
		ctx = log.WithRunID(ctx, message.RunID)

		n, err := repo.UpsertBatch(ctx, message.Records)
		if err != nil {
			return fmt.Errorf("failed to save batch %s: %w", message.Predicate, err)
		}
		recordsPersistedTotal.WithLabelValues(consumerSinkLabel).Add(float64(n))
		logger.Info(ctx, "Saved %d repositories for %s", n, message.Predicate)
		return nil
	}
}

const consumerSinkLabel = "kafka_consumer"
