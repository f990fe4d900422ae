package crawler

import (
	"context"
	"fmt"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/internal/clock"
	githubapi "github.com/thep200/github-star-sweeper/internal/github_api"
	"github.com/thep200/github-star-sweeper/internal/model"
	"github.com/thep200/github-star-sweeper/pkg/db"
	"github.com/thep200/github-star-sweeper/pkg/kafka"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// FactorySink chọn sink theo cấu hình sweep.sink
func FactorySink(logger log.Logger, config *cfg.Config, database *db.Database) (Sink, error) {
	switch config.Sweep.Sink {
	case cfg.SinkDatabase, "":
		repoMd, err := model.NewRepo(config, logger, database)
		if err != nil {
			return nil, err
		}
		return NewDatabaseSink(logger, repoMd), nil
	case cfg.SinkKafka:
		producer, err := kafka.NewProducer(config, logger, config.Kafka.Producer.TopicRepo)
		if err != nil {
			return nil, err
		}
		logger.Info(context.Background(), "Publishing repository batches to topic %s", producer.Topic())
		return NewKafkaSink(logger, producer), nil
	case cfg.SinkLog:
		return NewLogSink(logger), nil
	default:
		return nil, fmt.Errorf("unsupported sink: %s", config.Sweep.Sink)
	}
}

// FactoryCrawler wires a sweeper against the live GraphQL API.
func FactoryCrawler(logger log.Logger, config *cfg.Config, database *db.Database) (*Sweeper, error) {
	sink, err := FactorySink(logger, config, database)
	if err != nil {
		return nil, err
	}
	clk := clock.NewSystem()
	fetcher := NewFetcher(logger, config, githubapi.NewCaller(logger, config), clk)
	return NewSweeper(logger, config, fetcher, sink, clk)
}
