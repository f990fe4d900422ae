package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/internal/crawler"
	"github.com/thep200/github-star-sweeper/internal/model"
	"github.com/thep200/github-star-sweeper/pkg/db"
	"github.com/thep200/github-star-sweeper/pkg/kafka"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

func newConsumerCmd() *cobra.Command {
	var configDirs []string

	cmd := &cobra.Command{
		Use:          "consumer",
		Short:        "Write repository batches published by the kafka sink into the database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Load configuration
			loader, err := cfg.NewViperLoader(configDirs...)
			if err != nil {
				return err
			}
			config, err := loader.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err := log.NewFromConfig(config.Log)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync(logger) }()

			// Setup database
			database, err := db.NewDatabase(config)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := database.Ping(); err != nil {
				return fmt.Errorf("database %s unreachable: %w", database.Driver(), err)
			}
			repoModel, err := model.NewRepo(config, logger, database)
			if err != nil {
				return err
			}
			if err := database.Migrate(repoModel); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			consumer, err := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicRepo, config.Kafka.GroupID)
			if err != nil {
				return err
			}
			defer consumer.Close()
			consumer.RegisterHandler(model.RepositoryBatchKey, crawler.RepositoryBatchHandler(logger, repoModel))

			logger.Info(ctx, "Repository consumer started (group %s)", config.Kafka.GroupID)
			err = consumer.Start(ctx)
			logger.Info(ctx, "Repository consumer stopped")
			return err
		},
	}

	cmd.Flags().StringSliceVar(&configDirs, "config-dir", nil, "directories searched for mode.yaml (default cfg/yaml and .)")
	return cmd
}

func main() {
	if err := newConsumerCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
