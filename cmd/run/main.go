package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/spf13/cobra"

	"github.com/thep200/github-star-sweeper/api"
	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// flagLoader applies command line overrides on top of the file/env configuration.
type flagLoader struct {
	base  cfg.Loader
	apply func(*cfg.Config)
}

func (l flagLoader) Load() (*cfg.Config, error) {
	config, err := l.base.Load()
	if err != nil {
		return nil, err
	}
	l.apply(config)
	return config, nil
}

func newRunCmd() *cobra.Command {
	var (
		configDirs []string
		sink       string
		maxRepos   int
		statusPort int
	)

	cmd := &cobra.Command{
		Use:          "run",
		Short:        "Sweep public GitHub repositories by star range into the configured sink",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			viperLoader, err := cfg.NewViperLoader(configDirs...)
			if err != nil {
				return err
			}
			loader, err := cfg.NewLoader(flagLoader{base: viperLoader, apply: func(config *cfg.Config) {
				if cmd.Flags().Changed("sink") {
					config.Sweep.Sink = sink
				}
				if cmd.Flags().Changed("max") {
					config.Sweep.MaxRepositories = maxRepos
				}
			}})
			if err != nil {
				return err
			}

			// Sweep chạy trên context riêng, tín hiệu dừng đi qua StopSweep
			sweepAPI := api.NewSweepAPI()
			if err := sweepAPI.Initialize(context.Background(), loader); err != nil {
				return err
			}
			defer sweepAPI.Close()

			logger := sweepAPI.Logger()
			defer func() { _ = log.Sync(logger) }()
			if status, err := sweepAPI.GetDatabaseStatus(); err == nil {
				logger.Info(ctx, "%s (sink %s)", status, sweepAPI.Config().Sweep.Sink)
			}

			if statusPort > 0 {
				server, err := sweepAPI.StatusServer(statusPort)
				if err != nil {
					return err
				}
				go func() {
					if err := server.Start(); err != nil {
						logger.Error(ctx, "Status server stopped: %v", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = server.Stop(shutdownCtx)
				}()
			}

			logger.Info(ctx, "Starting GitHub star sweep")
			if _, err := sweepAPI.StartSweep(); err != nil {
				return err
			}
			finished := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					if msg, err := sweepAPI.StopSweep(); err == nil {
						logger.Info(context.Background(), "%s", msg)
					}
				case <-finished:
				}
			}()
			sweepErr := sweepAPI.Wait(context.Background())
			close(finished)
			if sweepErr == nil && ctx.Err() != nil {
				sweepErr = ctx.Err()
			}

			stats, _ := sweepAPI.GetStats()
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d repositories\n", stats.Records)

			if url := sweepAPI.Config().Metrics.PushgatewayUrl; url != "" {
				pusher := push.New(url, sweepAPI.Config().Metrics.Job).
					Gatherer(prometheus.DefaultGatherer).
					Grouping("run_id", stats.RunID)
				if err := pusher.Push(); err != nil {
					logger.Warn(ctx, "Failed to push metrics to %s: %v", url, err)
				}
			}
			return sweepErr
		},
	}

	cmd.Flags().StringSliceVar(&configDirs, "config-dir", nil, "directories searched for mode.yaml (default cfg/yaml and .)")
	cmd.Flags().StringVar(&sink, "sink", cfg.SinkDatabase, "where batches go: database, kafka or log")
	cmd.Flags().IntVar(&maxRepos, "max", 0, "stop after this many repositories (0 = no limit)")
	cmd.Flags().IntVar(&statusPort, "status-port", 0, "serve /api/sweep, /healthz and /metrics on this port while sweeping (0 = off)")
	return cmd
}

func main() {
	if err := newRunCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
