package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/internal/model"
	"github.com/thep200/github-star-sweeper/internal/ui"
	"github.com/thep200/github-star-sweeper/pkg/db"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

func newServerCmd() *cobra.Command {
	var (
		configDirs []string
		port       int
	)

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the swept repositories, health and metrics over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

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

			// Đổi log level khi file cấu hình thay đổi
			if zapLogger, ok := logger.(*log.ZapLogger); ok && loader.IsWatchChange() {
				loader.RegisterConfigChangeCallback(func(changed *cfg.Config) {
					if err := zapLogger.SetLevel(changed.Log.Level); err != nil {
						logger.Warn(ctx, "Ignoring log level %q: %v", changed.Log.Level, err)
					}
				})
			}

			database, err := db.NewDatabase(config)
			if err != nil {
				return err
			}
			defer database.Close()
			repoMd, err := model.NewRepo(config, logger, database)
			if err != nil {
				return err
			}
			if err := database.Migrate(repoMd); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			if !cmd.Flags().Changed("port") {
				port = config.Server.Port
			}
			server, err := ui.NewServer(logger, config, database, nil, port)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		},
	}

	cmd.Flags().StringSliceVar(&configDirs, "config-dir", nil, "directories searched for mode.yaml (default cfg/yaml and .)")
	cmd.Flags().IntVar(&port, "port", 8080, "listen port, overrides server.port")
	return cmd
}

func main() {
	if err := newServerCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
