// Package api cung cấp API public để điều khiển một lần sweep từ code khác (CLI, server, test)
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thep200/github-star-sweeper/cfg"
	crawlinfo "github.com/thep200/github-star-sweeper/internal/crawl_info"
	"github.com/thep200/github-star-sweeper/internal/crawler"
	"github.com/thep200/github-star-sweeper/internal/model"
	"github.com/thep200/github-star-sweeper/internal/ui"
	"github.com/thep200/github-star-sweeper/pkg/db"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// SweepStats chứa thống kê về lần sweep gần nhất
type SweepStats struct {
	RunID      string    `json:"runId"`
	Sink       string    `json:"sink"`
	IsRunning  bool      `json:"isRunning"`
	StartTime  time.Time `json:"startTime"`
	Duration   string    `json:"duration"`
	Partitions int       `json:"partitions"`
	Records    int       `json:"records"`
	Requests   int       `json:"requests"`
	Retries    int       `json:"retries"`
	BudgetHit  bool      `json:"budgetHit"`
	Overflow   []string  `json:"overflow,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
}

// SweepAPI wires config, logger, store and sweeper together and runs one sweep at a time.
type SweepAPI struct {
	ctx      context.Context
	config   *cfg.Config
	logger   log.Logger
	database *db.Database
	sweeper  *crawler.Sweeper

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

func NewSweepAPI() *SweepAPI {
	return &SweepAPI{}
}

// Initialize loads and validates configuration, opens the store when the sink needs it and builds the sweeper.
func (a *SweepAPI) Initialize(ctx context.Context, loader cfg.Loader) error {
	a.ctx = ctx

	config, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.config = config

	a.logger, err = log.NewFromConfig(config.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	if config.Sweep.Sink == cfg.SinkDatabase || config.Sweep.Sink == "" {
		if err := a.openDatabase(); err != nil {
			return err
		}
	}

	a.sweeper, err = crawler.FactoryCrawler(a.logger, config, a.database)
	if err != nil {
		return fmt.Errorf("failed to create sweeper: %w", err)
	}
	return nil
}

func (a *SweepAPI) openDatabase() error {
	database, err := db.NewDatabase(a.config)
	if err != nil {
		return err
	}
	if err := database.Ping(); err != nil {
		return fmt.Errorf("database %s unreachable: %w", database.Driver(), err)
	}
	repoMd, err := model.NewRepo(a.config, a.logger, database)
	if err != nil {
		return err
	}
	if err := database.Migrate(repoMd); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	a.database = database
	return nil
}

// Config is nil before Initialize.
func (a *SweepAPI) Config() *cfg.Config {
	return a.config
}

func (a *SweepAPI) Database() *db.Database {
	return a.database
}

func (a *SweepAPI) Logger() log.Logger {
	return a.logger
}

// StartSweep runs a sweep in the background. Only one sweep runs at a time.
func (a *SweepAPI) StartSweep() (string, error) {
	if a.sweeper == nil {
		return "", errors.New("sweep api is not initialized")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return "Sweep is already in progress", nil
	}

	ctx, cancel := context.WithCancel(a.ctx)
	a.running = true
	a.cancel = cancel
	a.done = make(chan struct{})
	a.lastErr = nil

	go func(done chan struct{}) {
		defer close(done)
		defer cancel()
		_, err := a.sweeper.Crawl(ctx)

		a.mu.Lock()
		a.running = false
		a.lastErr = err
		a.mu.Unlock()
	}(a.done)

	return "Started sweep", nil
}

// StopSweep cancels the running sweep; records already fetched for the current range are still persisted.
func (a *SweepAPI) StopSweep() (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.running {
		return "No sweep is in progress", nil
	}
	a.cancel()
	return "Stopping sweep", nil
}

// Wait blocks until the current sweep ends and returns its error.
func (a *SweepAPI) Wait(ctx context.Context) error {
	a.mu.RLock()
	done := a.done
	a.mu.RUnlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// Stats returns the live statistics of the current or last sweep, false before the first one.
func (a *SweepAPI) Stats() (crawlinfo.Stats, bool) {
	if a.sweeper == nil {
		return crawlinfo.Stats{}, false
	}
	summary := a.sweeper.Current()
	if summary == nil {
		return crawlinfo.Stats{}, false
	}
	return summary.Snapshot(), true
}

func (a *SweepAPI) GetStats() (*SweepStats, error) {
	stats, ok := a.Stats()
	if !ok {
		return &SweepStats{}, nil
	}

	a.mu.RLock()
	running := a.running
	a.mu.RUnlock()

	result := &SweepStats{
		RunID:      stats.RunID,
		Sink:       stats.Sink,
		IsRunning:  running,
		StartTime:  stats.StartedAt,
		Partitions: len(stats.Partitions),
		Records:    stats.Records,
		Requests:   stats.Requests,
		Retries:    stats.Retries,
		BudgetHit:  stats.BudgetHit,
		Overflow:   stats.Overflowing(),
		LastError:  stats.LastError,
	}
	if running || stats.FinishedAt.IsZero() {
		result.Duration = time.Since(stats.StartedAt).Round(time.Second).String()
	} else {
		result.Duration = stats.FinishedAt.Sub(stats.StartedAt).String()
	}
	return result, nil
}

// GetDatabaseStatus kiểm tra trạng thái kết nối cơ sở dữ liệu
func (a *SweepAPI) GetDatabaseStatus() (string, error) {
	if a.database == nil {
		return "Database not initialized", nil
	}
	if err := a.database.Ping(); err != nil {
		return "Database not connected: " + err.Error(), err
	}
	return "Database connected", nil
}

// StatusServer serves the live stats of this process's sweeps, and the store when the sink writes to one.
func (a *SweepAPI) StatusServer(port int) (*ui.Server, error) {
	if a.config == nil {
		return nil, errors.New("sweep api is not initialized")
	}
	return ui.NewServer(a.logger, a.config, a.database, a.Stats, port)
}

// Close stops a running sweep and releases the sink and store.
func (a *SweepAPI) Close() error {
	a.mu.RLock()
	cancel, done := a.cancel, a.done
	a.mu.RUnlock()
	if cancel != nil {
		cancel()
		<-done
	}

	var errs []error
	if a.sweeper != nil {
		errs = append(errs, a.sweeper.Close())
	}
	if a.database != nil {
		errs = append(errs, a.database.Close())
	}
	return errors.Join(errs...)
}
