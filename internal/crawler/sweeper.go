package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/internal/clock"
	crawlinfo "github.com/thep200/github-star-sweeper/internal/crawl_info"
	"github.com/thep200/github-star-sweeper/internal/partition"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// Sweeper walks every predicate once, in order, and hands each predicate's records to the sink.
type Sweeper struct {
	Logger log.Logger
	Config *cfg.Config

	// OnPartition, when set, is called after each predicate with its statistics.
	OnPartition func(info crawlinfo.Info)

	partitioner *partition.Partitioner
	fetcher     *Fetcher
	sink        Sink
	clock       clock.Clock
	newRunID    func() string

	mu      sync.Mutex
	current *crawlinfo.Summary
}

func NewSweeper(logger log.Logger, config *cfg.Config, fetcher *Fetcher, sink Sink, clk clock.Clock) (*Sweeper, error) {
	partitioner, err := partition.New(config.Sweep.Bands, config.Sweep.Qualifiers)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep bands: %w", err)
	}
	if fetcher == nil || sink == nil {
		return nil, fmt.Errorf("sweeper needs a fetcher and a sink")
	}
	return &Sweeper{
		Logger:      logger,
		Config:      config,
		partitioner: partitioner,
		fetcher:     fetcher,
		sink:        sink,
		clock:       clk,
		newRunID:    uuid.NewString,
	}, nil
}

// Current returns the summary of the running or last finished sweep, nil before the first one.
func (s *Sweeper) Current() *crawlinfo.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Crawl runs one sweep. Records of a predicate are persisted before the next predicate starts,
// including the partial records of a predicate that failed. The returned summary is never nil.
func (s *Sweeper) Crawl(ctx context.Context) (*crawlinfo.Summary, error) {
	runID := s.newRunID()
	ctx = log.WithRunID(ctx, runID)
	summary := crawlinfo.NewSummary(runID, s.sink.Name(), s.clock.Now())
	s.mu.Lock()
	s.current = summary
	s.mu.Unlock()

	budget := NewGlobalBudget(s.Config.Sweep.MaxRepositories)
	s.Logger.Info(ctx, "Starting sweep %s: sink=%s budget=%d qualifiers=%q", runID, s.sink.Name(), budget.Limit(), s.partitioner.Qualifiers())

	var sweepErr error
	for pred := range s.partitioner.All() {
		if budget.Exhausted() {
			s.Logger.Info(ctx, "Budget of %d repositories reached, stopping before %s", budget.Limit(), pred)
			break
		}
		if err := ctx.Err(); err != nil {
			sweepErr = err
			break
		}

		started := s.clock.Now()
		result, fetchErr := s.fetcher.Fetch(ctx, pred, budget.Remaining())
		budget.Consume(len(result.Records))

		// Vẫn lưu phần đã lấy được khi bị hủy hoặc hết lượt thử lại
		persistErr := s.sink.Persist(context.WithoutCancel(ctx), Batch{
			RunID:     runID,
			Predicate: pred.String(),
			Records:   result.Records,
		})

		info := crawlinfo.Info{
			Predicate:       pred.String(),
			RepositoryCount: result.RepositoryCount,
			Records:         len(result.Records),
			Pages:           result.Pages,
			Requests:        result.Requests,
			Retries:         result.Retries,
			BudgetHit:       result.BudgetHit,
			Overflow:        result.RepositoryCount > partition.ResultWindow,
			Duration:        s.clock.Now().Sub(started),
		}
		summary.Add(info)
		if s.OnPartition != nil {
			s.OnPartition(info)
		}

		if fetchErr != nil || persistErr != nil {
			var errs []error
			if fetchErr != nil {
				errs = append(errs, fmt.Errorf("fetch %s: %w", pred, fetchErr))
			}
			if persistErr != nil {
				errs = append(errs, fmt.Errorf("persist %s: %w", pred, persistErr))
			}
			sweepErr = errors.Join(errs...)
			break
		}
		partitionsCompletedTotal.Inc()
		s.Logger.Debug(ctx, "Finished %s: %d records, %d pages, %d retries, total %d",
			pred, info.Records, info.Pages, info.Retries, budget.Consumed())
	}

	summary.Finish(s.clock.Now(), sweepErr)
	stats := summary.Snapshot()
	if sweepErr != nil {
		s.Logger.Error(ctx, "Sweep %s stopped after %d repositories: %v", runID, stats.Records, sweepErr)
		return summary, sweepErr
	}

	lastSweepSuccess.SetToCurrentTime()
	if overflow := stats.Overflowing(); len(overflow) > 0 {
		s.Logger.Warn(ctx, "%d predicates exceeded the %d result window: %v", len(overflow), partition.ResultWindow, overflow)
	}
	s.Logger.Info(ctx, "Sweep %s finished: %d repositories, %d requests, %d retries in %v",
		runID, stats.Records, stats.Requests, stats.Retries, stats.FinishedAt.Sub(stats.StartedAt))
	return summary, nil
}

// Close releases the sink when it holds a connection.
func (s *Sweeper) Close() error {
	if closer, ok := s.sink.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
