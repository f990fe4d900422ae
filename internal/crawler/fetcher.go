package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/internal/clock"
	githubapi "github.com/thep200/github-star-sweeper/internal/github_api"
	"github.com/thep200/github-star-sweeper/internal/limiter"
	"github.com/thep200/github-star-sweeper/internal/model"
	"github.com/thep200/github-star-sweeper/internal/partition"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// SearchClient requests one page of search results.
type SearchClient interface {
	Search(ctx context.Context, query, cursor string, first int) (*githubapi.SearchPage, error)
}

type fetchState string

const (
	stateRequesting       fetchState = "requesting"
	stateBackoffTransient fetchState = "backoff_transient"
	stateBackoffRateLimit fetchState = "backoff_rate_limit"
	stateBackoffAppError  fetchState = "backoff_app_error"
	stateDone             fetchState = "done"
)

// Unlimited is passed as remaining budget when the sweep has no ceiling.
const Unlimited = -1

// FetchResult is what one predicate produced. Records are in cursor order with no repeated names.
type FetchResult struct {
	Records         []model.RepositoryRecord
	Pages           int
	Requests        int
	Retries         int
	BudgetHit       bool
	RepositoryCount int
}

// Fetcher drains one star range predicate through cursor pagination.
type Fetcher struct {
	Logger     log.Logger
	Policy     RetryPolicy
	client     SearchClient
	clock      clock.Clock
	limiter    *limiter.RateLimiter
	pageSize   int
	pageDelay  time.Duration
	qualifiers string
}

func NewFetcher(logger log.Logger, config *cfg.Config, client SearchClient, clk clock.Clock) *Fetcher {
	return &Fetcher{
		Logger:     logger,
		Policy:     NewRetryPolicy(config.Retry),
		client:     client,
		clock:      clk,
		limiter:    limiter.NewRateLimiter(config.GithubApi.RequestsPerSecond, clk),
		pageSize:   config.Sweep.PageSize,
		pageDelay:  config.Sweep.PageDelay,
		qualifiers: config.Sweep.Qualifiers,
	}
}

// Fetch requests pages for pred until the results run out or remaining records have been collected.
// remaining is Unlimited or a non-negative count. A failing page is retried in place per Policy;
// when retries are exhausted the error wraps ErrRetryExhausted and the result holds what was received.
func (f *Fetcher) Fetch(ctx context.Context, pred partition.RangePredicate, remaining int) (*FetchResult, error) {
	result := &FetchResult{}
	if remaining == 0 {
		result.BudgetHit = true
		return result, nil
	}

	query := pred.Query(f.qualifiers)
	seen := make(map[string]struct{})
	state := stateRequesting
	cursor := ""
	attempt := 0

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return result, err
		}

		result.Requests++
		searchRequestsTotal.Inc()
		page, err := f.client.Search(ctx, query, cursor, f.pageSize)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			class := githubapi.Classify(err)
			if class == githubapi.ErrorClassUnknown {
				return result, fmt.Errorf("search %s: %w", pred, err)
			}

			attempt++
			if f.Policy.Exhausted(attempt) {
				searchRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
				f.Logger.Error(ctx, "Giving up on %s cursor=%q after %d attempts: %v", pred, cursor, attempt, err)
				return result, fmt.Errorf("%w: %s after %d attempts: %w", ErrRetryExhausted, pred, attempt, err)
			}

			delay := f.Policy.Delay(err, attempt, f.clock.Now())
			state = f.transition(ctx, pred, state, backoffState(class))
			f.Logger.Warn(ctx, "Page of %s failed (%s, attempt %d), retrying in %v: %v", pred, class, attempt, delay, err)

			result.Retries++
			searchRetriesTotal.WithLabelValues(string(class)).Inc()
			if err := f.wait(ctx, string(class), delay); err != nil {
				return result, err
			}
			continue
		}

		attempt = 0
		state = f.transition(ctx, pred, state, stateRequesting)
		result.Pages++
		if result.Pages == 1 {
			result.RepositoryCount = page.RepositoryCount
			if page.RepositoryCount > partition.ResultWindow {
				partitionsOverflowTotal.Inc()
				f.Logger.Warn(ctx, "%s reports %d repositories, only the first %d are reachable; narrow its band",
					pred, page.RepositoryCount, partition.ResultWindow)
			}
		}

		seenAt := f.clock.Now()
		for _, node := range page.Nodes {
			if node.NameWithOwner == "" {
				continue
			}
			if _, dup := seen[node.NameWithOwner]; dup {
				continue
			}
			seen[node.NameWithOwner] = struct{}{}
			result.Records = append(result.Records, model.RepositoryRecord{
				Name:     node.NameWithOwner,
				Stars:    node.StargazerCount,
				LastSeen: seenAt,
			})
			recordsFetchedTotal.Inc()
			if remaining != Unlimited && len(result.Records) >= remaining {
				result.BudgetHit = true
				break
			}
		}

		if result.BudgetHit {
			f.transition(ctx, pred, state, stateDone)
			f.Logger.Info(ctx, "Budget reached inside %s after %d records", pred, len(result.Records))
			return result, nil
		}
		if !page.HasNextPage || page.EndCursor == "" {
			f.transition(ctx, pred, state, stateDone)
			return result, nil
		}
		cursor = page.EndCursor

		reason, delay := "page_delay", f.pageDelay
		if page.RateLimit.Exhausted() {
			reason, delay = string(githubapi.ErrorClassRateLimit), f.Policy.UntilReset(page.RateLimit.ResetAt, seenAt)
			state = f.transition(ctx, pred, state, stateBackoffRateLimit)
			f.Logger.Warn(ctx, "Quota spent after a page of %s, waiting %v for reset", pred, delay)
		}
		if err := f.wait(ctx, reason, delay); err != nil {
			return result, err
		}
	}
}

func (f *Fetcher) wait(ctx context.Context, reason string, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	waitSeconds.WithLabelValues(reason).Observe(d.Seconds())
	return f.clock.Sleep(ctx, d)
}

func (f *Fetcher) transition(ctx context.Context, pred partition.RangePredicate, from, to fetchState) fetchState {
	if from != to {
		f.Logger.Debug(ctx, "%s: %s -> %s", pred, from, to)
	}
	return to
}

func backoffState(class githubapi.ErrorClass) fetchState {
	switch class {
	case githubapi.ErrorClassRateLimit:
		return stateBackoffRateLimit
	case githubapi.ErrorClassApplication:
		return stateBackoffAppError
	default:
		return stateBackoffTransient
	}
}

// IsRetryExhausted reports whether err came from a page that kept failing.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}
