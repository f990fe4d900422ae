package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/internal/clock"
	githubapi "github.com/thep200/github-star-sweeper/internal/github_api"
	"github.com/thep200/github-star-sweeper/internal/partition"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

var testStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type searchCall struct {
	query  string
	cursor string
	first  int
}

type searchStep struct {
	page *githubapi.SearchPage
	err  error
}

// fakeSearch replays scripted responses per query; unscripted queries get an empty last page.
type fakeSearch struct {
	mu    sync.Mutex
	steps map[string][]searchStep
	calls []searchCall
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{steps: make(map[string][]searchStep)}
}

func (f *fakeSearch) script(query string, steps ...searchStep) *fakeSearch {
	f.steps[query] = append(f.steps[query], steps...)
	return f
}

func (f *fakeSearch) Search(ctx context.Context, query, cursor string, first int) (*githubapi.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{query: query, cursor: cursor, first: first})
	steps := f.steps[query]
	if len(steps) == 0 {
		return &githubapi.SearchPage{RateLimit: githubapi.RateLimit{Remaining: -1}}, nil
	}
	f.steps[query] = steps[1:]
	return steps[0].page, steps[0].err
}

func (f *fakeSearch) cursors(query string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, call := range f.calls {
		if call.query == query {
			out = append(out, call.cursor)
		}
	}
	return out
}

// page builds n repositories named prefix/repo-<from+i>; next is the end cursor ("" for the last page).
func page(prefix string, from, n int, next string) searchStep {
	nodes := make([]githubapi.RepositoryNode, 0, n)
	for i := 0; i < n; i++ {
		nodes = append(nodes, githubapi.RepositoryNode{
			NameWithOwner:  fmt.Sprintf("%s/repo-%d", prefix, from+i),
			StargazerCount: int64(from + i),
		})
	}
	return searchStep{page: &githubapi.SearchPage{
		RepositoryCount: 300,
		Nodes:           nodes,
		EndCursor:       next,
		HasNextPage:     next != "",
		RateLimit:       githubapi.RateLimit{Remaining: 4000},
	}}
}

func failure(err error) searchStep {
	return searchStep{err: err}
}

func testConfig() *cfg.Config {
	config := cfg.Default()
	config.GithubApi.AccessToken = "test-token"
	config.GithubApi.RequestsPerSecond = 0
	config.Sweep.Qualifiers = ""
	config.Sweep.PageDelay = time.Second
	config.Retry = cfg.Retry{
		MaxAttempts:       3,
		Backoff:           10 * time.Second,
		MaxBackoff:        time.Minute,
		Multiplier:        1,
		AppErrorBackoff:   5 * time.Second,
		MinRateLimitWait:  5 * time.Second,
		RateLimitFallback: time.Minute,
	}
	return config
}

func testLogger() log.Logger {
	return log.NewZapLoggerFrom(zap.NewNop())
}

func newTestFetcher(config *cfg.Config, client SearchClient) (*Fetcher, *clock.Fake) {
	clk := clock.NewFake(testStart)
	return NewFetcher(testLogger(), config, client, clk), clk
}

var zeroToOne = partition.RangePredicate{Min: 0, Max: 1}

func TestFetchDrainsAllPages(t *testing.T) {
	client := newFakeSearch().script("stars:0..1",
		page("a", 0, 100, "c1"),
		page("a", 100, 100, "c2"),
		page("a", 200, 100, ""),
	)
	fetcher, clk := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)

	assert.Len(t, result.Records, 300)
	assert.Equal(t, 3, result.Requests)
	assert.Equal(t, 3, result.Pages)
	assert.Zero(t, result.Retries)
	assert.False(t, result.BudgetHit)
	assert.Equal(t, 300, result.RepositoryCount)
	assert.Equal(t, []string{"", "c1", "c2"}, client.cursors("stars:0..1"))
	assert.Equal(t, "a/repo-0", result.Records[0].Name)
	assert.Equal(t, "a/repo-299", result.Records[299].Name)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clk.Sleeps())

	for _, call := range client.calls {
		assert.Equal(t, 100, call.first)
	}
}

func TestFetchPrependsQualifiers(t *testing.T) {
	config := testConfig()
	config.Sweep.Qualifiers = "is:public fork:false"
	client := newFakeSearch()
	fetcher, _ := newTestFetcher(config, client)

	_, err := fetcher.Fetch(context.Background(), partition.RangePredicate{Min: 7, Max: 7}, Unlimited)
	require.NoError(t, err)
	require.Len(t, client.calls, 1)
	assert.Equal(t, "is:public fork:false stars:7", client.calls[0].query)
}

func TestFetchDropsDuplicatesWithinPredicate(t *testing.T) {
	client := newFakeSearch().script("stars:0..1",
		page("a", 0, 3, "c1"),
		page("a", 2, 3, ""),
	)
	fetcher, _ := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)

	names := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		names = append(names, record.Name)
	}
	assert.Equal(t, []string{"a/repo-0", "a/repo-1", "a/repo-2", "a/repo-3", "a/repo-4"}, names)
	assert.False(t, result.BudgetHit)
}

func TestFetchSkipsEmptyNodes(t *testing.T) {
	step := page("a", 0, 2, "")
	step.page.Nodes = append(step.page.Nodes, githubapi.RepositoryNode{})
	client := newFakeSearch().script("stars:0..1", step)
	fetcher, _ := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
}

func TestFetchStopsAtRemainingBudget(t *testing.T) {
	client := newFakeSearch().script("stars:0..1",
		page("a", 0, 100, "c1"),
		page("a", 100, 100, "c2"),
		page("a", 200, 100, ""),
	)
	fetcher, _ := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, 150)
	require.NoError(t, err)
	assert.Len(t, result.Records, 150)
	assert.True(t, result.BudgetHit)
	assert.Equal(t, 2, result.Requests)
	assert.Equal(t, "a/repo-149", result.Records[149].Name)
}

func TestFetchWithZeroBudgetMakesNoRequest(t *testing.T) {
	client := newFakeSearch()
	fetcher, _ := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, 0)
	require.NoError(t, err)
	assert.True(t, result.BudgetHit)
	assert.Empty(t, client.calls)
}

func TestFetchWaitsForRateLimitReset(t *testing.T) {
	client := newFakeSearch().script("stars:0..1",
		page("a", 0, 100, "c1"),
		failure(&githubapi.RateLimitError{ResetAt: testStart.Add(time.Second + 5*time.Second), StatusCode: http.StatusForbidden}),
		page("a", 100, 100, ""),
	)
	fetcher, clk := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)

	// page delay, then the wait until reset
	sleeps := clk.Sleeps()
	require.Len(t, sleeps, 2)
	assert.Equal(t, time.Second, sleeps[0])
	assert.GreaterOrEqual(t, sleeps[1], 5*time.Second)

	assert.Len(t, result.Records, 200)
	assert.Equal(t, 3, result.Requests)
	assert.Equal(t, 1, result.Retries)
	assert.Equal(t, []string{"", "c1", "c1"}, client.cursors("stars:0..1"))
}

func TestFetchWaitsWhenPageReportsQuotaSpent(t *testing.T) {
	first := page("a", 0, 100, "c1")
	first.page.RateLimit = githubapi.RateLimit{Remaining: 0, ResetAt: testStart.Add(5 * time.Second)}
	client := newFakeSearch().script("stars:0..1", first, page("a", 100, 100, ""))
	fetcher, clk := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, clk.Sleeps())
	assert.Len(t, result.Records, 200)
	assert.Equal(t, 2, result.Requests)
	assert.Zero(t, result.Retries)
}

func TestFetchRateLimitWithPastResetUsesMinimumWait(t *testing.T) {
	client := newFakeSearch().script("stars:0..1",
		failure(&githubapi.RateLimitError{ResetAt: testStart.Add(-time.Hour)}),
		page("a", 0, 1, ""),
	)
	fetcher, clk := newTestFetcher(testConfig(), client)

	_, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, clk.Sleeps())
}

func TestFetchRetriesApplicationErrorWithoutAdvancingCursor(t *testing.T) {
	appErr := &githubapi.ApplicationError{Errors: []githubapi.GraphQLError{{Message: "Something went wrong"}}}
	client := newFakeSearch().script("stars:0..1",
		page("a", 0, 100, "c1"),
		failure(appErr),
		page("a", 100, 100, "c2"),
		page("a", 200, 100, ""),
	)
	fetcher, clk := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "c1", "c1", "c2"}, client.cursors("stars:0..1"))
	assert.Len(t, result.Records, 300)
	assert.Equal(t, 4, result.Requests)
	assert.Equal(t, 1, result.Retries)
	assert.Contains(t, clk.Sleeps(), 5*time.Second)
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	client := newFakeSearch().script("stars:0..1",
		failure(&githubapi.TransportError{StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}),
		failure(&githubapi.DecodeError{Err: errors.New("unexpected EOF")}),
		page("a", 0, 10, ""),
	)
	fetcher, clk := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)
	assert.Len(t, result.Records, 10)
	assert.Equal(t, 2, result.Retries)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, clk.Sleeps())
}

func TestFetchReturnsPartialRecordsWhenRetriesExhausted(t *testing.T) {
	transient := &githubapi.TransportError{StatusCode: http.StatusServiceUnavailable}
	client := newFakeSearch().script("stars:0..1",
		page("a", 0, 100, "c1"),
		failure(transient), failure(transient), failure(transient), failure(transient),
	)
	fetcher, _ := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.Error(t, err)
	assert.True(t, IsRetryExhausted(err))
	assert.ErrorIs(t, err, ErrRetryExhausted)

	var transportErr *githubapi.TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.Len(t, result.Records, 100)
	assert.Equal(t, 3, result.Retries)
	assert.Equal(t, 5, result.Requests)
}

func TestFetchResetsAttemptsAfterSuccess(t *testing.T) {
	transient := &githubapi.TransportError{StatusCode: http.StatusBadGateway}
	client := newFakeSearch().script("stars:0..1",
		failure(transient), failure(transient), failure(transient),
		page("a", 0, 1, "c1"),
		failure(transient), failure(transient), failure(transient),
		page("a", 1, 1, ""),
	)
	fetcher, _ := newTestFetcher(testConfig(), client)

	result, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, 6, result.Retries)
}

func TestFetchFailsFastOnUnclassifiedError(t *testing.T) {
	client := newFakeSearch().script("stars:0..1", failure(errors.New("failed to marshal request")))
	fetcher, clk := newTestFetcher(testConfig(), client)

	_, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.Error(t, err)
	assert.False(t, IsRetryExhausted(err))
	assert.Empty(t, clk.Sleeps())
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := newFakeSearch().script("stars:0..1",
		page("a", 0, 100, "c1"),
		page("a", 100, 100, ""),
	)
	fetcher, _ := newTestFetcher(testConfig(), client)
	cancel()

	result, err := fetcher.Fetch(ctx, zeroToOne, Unlimited)
	assert.ErrorIs(t, err, context.Canceled)
	// the first page was fetched before the page delay noticed the cancellation
	assert.Len(t, result.Records, 100)
	assert.Equal(t, 1, result.Requests)
}

func TestFetchUsesRequestLimiter(t *testing.T) {
	config := testConfig()
	config.GithubApi.RequestsPerSecond = 1
	config.Sweep.PageDelay = 0
	client := newFakeSearch().script("stars:0..1",
		page("a", 0, 1, "c1"),
		page("a", 1, 1, ""),
	)
	fetcher, clk := newTestFetcher(config, client)

	_, err := fetcher.Fetch(context.Background(), zeroToOne, Unlimited)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second}, clk.Sleeps())
}
