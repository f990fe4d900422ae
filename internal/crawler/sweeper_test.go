package crawler

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/internal/clock"
	crawlinfo "github.com/thep200/github-star-sweeper/internal/crawl_info"
	githubapi "github.com/thep200/github-star-sweeper/internal/github_api"
	"github.com/thep200/github-star-sweeper/internal/model"
	"github.com/thep200/github-star-sweeper/internal/partition"
	"github.com/thep200/github-star-sweeper/pkg/db"
)

type recordingSink struct {
	batches []Batch
	err     error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Persist(ctx context.Context, batch Batch) error {
	s.batches = append(s.batches, batch)
	return s.err
}

func (s *recordingSink) total() int {
	n := 0
	for _, batch := range s.batches {
		n += len(batch.Records)
	}
	return n
}

// Predicates: stars:0..1, stars:2, stars:>=3
func smallBands() []partition.Band {
	return []partition.Band{
		{Min: 0, Max: 1, Width: 2},
		{Min: 2, Max: 2, Width: 1},
		{Min: 3, Open: true},
	}
}

func newTestSweeper(t *testing.T, config *cfg.Config, client SearchClient, sink Sink) (*Sweeper, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testStart)
	fetcher := NewFetcher(testLogger(), config, client, clk)
	sweeper, err := NewSweeper(testLogger(), config, fetcher, sink, clk)
	require.NoError(t, err)
	sweeper.newRunID = func() string { return "run-1" }
	return sweeper, clk
}

func TestSweepVisitsEveryPredicateInOrder(t *testing.T) {
	config := testConfig()
	config.Sweep.Bands = smallBands()
	config.Sweep.MaxRepositories = 0
	client := newFakeSearch().
		script("stars:0..1", page("a", 0, 100, "c1"), page("a", 100, 20, "")).
		script("stars:2", page("b", 0, 30, "")).
		script("stars:>=3", page("c", 0, 5, ""))
	sink := &recordingSink{}
	sweeper, _ := newTestSweeper(t, config, client, sink)

	var seen []crawlinfo.Info
	sweeper.OnPartition = func(info crawlinfo.Info) { seen = append(seen, info) }

	summary, err := sweeper.Crawl(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.batches, 3)
	assert.Equal(t, "stars:0..1", sink.batches[0].Predicate)
	assert.Equal(t, "stars:2", sink.batches[1].Predicate)
	assert.Equal(t, "stars:>=3", sink.batches[2].Predicate)
	assert.Equal(t, "run-1", sink.batches[0].RunID)
	assert.Equal(t, 155, sink.total())

	stats := summary.Snapshot()
	assert.Equal(t, "run-1", stats.RunID)
	assert.Equal(t, "recording", stats.Sink)
	assert.Equal(t, 155, stats.Records)
	assert.Equal(t, 4, stats.Requests)
	assert.False(t, stats.BudgetHit)
	assert.Empty(t, stats.LastError)
	assert.Len(t, seen, 3)
	assert.Equal(t, 2, seen[0].Pages)
	assert.Same(t, summary, sweeper.Current())
}

func TestSweepStopsExactlyAtBudgetAcrossPredicates(t *testing.T) {
	config := testConfig()
	config.Sweep.Bands = smallBands()
	config.Sweep.MaxRepositories = 150
	client := newFakeSearch().
		script("stars:0..1", page("a", 0, 100, "")).
		script("stars:2", page("b", 0, 100, "c1"), page("b", 100, 100, "")).
		script("stars:>=3", page("c", 0, 100, ""))
	sink := &recordingSink{}
	sweeper, _ := newTestSweeper(t, config, client, sink)

	summary, err := sweeper.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 150, sink.total())
	require.Len(t, sink.batches, 2)
	assert.Len(t, sink.batches[1].Records, 50)
	assert.Empty(t, client.cursors("stars:>=3"))
	assert.Equal(t, []string{""}, client.cursors("stars:2"))
	assert.True(t, summary.Snapshot().BudgetHit)
}

func TestSweepPersistsPartialBatchWhenRetriesExhausted(t *testing.T) {
	config := testConfig()
	config.Sweep.Bands = smallBands()
	broken := failure(&githubapi.TransportError{StatusCode: http.StatusBadGateway})
	client := newFakeSearch().
		script("stars:0..1", page("a", 0, 10, "")).
		script("stars:2", page("b", 0, 100, "c1"), broken, broken, broken, broken)
	sink := &recordingSink{}
	sweeper, _ := newTestSweeper(t, config, client, sink)

	summary, err := sweeper.Crawl(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)

	require.Len(t, sink.batches, 2)
	assert.Len(t, sink.batches[1].Records, 100)
	assert.Empty(t, client.cursors("stars:>=3"))

	stats := summary.Snapshot()
	assert.Equal(t, 110, stats.Records)
	assert.Contains(t, stats.LastError, "stars:2")
}

func TestSweepAbortsOnSinkFailure(t *testing.T) {
	config := testConfig()
	config.Sweep.Bands = smallBands()
	client := newFakeSearch().script("stars:0..1", page("a", 0, 10, ""))
	sink := &recordingSink{err: errors.New("connection refused")}
	sweeper, _ := newTestSweeper(t, config, client, sink)

	_, err := sweeper.Crawl(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, sink.batches, 1)
	assert.Empty(t, client.cursors("stars:2"))
}

func TestSweepReportsFetchAndPersistFailures(t *testing.T) {
	config := testConfig()
	config.Sweep.Bands = smallBands()
	broken := failure(&githubapi.TransportError{StatusCode: http.StatusBadGateway})
	client := newFakeSearch().
		script("stars:0..1", page("a", 0, 100, "c1"), broken, broken, broken, broken)
	sink := &recordingSink{err: errors.New("disk full")}
	sweeper, _ := newTestSweeper(t, config, client, sink)

	_, err := sweeper.Crawl(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Contains(t, err.Error(), "persist stars:0..1: disk full")
	require.Len(t, sink.batches, 1)
	assert.Len(t, sink.batches[0].Records, 100)
}

func TestSweepHonoursCancellation(t *testing.T) {
	config := testConfig()
	config.Sweep.Bands = smallBands()
	client := newFakeSearch()
	sink := &recordingSink{}
	sweeper, _ := newTestSweeper(t, config, client, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := sweeper.Crawl(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.calls)
	assert.NotNil(t, summary)
}

func TestNewSweeperRejectsInvalidBands(t *testing.T) {
	config := testConfig()
	config.Sweep.Bands = []partition.Band{{Min: 0, Max: 10, Width: 1}}
	clk := clock.NewFake(testStart)
	fetcher := NewFetcher(testLogger(), config, newFakeSearch(), clk)

	_, err := NewSweeper(testLogger(), config, fetcher, &recordingSink{}, clk)
	assert.Error(t, err)
}

func TestSweepLastWriteWinsInDatabase(t *testing.T) {
	config := testConfig()
	config.Sweep.Bands = smallBands()
	config.Database.Driver = db.DriverSqlite
	config.Database.Path = filepath.Join(t.TempDir(), "sweep.db")

	database, err := db.NewDatabase(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	repoMd, err := model.NewRepo(config, testLogger(), database)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(repoMd))

	sweep := func(stars int64) {
		step := page("a", 0, 2, "")
		for i := range step.page.Nodes {
			step.page.Nodes[i].StargazerCount = stars
		}
		client := newFakeSearch().script("stars:0..1", step)
		sweeper, clk := newTestSweeper(t, config, client, NewDatabaseSink(testLogger(), repoMd))
		clk.Advance(time.Duration(stars) * time.Hour)
		_, err := sweeper.Crawl(context.Background())
		require.NoError(t, err)
	}

	sweep(1)
	sweep(7)

	got, err := repoMd.Find(context.Background(), "a/repo-1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, got.Stars)
	assert.True(t, testStart.Add(7*time.Hour).Equal(got.LastUpdated))

	_, total, err := repoMd.List(context.Background(), "", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}
