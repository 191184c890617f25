package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daytrader/internal/memgov"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testGovernor(sampler func() float64) *memgov.Governor {
	g := memgov.New(memgov.Limits{
		MaxConcurrentFetch: 2,
		BatchSize:          25,
		MaxTickersPerCycle: 25,
		PauseMB:            400,
		AbortMB:            550,
	}, testLogger())
	g.SetMemorySampler(sampler)
	return g
}

func newTestFetcher(mock *MockProvider, sampler func() float64) *Fetcher {
	f := NewFetcher(mock, testGovernor(sampler), testLogger())
	f.SetPause(time.Millisecond)
	return f
}

func TestFetchAllDedupesAndCaps(t *testing.T) {
	mock := NewMockProvider()
	for _, ticker := range []string{"AAPL", "MSFT", "TSLA"} {
		mock.SetTicker(ticker, 100, 30)
	}
	f := newTestFetcher(mock, func() float64 { return 100 })

	results := f.FetchAll(context.Background(), []string{"AAPL", "AAPL", "MSFT", "TSLA", "MSFT"})

	require.Len(t, results, 3)
	_, bars := mock.Calls()
	assert.Equal(t, 3, bars, "duplicates must not be refetched")
	for _, data := range results {
		require.NotNil(t, data.Snapshot)
		require.NotNil(t, data.Trend)
		assert.NotEmpty(t, data.Bars)
	}
}

func TestFetchAllSkipsFailedAndUnknownTickers(t *testing.T) {
	mock := NewMockProvider()
	mock.SetTicker("GOOD", 50, 30)
	mock.BarErrs["BAD"] = errors.New("feed unavailable")
	f := newTestFetcher(mock, func() float64 { return 100 })

	results := f.FetchAll(context.Background(), []string{"GOOD", "BAD", "GHOST"})

	require.Len(t, results, 1)
	assert.Contains(t, results, "GOOD")
}

func TestFetchAllUsesCycleCache(t *testing.T) {
	mock := NewMockProvider()
	mock.SetTicker("AAPL", 150, 30)
	f := newTestFetcher(mock, func() float64 { return 100 })

	first := f.FetchAll(context.Background(), []string{"AAPL"})
	second := f.FetchAll(context.Background(), []string{"AAPL"})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	_, bars := mock.Calls()
	assert.Equal(t, 1, bars, "second fetch must come from the cycle cache")

	f.ClearCache()
	f.FetchAll(context.Background(), []string{"AAPL"})
	_, bars = mock.Calls()
	assert.Equal(t, 2, bars)
}

func TestCachedSnapshotsExpireBetweenCycles(t *testing.T) {
	mock := NewMockProvider()
	mock.SetTicker("AAPL", 150, 30)
	f := newTestFetcher(mock, func() float64 { return 100 })

	base := time.Now()
	f.SetClock(func() time.Time { return base })
	first := f.FetchAll(context.Background(), []string{"AAPL"})
	require.Len(t, first, 1)
	assert.InDelta(t, 150*1.001, first["AAPL"].Quote.Ask, 1e-9)

	// The market moves between entry ticks.
	mock.SetTicker("AAPL", 120, 30)

	// Within the same tick the cache still serves.
	sameTick := f.FetchAll(context.Background(), []string{"AAPL"})
	require.Len(t, sameTick, 1)
	assert.InDelta(t, 150*1.001, sameTick["AAPL"].Quote.Ask, 1e-9)
	_, bars := mock.Calls()
	assert.Equal(t, 1, bars)

	// The next tick re-prices: a stale entry must never survive the TTL.
	f.SetClock(func() time.Time { return base.Add(cacheTTL + time.Second) })
	next := f.FetchAll(context.Background(), []string{"AAPL"})
	require.Len(t, next, 1)
	assert.InDelta(t, 120*1.001, next["AAPL"].Quote.Ask, 1e-9)
	assert.InDelta(t, 120, next["AAPL"].Snapshot.Close, 1e-9)
	_, bars = mock.Calls()
	assert.Equal(t, 2, bars, "expired entry must be refetched")
}

func TestFetchAllAbortsBeforeStartWhenMemoryCritical(t *testing.T) {
	mock := NewMockProvider()
	mock.SetTicker("AAPL", 150, 30)
	f := newTestFetcher(mock, func() float64 { return 610 })

	results := f.FetchAll(context.Background(), []string{"AAPL"})

	assert.Empty(t, results)
	_, bars := mock.Calls()
	assert.Zero(t, bars)
}

func TestFetchAllReturnsPartialResultsOnMidFetchAbort(t *testing.T) {
	mock := NewMockProvider()
	tickers := []string{"A", "B", "C", "D", "E", "F"}
	for _, ticker := range tickers {
		mock.SetTicker(ticker, 20, 30)
	}
	// Memory spikes past the abort line once two sub-batches have fetched.
	sampler := func() float64 {
		if _, bars := mock.Calls(); bars >= 4 {
			return 610
		}
		return 100
	}
	f := newTestFetcher(mock, sampler)

	results := f.FetchAll(context.Background(), tickers)

	assert.Len(t, results, 4, "first two sub-batches should survive the abort")
	_, bars := mock.Calls()
	assert.Equal(t, 4, bars)
}

func TestFetchAllPauseReclaimsAndContinues(t *testing.T) {
	mock := NewMockProvider()
	mock.SetTicker("AAPL", 150, 30)
	// Over the pause line but under the abort line: reclaim, then proceed.
	f := newTestFetcher(mock, func() float64 { return 450 })

	results := f.FetchAll(context.Background(), []string{"AAPL"})

	assert.Len(t, results, 1)
}

func TestFetchAllHonorsContextCancellation(t *testing.T) {
	mock := NewMockProvider()
	for _, ticker := range []string{"A", "B", "C", "D"} {
		mock.SetTicker(ticker, 20, 30)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newTestFetcher(mock, func() float64 { return 100 })

	results := f.FetchAll(ctx, []string{"A", "B", "C", "D"})

	assert.Empty(t, results)
}

func TestScreenerAllDedupes(t *testing.T) {
	s := &Screener{
		MostActive: []string{"AAPL", "TSLA"},
		Gainers:    []string{"TSLA", "NVDA"},
		Losers:     []string{"AAPL", "F"},
	}
	assert.Equal(t, []string{"AAPL", "TSLA", "NVDA", "F"}, s.All())
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	mock := NewMockProvider()
	mock.QuoteErrs["*"] = errors.New("upstream down")
	cb := NewCircuitBreakerProviderWithSettings(mock, testLogger(), BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	})

	for i := 0; i < 3; i++ {
		_, err := cb.Quote(context.Background(), "AAPL")
		require.Error(t, err)
	}
	quotesBefore, _ := mock.Calls()

	_, err := cb.Quote(context.Background(), "AAPL")
	require.Error(t, err)
	quotesAfter, _ := mock.Calls()
	assert.Equal(t, quotesBefore, quotesAfter, "open breaker must short-circuit the provider")
}

func TestCircuitBreakerPassesThroughSuccess(t *testing.T) {
	mock := NewMockProvider()
	mock.SetTicker("AAPL", 150, 5)
	cb := NewCircuitBreakerProvider(mock, testLogger())

	q, err := cb.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.InDelta(t, 150, q.Mid(), 1)

	open, err := cb.IsMarketOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}
