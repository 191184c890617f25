package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"daytrader/internal/indicators"
	"daytrader/internal/memgov"
	"daytrader/internal/models"
)

// DefaultBarLimit is how many 1-minute bars the fetcher pulls per ticker.
const DefaultBarLimit = 60

// interBatchPause is the breather between concurrent sub-batches.
const interBatchPause = 250 * time.Millisecond

// cacheTTL bounds how long a fetched snapshot may be served again. It is
// shorter than every strategy's entry tick, so each cycle re-prices its
// candidates, while concurrent strategies within one tick still share a
// single fetch per ticker.
const cacheTTL = 30 * time.Second

// TickerData is everything the validation pipeline needs for one candidate.
type TickerData struct {
	Ticker   string
	Quote    *models.Quote
	Bars     []models.Bar
	Snapshot *models.Snapshot
	Trend    *models.TrendMetrics
}

// Fetcher runs the batched snapshot fetch for an entry cycle. It dedupes and
// caps the ticker set, fans per-ticker I/O out in governor-sized sub-batches,
// caches snapshots within a cycle, and returns whatever it accumulated when
// the memory governor orders an abort. Partial success is explicit: the
// returned map simply omits tickers that were not fetched.
type Fetcher struct {
	provider Provider
	gov      *memgov.Governor
	logger   *logrus.Logger
	barLimit int
	pause    time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	data      *TickerData
	fetchedAt time.Time
}

// NewFetcher builds a fetcher and registers its cache with the governor's
// reclamation pass.
func NewFetcher(provider Provider, gov *memgov.Governor, logger *logrus.Logger) *Fetcher {
	f := &Fetcher{
		provider: provider,
		gov:      gov,
		logger:   logger,
		barLimit: DefaultBarLimit,
		pause:    interBatchPause,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
	gov.RegisterPurge(f.ClearCache)
	return f
}

// FetchAll fetches snapshot data for the given tickers. Per-ticker errors
// are recorded and skipped; they never abort the batch.
func (f *Fetcher) FetchAll(ctx context.Context, tickers []string) map[string]*TickerData {
	limits := f.gov.Limits()
	tickers = dedupe(tickers)
	if len(tickers) > limits.MaxTickersPerCycle {
		tickers = tickers[:limits.MaxTickersPerCycle]
	}

	results := make(map[string]*TickerData, len(tickers))
	if !f.memoryAllows("pre-fetch") {
		return results
	}

	width := limits.MaxConcurrentFetch
	if width < 1 {
		width = 1
	}
	for start := 0; start < len(tickers); start += width {
		if ctx.Err() != nil {
			return results
		}
		if start > 0 {
			if !f.memoryAllows("mid-fetch") {
				f.logger.WithField("fetched", len(results)).
					Warn("memory governor aborted snapshot fetch, returning partial set")
				return results
			}
			select {
			case <-ctx.Done():
				return results
			case <-time.After(f.pause):
			}
		}

		end := start + width
		if end > len(tickers) {
			end = len(tickers)
		}
		f.fetchBatch(ctx, tickers[start:end], results)
	}
	return results
}

// fetchBatch fetches one sub-batch concurrently and folds results in.
func (f *Fetcher) fetchBatch(ctx context.Context, batch []string, results map[string]*TickerData) {
	var wg sync.WaitGroup
	var resMu sync.Mutex
	for _, ticker := range batch {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			data, err := f.fetchOne(ctx, ticker)
			if err != nil {
				f.logger.WithError(err).WithField("ticker", ticker).
					Warn("snapshot fetch failed, skipping ticker")
				return
			}
			if data == nil {
				return // no data for this ticker this tick
			}
			resMu.Lock()
			results[ticker] = data
			resMu.Unlock()
		}(ticker)
	}
	wg.Wait()
}

func (f *Fetcher) fetchOne(ctx context.Context, ticker string) (*TickerData, error) {
	now := f.now()
	f.mu.Lock()
	cached, ok := f.cache[ticker]
	f.mu.Unlock()
	if ok && now.Sub(cached.fetchedAt) < cacheTTL {
		return cached.data, nil
	}

	bars, err := f.provider.Bars(ctx, ticker, f.barLimit)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	quote, err := f.provider.Quote(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if !quote.Valid() {
		return nil, nil
	}

	data := &TickerData{
		Ticker:   ticker,
		Quote:    quote,
		Bars:     bars,
		Snapshot: indicators.Compute(bars),
		Trend:    indicators.Trend(bars, indicators.DefaultTrendWindow),
	}
	f.mu.Lock()
	f.cache[ticker] = cacheEntry{data: data, fetchedAt: now}
	f.mu.Unlock()
	return data, nil
}

// memoryAllows consults the governor, forcing a reclamation pass at the
// pause line. It returns false when the abort line is still exceeded after
// reclamation.
func (f *Fetcher) memoryAllows(stage string) bool {
	if !f.gov.ShouldPauseFetch() {
		return true
	}
	f.logger.WithFields(logrus.Fields{
		"stage":      stage,
		"current_mb": f.gov.CurrentMB(),
	}).Warn("memory pause threshold crossed, forcing reclamation")
	f.gov.Reclaim()
	return !f.gov.ShouldAbortFetch()
}

// ClearCache drops the snapshot cache outright. Entries also expire on
// their own after cacheTTL; this is the governor's reclamation hook.
func (f *Fetcher) ClearCache() {
	f.mu.Lock()
	f.cache = make(map[string]cacheEntry)
	f.mu.Unlock()
}

// SetBarLimit overrides the per-ticker bar window.
func (f *Fetcher) SetBarLimit(limit int) {
	if limit > 0 {
		f.barLimit = limit
	}
}

// SetPause overrides the inter-batch sleep. Test hook.
func (f *Fetcher) SetPause(d time.Duration) { f.pause = d }

// SetClock swaps the time source. Test hook.
func (f *Fetcher) SetClock(now func() time.Time) { f.now = now }

func dedupe(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := tickers[:0:0]
	for _, t := range tickers {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
