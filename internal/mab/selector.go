// Package mab implements the Thompson-Sampling multi-armed bandit that picks
// which validated candidates actually get a trade slot. Each (indicator,
// ticker) arm keeps a Beta(1+successes, 1+failures) posterior in the store;
// selection draws one sample per arm and takes the top k.
package mab

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"daytrader/internal/models"
	"daytrader/internal/store"
)

// DefaultExclusion benches a losing arm for a full trading day.
const DefaultExclusion = 24 * time.Hour

// Candidate is a validated ticker offered to the selector. The momentum sign
// decides which directional reason field a rejection populates.
type Candidate struct {
	Ticker   string
	Momentum float64
}

// Selection is the ranked pick plus the direction-aware rejection reasons for
// every candidate that was not picked. Selected tickers never appear in
// Rejected.
type Selection struct {
	Tickers  []string
	Rejected map[string]models.Outcome
}

// Selector is the bandit service for one process. Safe for concurrent use.
type Selector struct {
	repo   *store.MABRepo
	logger *logrus.Logger
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector builds a selector seeded from the wall clock.
func NewSelector(repo *store.MABRepo, logger *logrus.Logger) *Selector {
	return &Selector{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetClock swaps the time source. Test hook.
func (s *Selector) SetClock(now func() time.Time) { s.now = now }

// SetSeed reseeds the sampler. Test hook.
func (s *Selector) SetSeed(seed int64) {
	s.mu.Lock()
	s.rng = rand.New(rand.NewSource(seed))
	s.mu.Unlock()
}

type arm struct {
	candidate Candidate
	stats     *models.MABStats
	sample    float64
}

// Select runs one Thompson-Sampling round: fetch or synthesize stats, drop
// excluded arms, sample each posterior, and return the top k by sample.
func (s *Selector) Select(ctx context.Context, indicator string, candidates []Candidate, k int) (*Selection, error) {
	sel := &Selection{Rejected: make(map[string]models.Outcome)}
	if k <= 0 || len(candidates) == 0 {
		for _, c := range candidates {
			sel.Rejected[c.Ticker] = s.rejectionFor(c, nil)
		}
		return sel, nil
	}

	now := s.now()
	arms := make([]arm, 0, len(candidates))
	for _, c := range candidates {
		stats, err := s.repo.Get(ctx, indicator, c.Ticker)
		if err != nil {
			return nil, fmt.Errorf("fetching bandit stats for %s: %w", c.Ticker, err)
		}
		if stats == nil {
			stats = &models.MABStats{Ticker: c.Ticker, Indicator: indicator}
		}
		if stats.Excluded(now) {
			sel.Rejected[c.Ticker] = s.rejectionFor(c, stats)
			continue
		}
		arms = append(arms, arm{candidate: c, stats: stats})
	}

	s.mu.Lock()
	for i := range arms {
		arms[i].sample = sampleBeta(s.rng, arms[i].stats.Alpha(), arms[i].stats.Beta())
	}
	s.mu.Unlock()

	sort.SliceStable(arms, func(i, j int) bool { return arms[i].sample > arms[j].sample })
	for i, a := range arms {
		if i < k {
			sel.Tickers = append(sel.Tickers, a.candidate.Ticker)
			continue
		}
		sel.Rejected[a.candidate.Ticker] = s.rejectionFor(a.candidate, a.stats)
	}
	return sel, nil
}

// rejectionFor builds the direction-aware reason for a dropped candidate.
// Positive momentum populates only reason_long, negative only reason_short.
func (s *Selector) rejectionFor(c Candidate, stats *models.MABStats) models.Outcome {
	var reason string
	switch {
	case stats == nil || stats.Total == 0:
		reason = "Not selected this cycle: new ticker explored by Thompson Sampling"
	case stats.Excluded(s.now()):
		reason = fmt.Sprintf(
			"Excluded until %s (%d successes / %d failures)",
			stats.ExcludedUntil.Format(time.RFC3339), stats.Successes, stats.Failures)
	default:
		reason = fmt.Sprintf(
			"Not selected by Thompson Sampling (%d successes / %d failures)",
			stats.Successes, stats.Failures)
	}
	if c.Momentum < 0 {
		return models.Outcome{ReasonShort: reason}
	}
	return models.Outcome{ReasonLong: reason}
}

// RecordOutcome applies one trade result to an arm, creating the row when the
// arm is new.
func (s *Selector) RecordOutcome(ctx context.Context, indicator, ticker string, success bool) error {
	stats, err := s.repo.Get(ctx, indicator, ticker)
	if err != nil {
		return err
	}
	if stats == nil {
		stats = &models.MABStats{Ticker: ticker, Indicator: indicator}
	}
	if success {
		stats.Successes++
	} else {
		stats.Failures++
	}
	stats.Total = stats.Successes + stats.Failures
	stats.LastUpdated = s.now()
	return s.repo.Save(ctx, stats)
}

// Exclude benches an arm until now + duration; a non-positive duration uses
// the 24h default.
func (s *Selector) Exclude(ctx context.Context, indicator, ticker string, duration time.Duration) error {
	if duration <= 0 {
		duration = DefaultExclusion
	}
	stats, err := s.repo.Get(ctx, indicator, ticker)
	if err != nil {
		return err
	}
	if stats == nil {
		stats = &models.MABStats{Ticker: ticker, Indicator: indicator}
	}
	until := s.now().Add(duration)
	stats.ExcludedUntil = &until
	stats.LastUpdated = s.now()
	s.logger.WithFields(logrus.Fields{
		"indicator": indicator,
		"ticker":    ticker,
		"until":     until,
	}).Info("benching ticker in bandit")
	return s.repo.Save(ctx, stats)
}

// ResetDaily clears every exclusion for an indicator. Idempotent; runs once
// per market-day transition.
func (s *Selector) ResetDaily(ctx context.Context, indicator string) error {
	rows, err := s.repo.ListByIndicator(ctx, indicator)
	if err != nil {
		return err
	}
	cleared := 0
	for i := range rows {
		if rows[i].ExcludedUntil == nil {
			continue
		}
		rows[i].ExcludedUntil = nil
		rows[i].LastUpdated = s.now()
		if err := s.repo.Save(ctx, &rows[i]); err != nil {
			return err
		}
		cleared++
	}
	if cleared > 0 {
		s.logger.WithFields(logrus.Fields{
			"indicator": indicator,
			"cleared":   cleared,
		}).Info("daily bandit reset complete")
	}
	return nil
}
