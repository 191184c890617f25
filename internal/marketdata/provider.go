// Package marketdata provides quotes, historical bars, the market clock,
// and the ticker screener the strategies trade from. The Alpaca-backed
// implementation is the production provider; a circuit-breaker wrapper and
// an in-memory mock share the same interface.
package marketdata

import (
	"context"

	"daytrader/internal/models"
)

// Screener is the ticker universe for one entry cycle.
type Screener struct {
	MostActive []string
	Gainers    []string
	Losers     []string
}

// All returns the deduplicated union of the screener lists, preserving
// first-seen order.
func (s *Screener) All() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{s.MostActive, s.Gainers, s.Losers} {
		for _, ticker := range group {
			if _, dup := seen[ticker]; dup {
				continue
			}
			seen[ticker] = struct{}{}
			out = append(out, ticker)
		}
	}
	return out
}

// Provider is the read-only market-data surface the engine consumes.
//
// Quote and Bars return (nil, nil) when the provider has no data for the
// ticker; callers skip the ticker for the tick. All methods honor the
// context deadline; no call blocks indefinitely.
type Provider interface {
	IsMarketOpen(ctx context.Context) (bool, error)
	Clock(ctx context.Context) (*models.Clock, error)
	Quote(ctx context.Context, ticker string) (*models.Quote, error)
	Bars(ctx context.Context, ticker string, limit int) ([]models.Bar, error)
	Screener(ctx context.Context) (*Screener, error)
}
