package store

import (
	"context"

	"daytrader/internal/models"
)

// MABRepo persists the per-(indicator, ticker) bandit statistics.
type MABRepo struct {
	gw Gateway
}

// NewMABRepo wraps a gateway.
func NewMABRepo(gw Gateway) *MABRepo {
	return &MABRepo{gw: gw}
}

// Get returns the stats row for an arm, or nil when the arm has no history.
func (r *MABRepo) Get(ctx context.Context, indicator, ticker string) (*models.MABStats, error) {
	item, err := r.gw.Get(ctx, TableMAB, Key{PK: ticker, SK: indicator})
	if err != nil || item == nil {
		return nil, err
	}
	var stats models.MABStats
	if err := UnmarshalItem(item, &stats); err != nil {
		return nil, fatal("get", TableMAB, err)
	}
	return &stats, nil
}

// Save upserts an arm's stats row.
func (r *MABRepo) Save(ctx context.Context, stats *models.MABStats) error {
	item, err := MarshalItem(stats)
	if err != nil {
		return fatal("put", TableMAB, err)
	}
	return r.gw.Put(ctx, TableMAB, item)
}

// ListByIndicator returns every arm an indicator has history for.
func (r *MABRepo) ListByIndicator(ctx context.Context, indicator string) ([]models.MABStats, error) {
	items, err := r.gw.Scan(ctx, TableMAB, Item{"indicator": indicator})
	if err != nil {
		return nil, err
	}
	out := make([]models.MABStats, 0, len(items))
	for _, item := range items {
		var stats models.MABStats
		if err := UnmarshalItem(item, &stats); err != nil {
			return nil, fatal("scan", TableMAB, err)
		}
		out = append(out, stats)
	}
	return out, nil
}
