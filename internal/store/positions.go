package store

import (
	"context"

	"daytrader/internal/models"
)

// PositionRepo persists Active Positions. The table's partition key is the
// ticker, which enforces the at-most-one-position-per-ticker invariant at
// the store level.
type PositionRepo struct {
	gw Gateway
}

// NewPositionRepo wraps a gateway.
func NewPositionRepo(gw Gateway) *PositionRepo {
	return &PositionRepo{gw: gw}
}

// SaveActive writes (or overwrites) the active position for its ticker.
func (r *PositionRepo) SaveActive(ctx context.Context, p *models.Position) error {
	if err := p.Validate(); err != nil {
		return fatal("put", TableActive, err)
	}
	item, err := MarshalItem(p)
	if err != nil {
		return fatal("put", TableActive, err)
	}
	return r.gw.Put(ctx, TableActive, item)
}

// GetActive returns the active position for a ticker, or nil when absent.
func (r *PositionRepo) GetActive(ctx context.Context, ticker string) (*models.Position, error) {
	item, err := r.gw.Get(ctx, TableActive, Key{PK: ticker})
	if err != nil || item == nil {
		return nil, err
	}
	var p models.Position
	if err := UnmarshalItem(item, &p); err != nil {
		return nil, fatal("get", TableActive, err)
	}
	return &p, nil
}

// ListActiveByIndicator returns every open position managed by a strategy.
func (r *PositionRepo) ListActiveByIndicator(ctx context.Context, indicator string) ([]models.Position, error) {
	items, err := r.gw.Scan(ctx, TableActive, Item{"indicator": indicator})
	if err != nil {
		return nil, err
	}
	positions := make([]models.Position, 0, len(items))
	for _, item := range items {
		var p models.Position
		if err := UnmarshalItem(item, &p); err != nil {
			return nil, fatal("scan", TableActive, err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// ListActive returns every open position across strategies.
func (r *PositionRepo) ListActive(ctx context.Context) ([]models.Position, error) {
	items, err := r.gw.Scan(ctx, TableActive, nil)
	if err != nil {
		return nil, err
	}
	positions := make([]models.Position, 0, len(items))
	for _, item := range items {
		var p models.Position
		if err := UnmarshalItem(item, &p); err != nil {
			return nil, fatal("scan", TableActive, err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// DeleteActive removes the active position for a ticker. Idempotent.
func (r *PositionRepo) DeleteActive(ctx context.Context, ticker string) error {
	return r.gw.Delete(ctx, TableActive, Key{PK: ticker})
}

// UpdatePeak persists the monotone peak fields after an exit tick.
func (r *PositionRepo) UpdatePeak(ctx context.Context, ticker string, peakPrice, peakProfitPct, trailingStopPct float64) error {
	return r.gw.Update(ctx, TableActive, Key{PK: ticker}, Item{
		"peak_price":        peakPrice,
		"peak_profit_pct":   peakProfitPct,
		"trailing_stop_pct": trailingStopPct,
	})
}
