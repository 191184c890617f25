package store

import (
	"context"

	"daytrader/internal/models"
)

// TradeRepo persists Completed Trades, keyed by trade date with a
// "<ticker>#<indicator>" sort key. Writes are idempotent by key.
type TradeRepo struct {
	gw Gateway
}

// NewTradeRepo wraps a gateway.
func NewTradeRepo(gw Gateway) *TradeRepo {
	return &TradeRepo{gw: gw}
}

// SaveCompleted appends a completed trade.
func (r *TradeRepo) SaveCompleted(ctx context.Context, t *models.CompletedTrade) error {
	item, err := MarshalItem(t)
	if err != nil {
		return fatal("put", TableTrades, err)
	}
	item["date"] = t.TradeDate
	item["ticker_indicator"] = t.SortKey()
	return r.gw.Put(ctx, TableTrades, item)
}

// ListByDate returns every completed trade for a market day.
func (r *TradeRepo) ListByDate(ctx context.Context, date string) ([]models.CompletedTrade, error) {
	items, err := r.gw.Query(ctx, TableTrades, date)
	if err != nil {
		return nil, err
	}
	trades := make([]models.CompletedTrade, 0, len(items))
	for _, item := range items {
		var t models.CompletedTrade
		if err := UnmarshalItem(item, &t); err != nil {
			return nil, fatal("query", TableTrades, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// CountForDay returns how many trades an indicator completed on a market
// day. Queried live so the daily cap survives restarts.
func (r *TradeRepo) CountForDay(ctx context.Context, indicator, date string) (int, error) {
	trades, err := r.ListByDate(ctx, date)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range trades {
		if t.Indicator == indicator {
			n++
		}
	}
	return n, nil
}
