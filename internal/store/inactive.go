package store

import (
	"context"
	"time"

	"daytrader/internal/models"
)

// InactiveRepo persists the per-evaluation audit records. Rows are keyed by
// ticker with a timestamp-based sort key so a ticker's evaluations read back
// in time order.
type InactiveRepo struct {
	gw Gateway
}

// NewInactiveRepo wraps a gateway.
func NewInactiveRepo(gw Gateway) *InactiveRepo {
	return &InactiveRepo{gw: gw}
}

// BatchSave writes a cycle's rejection records in chunks of 25 with retry.
func (r *InactiveRepo) BatchSave(ctx context.Context, recs []models.InactiveTickerRecord) error {
	if len(recs) == 0 {
		return nil
	}
	items := make([]Item, 0, len(recs))
	for i := range recs {
		item, err := MarshalItem(&recs[i])
		if err != nil {
			return fatal("batch_put", TableInactive, err)
		}
		// The id suffix keeps two evaluations of the same ticker in the same
		// instant from colliding.
		item["timestamp"] = recs[i].Timestamp.UTC().Format(time.RFC3339Nano) + "#" + recs[i].ID
		items = append(items, item)
	}
	return r.gw.BatchPut(ctx, TableInactive, items)
}

// ListByTicker returns the audit trail for one ticker.
func (r *InactiveRepo) ListByTicker(ctx context.Context, ticker string) ([]models.InactiveTickerRecord, error) {
	items, err := r.gw.Query(ctx, TableInactive, ticker)
	if err != nil {
		return nil, err
	}
	recs := make([]models.InactiveTickerRecord, 0, len(items))
	for _, item := range items {
		var rec models.InactiveTickerRecord
		if err := UnmarshalItem(item, &rec); err != nil {
			return nil, fatal("query", TableInactive, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
