package store

import (
	"context"
	"time"

	"daytrader/internal/models"
)

// Event is an operational audit entry: daily resets, threshold changes,
// memory aborts. One row per (date, indicator); later events for the same
// pair overwrite earlier ones.
type Event struct {
	Date      string    `json:"date"`
	Indicator string    `json:"indicator"`
	Type      string    `json:"type"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"event_time"`
}

// EventRepo persists engine events.
type EventRepo struct {
	gw Gateway
}

// NewEventRepo wraps a gateway.
func NewEventRepo(gw Gateway) *EventRepo {
	return &EventRepo{gw: gw}
}

// Record writes an event stamped with the market-local date.
func (r *EventRepo) Record(ctx context.Context, indicator, eventType, detail string) error {
	now := time.Now()
	ev := Event{
		Date:      models.TradeDate(now),
		Indicator: indicator,
		Type:      eventType,
		Detail:    detail,
		Timestamp: now,
	}
	item, err := MarshalItem(&ev)
	if err != nil {
		return fatal("put", TableEvents, err)
	}
	return r.gw.Put(ctx, TableEvents, item)
}

// ListByDate returns the events recorded on a market day.
func (r *EventRepo) ListByDate(ctx context.Context, date string) ([]Event, error) {
	items, err := r.gw.Query(ctx, TableEvents, date)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(items))
	for _, item := range items {
		var ev Event
		if err := UnmarshalItem(item, &ev); err != nil {
			return nil, fatal("query", TableEvents, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
