package store

import (
	"context"
	"fmt"
	"time"
)

// Table names. All tables are partition-key first; two carry a sort key.
const (
	TableActive   = "ActiveTickersForAutomatedDayTrader"
	TableTrades   = "CompletedTradesForMarketData"
	TableInactive = "InactiveTickersForDayTrading"
	TableMAB      = "MABForDayTradingService"
	TableEvents   = "DayTraderEvents"
)

// Schema names the item attributes that form a table's key.
type Schema struct {
	PKAttr string
	SKAttr string // empty when the table has no sort key
}

// Schemas is the key layout of every known table.
var Schemas = map[string]Schema{
	TableActive:   {PKAttr: "ticker"},
	TableTrades:   {PKAttr: "date", SKAttr: "ticker_indicator"},
	TableInactive: {PKAttr: "ticker", SKAttr: "timestamp"},
	TableMAB:      {PKAttr: "ticker", SKAttr: "indicator"},
	TableEvents:   {PKAttr: "date", SKAttr: "indicator"},
}

const (
	// BatchChunkSize is how many items a single batch write carries.
	BatchChunkSize = 25
	// batchMaxAttempts bounds retries of unprocessed batch items.
	batchMaxAttempts = 3
)

// Gateway is the typed CRUD surface over the key/value store. Implementations
// must be safe for concurrent use; all methods are goroutine-safe.
//
// Get returns (nil, nil) when the row is absent. Scan's filter is a
// conjunction of attribute equalities; a nil filter matches everything.
type Gateway interface {
	Put(ctx context.Context, table string, item Item) error
	Get(ctx context.Context, table string, key Key) (Item, error)
	Delete(ctx context.Context, table string, key Key) error
	Query(ctx context.Context, table, pk string) ([]Item, error)
	Scan(ctx context.Context, table string, filter Item) ([]Item, error)
	Update(ctx context.Context, table string, key Key, set Item) error
	BatchPut(ctx context.Context, table string, items []Item) error
	Close() error
}

// keyFromItem derives the row key from an item per the table schema.
func keyFromItem(table string, item Item) (Key, error) {
	schema, ok := Schemas[table]
	if !ok {
		return Key{}, fmt.Errorf("unknown table %q", table)
	}
	pk := Str(item, schema.PKAttr)
	if pk == "" {
		return Key{}, fmt.Errorf("item missing partition key attribute %q", schema.PKAttr)
	}
	key := Key{PK: pk}
	if schema.SKAttr != "" {
		key.SK = Str(item, schema.SKAttr)
		if key.SK == "" {
			return Key{}, fmt.Errorf("item missing sort key attribute %q", schema.SKAttr)
		}
	}
	return key, nil
}

func recordID(table string, key Key) string {
	return table + "#" + key.PK + "#" + key.SK
}

// batchPutChunks implements the shared batch-write contract: chunks of
// BatchChunkSize, unprocessed items retried with exponential backoff up to
// batchMaxAttempts, fatal item errors surfaced immediately.
func batchPutChunks(
	ctx context.Context,
	table string,
	items []Item,
	put func(ctx context.Context, table string, item Item) error,
	backoff func(attempt int) time.Duration,
) error {
	for start := 0; start < len(items); start += BatchChunkSize {
		end := start + BatchChunkSize
		if end > len(items) {
			end = len(items)
		}
		pending := items[start:end]
		for attempt := 0; attempt < batchMaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return retryable("batch_put", table, err)
			}
			var unprocessed []Item
			for _, item := range pending {
				err := put(ctx, table, item)
				switch {
				case err == nil:
				case IsFatal(err):
					return err
				default:
					unprocessed = append(unprocessed, item)
				}
			}
			if len(unprocessed) == 0 {
				pending = nil
				break
			}
			pending = unprocessed
			if attempt == batchMaxAttempts-1 {
				break
			}
			select {
			case <-ctx.Done():
				return retryable("batch_put", table, ctx.Err())
			case <-time.After(backoff(attempt)):
			}
		}
		if len(pending) > 0 {
			return retryable("batch_put", table,
				fmt.Errorf("%d items unprocessed after %d attempts", len(pending), batchMaxAttempts))
		}
	}
	return nil
}
