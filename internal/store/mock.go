package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryGateway is an in-memory Gateway used by tests and the backtest
// driver. It honors the same coercion and key semantics as the badger
// implementation and supports failure injection.
type MemoryGateway struct {
	mu   sync.RWMutex
	rows map[string]memoryRow

	// FailPuts makes the next N Put calls fail with a retryable error.
	FailPuts int
	// PutCalls counts every Put attempt, including injected failures.
	PutCalls int
}

type memoryRow struct {
	table string
	key   Key
	body  []byte
}

var _ Gateway = (*MemoryGateway)(nil)

// NewMemoryGateway returns an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{rows: make(map[string]memoryRow)}
}

func (g *MemoryGateway) Put(ctx context.Context, table string, item Item) error {
	if err := ctx.Err(); err != nil {
		return retryable("put", table, err)
	}
	key, err := keyFromItem(table, item)
	if err != nil {
		return fatal("put", table, err)
	}
	return g.putKey(table, key, item)
}

func (g *MemoryGateway) putKey(table string, key Key, item Item) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.PutCalls++
	if g.FailPuts > 0 {
		g.FailPuts--
		return retryable("put", table, fmt.Errorf("injected failure"))
	}
	body, err := encodeItem(item)
	if err != nil {
		return fatal("put", table, err)
	}
	g.rows[recordID(table, key)] = memoryRow{table: table, key: key, body: body}
	return nil
}

func (g *MemoryGateway) Get(ctx context.Context, table string, key Key) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, retryable("get", table, err)
	}
	g.mu.RLock()
	row, ok := g.rows[recordID(table, key)]
	g.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	item, err := decodeItem(row.body)
	if err != nil {
		return nil, fatal("get", table, err)
	}
	return item, nil
}

func (g *MemoryGateway) Delete(ctx context.Context, table string, key Key) error {
	if err := ctx.Err(); err != nil {
		return retryable("delete", table, err)
	}
	g.mu.Lock()
	delete(g.rows, recordID(table, key))
	g.mu.Unlock()
	return nil
}

func (g *MemoryGateway) Query(ctx context.Context, table, pk string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, retryable("query", table, err)
	}
	return g.collect(func(row memoryRow) bool {
		return row.table == table && row.key.PK == pk
	})
}

func (g *MemoryGateway) Scan(ctx context.Context, table string, filter Item) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, retryable("scan", table, err)
	}
	items, err := g.collect(func(row memoryRow) bool { return row.table == table })
	if err != nil {
		return nil, err
	}
	return filterItems(items, filter), nil
}

func (g *MemoryGateway) Update(ctx context.Context, table string, key Key, set Item) error {
	current, err := g.Get(ctx, table, key)
	if err != nil {
		return err
	}
	if current == nil {
		return fatal("update", table, fmt.Errorf("row %s/%s does not exist", key.PK, key.SK))
	}
	for attr, v := range set {
		current[attr] = v
	}
	return g.putKey(table, key, current)
}

func (g *MemoryGateway) BatchPut(ctx context.Context, table string, items []Item) error {
	return batchPutChunks(ctx, table, items, g.Put, func(int) time.Duration { return time.Millisecond })
}

func (g *MemoryGateway) Close() error { return nil }

// Len reports how many rows a table holds.
func (g *MemoryGateway) Len(table string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, row := range g.rows {
		if row.table == table {
			n++
		}
	}
	return n
}

func (g *MemoryGateway) collect(match func(memoryRow) bool) ([]Item, error) {
	g.mu.RLock()
	ids := make([]string, 0, len(g.rows))
	for id, row := range g.rows {
		if match(row) {
			ids = append(ids, id)
		}
	}
	g.mu.RUnlock()
	sort.Strings(ids)

	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		g.mu.RLock()
		row, ok := g.rows[id]
		g.mu.RUnlock()
		if !ok {
			continue
		}
		item, err := decodeItem(row.body)
		if err != nil {
			return nil, fatal("scan", row.table, err)
		}
		items = append(items, item)
	}
	return items, nil
}
