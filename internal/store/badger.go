package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
)

// record is the on-disk row shape. Body holds the coerced JSON item.
type record struct {
	ID    string `badgerhold:"key"`
	Table string
	PK    string
	SK    string
	Body  []byte
}

// BadgerGateway implements Gateway over an embedded badgerhold store.
type BadgerGateway struct {
	store  *badgerhold.Store
	logger *logrus.Logger

	// writeMu serializes read-modify-write updates; plain puts and reads go
	// straight to badger.
	writeMu sync.Mutex

	backoff func(attempt int) time.Duration
}

var _ Gateway = (*BadgerGateway)(nil)

// OpenBadger opens (or creates) the store at path.
func OpenBadger(path string, logger *logrus.Logger) (*BadgerGateway, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil
	st, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	return &BadgerGateway{
		store:  st,
		logger: logger,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<attempt) * 100 * time.Millisecond
		},
	}, nil
}

func (g *BadgerGateway) Put(ctx context.Context, table string, item Item) error {
	if err := ctx.Err(); err != nil {
		return retryable("put", table, err)
	}
	key, err := keyFromItem(table, item)
	if err != nil {
		return fatal("put", table, err)
	}
	return g.putKey(table, key, item)
}

func (g *BadgerGateway) putKey(table string, key Key, item Item) error {
	body, err := encodeItem(item)
	if err != nil {
		return fatal("put", table, err)
	}
	rec := record{ID: recordID(table, key), Table: table, PK: key.PK, SK: key.SK, Body: body}
	if err := g.store.Upsert(rec.ID, rec); err != nil {
		return classify("put", table, err)
	}
	return nil
}

func (g *BadgerGateway) Get(ctx context.Context, table string, key Key) (Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, retryable("get", table, err)
	}
	var rec record
	err := g.store.Get(recordID(table, key), &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get", table, err)
	}
	item, err := decodeItem(rec.Body)
	if err != nil {
		return nil, fatal("get", table, err)
	}
	return item, nil
}

func (g *BadgerGateway) Delete(ctx context.Context, table string, key Key) error {
	if err := ctx.Err(); err != nil {
		return retryable("delete", table, err)
	}
	err := g.store.Delete(recordID(table, key), record{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil // idempotent
	}
	if err != nil {
		return classify("delete", table, err)
	}
	return nil
}

func (g *BadgerGateway) Query(ctx context.Context, table, pk string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, retryable("query", table, err)
	}
	var recs []record
	q := badgerhold.Where("Table").Eq(table).And("PK").Eq(pk)
	if err := g.store.Find(&recs, q); err != nil {
		return nil, classify("query", table, err)
	}
	return decodeRecords(table, recs)
}

func (g *BadgerGateway) Scan(ctx context.Context, table string, filter Item) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, retryable("scan", table, err)
	}
	var recs []record
	if err := g.store.Find(&recs, badgerhold.Where("Table").Eq(table)); err != nil {
		return nil, classify("scan", table, err)
	}
	items, err := decodeRecords(table, recs)
	if err != nil {
		return nil, err
	}
	return filterItems(items, filter), nil
}

func (g *BadgerGateway) Update(ctx context.Context, table string, key Key, set Item) error {
	if err := ctx.Err(); err != nil {
		return retryable("update", table, err)
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

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

// BatchPut writes items in chunks of BatchChunkSize, retrying unprocessed
// items with exponential backoff up to three attempts.
func (g *BadgerGateway) BatchPut(ctx context.Context, table string, items []Item) error {
	return batchPutChunks(ctx, table, items, g.Put, g.backoff)
}

func (g *BadgerGateway) Close() error {
	return g.store.Close()
}

func decodeRecords(table string, recs []record) ([]Item, error) {
	items := make([]Item, 0, len(recs))
	for _, rec := range recs {
		item, err := decodeItem(rec.Body)
		if err != nil {
			return nil, fatal("decode", table, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func filterItems(items []Item, filter Item) []Item {
	if len(filter) == 0 {
		return items
	}
	out := items[:0]
	for _, item := range items {
		match := true
		for attr, want := range filter {
			if !attrEqual(item[attr], want) {
				match = false
				break
			}
		}
		if match {
			out = append(out, item)
		}
	}
	return out
}

// classify maps backend errors to the gateway taxonomy. Badger surfaces
// transaction conflicts as transient; everything else structural is fatal.
func classify(op, table string, err error) error {
	msg := err.Error()
	if containsAny(msg, "conflict", "retry", "timeout", "temporarily") {
		return retryable(op, table, err)
	}
	return fatal(op, table, err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
