package store

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBadger(t *testing.T) *BadgerGateway {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	gw, err := OpenBadger(t.TempDir()+"/store", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func TestBadgerPutGetDelete(t *testing.T) {
	gw := openTestBadger(t)
	ctx := context.Background()

	item := Item{"ticker": "AAPL", "indicator": "momentum", "entry_price": 152.37}
	require.NoError(t, gw.Put(ctx, TableMAB, item))

	got, err := gw.Get(ctx, TableMAB, Key{PK: "AAPL", SK: "momentum"})
	require.NoError(t, err)
	require.NotNil(t, got)
	f, ok := Float(got, "entry_price")
	require.True(t, ok)
	assert.Equal(t, 152.37, f)

	require.NoError(t, gw.Delete(ctx, TableMAB, Key{PK: "AAPL", SK: "momentum"}))
	got, err = gw.Get(ctx, TableMAB, Key{PK: "AAPL", SK: "momentum"})
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again is a no-op, not an error.
	require.NoError(t, gw.Delete(ctx, TableMAB, Key{PK: "AAPL", SK: "momentum"}))
}

func TestBadgerQueryByPartitionKey(t *testing.T) {
	gw := openTestBadger(t)
	ctx := context.Background()

	require.NoError(t, gw.Put(ctx, TableTrades, Item{
		"date": "2026-03-02", "ticker_indicator": "AAPL#momentum", "profit_loss": 12.5}))
	require.NoError(t, gw.Put(ctx, TableTrades, Item{
		"date": "2026-03-02", "ticker_indicator": "TSLA#penny", "profit_loss": -3.0}))
	require.NoError(t, gw.Put(ctx, TableTrades, Item{
		"date": "2026-03-03", "ticker_indicator": "AAPL#momentum", "profit_loss": 1.0}))

	items, err := gw.Query(ctx, TableTrades, "2026-03-02")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = gw.Query(ctx, TableTrades, "2026-03-04")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBadgerUpdateRequiresExistingRow(t *testing.T) {
	gw := openTestBadger(t)
	ctx := context.Background()

	err := gw.Update(ctx, TableActive, Key{PK: "GHOST"}, Item{"peak_price": 1.0})
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	require.NoError(t, gw.Put(ctx, TableActive, Item{"ticker": "AAPL", "peak_price": 10.0}))
	require.NoError(t, gw.Update(ctx, TableActive, Key{PK: "AAPL"}, Item{"peak_price": 11.0}))
	got, err := gw.Get(ctx, TableActive, Key{PK: "AAPL"})
	require.NoError(t, err)
	f, _ := Float(got, "peak_price")
	assert.Equal(t, 11.0, f)
}

func TestBadgerCanceledContextIsRetryable(t *testing.T) {
	gw := openTestBadger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gw.Put(ctx, TableActive, Item{"ticker": "AAPL"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}
