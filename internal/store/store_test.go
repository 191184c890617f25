package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daytrader/internal/models"
)

func TestCoerceConvertsFloatsRecursively(t *testing.T) {
	in := Item{
		"price": 12.345,
		"nested": map[string]any{
			"atr": 0.5,
			"tag": "keep",
		},
		"series": []any{1.5, "x"},
		"count":  3,
	}
	out := Coerce(in).(Item)

	assert.IsType(t, decimal.Decimal{}, out["price"])
	nested := out["nested"].(map[string]any)
	assert.IsType(t, decimal.Decimal{}, nested["atr"])
	assert.Equal(t, "keep", nested["tag"])
	series := out["series"].([]any)
	assert.IsType(t, decimal.Decimal{}, series[0])
	assert.Equal(t, "x", series[1])
	assert.Equal(t, 3, out["count"])
}

func TestItemRoundTripKeepsNumbersDecimal(t *testing.T) {
	body, err := encodeItem(Item{"ticker": "AAPL", "price": 152.37})
	require.NoError(t, err)

	item, err := decodeItem(body)
	require.NoError(t, err)

	// Numbers come back as json.Number, never binary floats.
	num, ok := item["price"].(json.Number)
	require.True(t, ok, "price should decode as json.Number, got %T", item["price"])
	assert.Equal(t, "152.37", num.String())

	f, ok := Float(item, "price")
	require.True(t, ok)
	assert.Equal(t, 152.37, f)
}

func newTestPosition() *models.Position {
	entry := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	return &models.Position{
		Ticker:           "AAPL",
		Indicator:        "momentum",
		Direction:        models.Long,
		EntryPrice:       152.37,
		BreakevenPrice:   153.1318,
		EntryTime:        entry,
		PeakPrice:        152.37,
		ATRStopPct:       -1.25,
		SpreadPctAtEntry: 0.5,
		DynamicStopPct:   -2.0,
		TrailingStopPct:  1.5,
		PeakProfitPct:    0,
		EntrySnapshot:    models.DefaultSnapshot(152.37, 1000),
		CreatedAt:        entry,
	}
}

func TestPositionRoundTripPreservesNumerics(t *testing.T) {
	gw := NewMemoryGateway()
	repo := NewPositionRepo(gw)
	ctx := context.Background()

	want := newTestPosition()
	require.NoError(t, repo.SaveActive(ctx, want))

	got, err := repo.GetActive(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.EntryPrice, got.EntryPrice)
	assert.Equal(t, want.BreakevenPrice, got.BreakevenPrice)
	assert.Equal(t, want.ATRStopPct, got.ATRStopPct)
	assert.Equal(t, want.SpreadPctAtEntry, got.SpreadPctAtEntry)
	assert.Equal(t, want.DynamicStopPct, got.DynamicStopPct)
	assert.Equal(t, want.TrailingStopPct, got.TrailingStopPct)
	assert.Equal(t, want.EntrySnapshot.ATR, got.EntrySnapshot.ATR)
	assert.True(t, want.EntryTime.Equal(got.EntryTime))
}

func TestGetAbsentReturnsNilNil(t *testing.T) {
	repo := NewPositionRepo(NewMemoryGateway())
	got, err := repo.GetActive(context.Background(), "MISSING")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveActiveRejectsInvalidPosition(t *testing.T) {
	repo := NewPositionRepo(NewMemoryGateway())
	p := newTestPosition()
	p.EntryPrice = 0
	err := repo.SaveActive(context.Background(), p)
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestUpdatePeakMergesAttributes(t *testing.T) {
	gw := NewMemoryGateway()
	repo := NewPositionRepo(gw)
	ctx := context.Background()
	require.NoError(t, repo.SaveActive(ctx, newTestPosition()))

	require.NoError(t, repo.UpdatePeak(ctx, "AAPL", 154.0, 0.57, 1.5))

	got, err := repo.GetActive(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 154.0, got.PeakPrice)
	assert.Equal(t, 0.57, got.PeakProfitPct)
	// Untouched fields survive the merge.
	assert.Equal(t, 152.37, got.EntryPrice)
}

func TestBatchPutRetriesUnprocessed(t *testing.T) {
	gw := NewMemoryGateway()
	gw.FailPuts = 2 // first two put attempts fail transiently

	items := make([]Item, 30)
	for i := range items {
		items[i] = Item{"ticker": tickerN(i), "indicator": "momentum"}
	}
	err := gw.BatchPut(context.Background(), TableMAB, items)
	require.NoError(t, err)
	assert.Equal(t, 30, gw.Len(TableMAB))
	// 25 + 5 initial attempts plus 2 retried items.
	assert.Equal(t, 32, gw.PutCalls)
}

func TestBatchPutGivesUpAfterMaxAttempts(t *testing.T) {
	gw := NewMemoryGateway()
	gw.FailPuts = 1000

	err := gw.BatchPut(context.Background(), TableMAB, []Item{
		{"ticker": "AAPL", "indicator": "momentum"},
	})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
}

func TestBatchPutFatalOnMissingKey(t *testing.T) {
	gw := NewMemoryGateway()
	err := gw.BatchPut(context.Background(), TableMAB, []Item{{"indicator": "momentum"}})
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestScanFilterEquality(t *testing.T) {
	gw := NewMemoryGateway()
	ctx := context.Background()
	require.NoError(t, gw.Put(ctx, TableMAB, Item{"ticker": "AAPL", "indicator": "momentum"}))
	require.NoError(t, gw.Put(ctx, TableMAB, Item{"ticker": "AAPL", "indicator": "penny"}))
	require.NoError(t, gw.Put(ctx, TableMAB, Item{"ticker": "TSLA", "indicator": "momentum"}))

	items, err := gw.Scan(ctx, TableMAB, Item{"indicator": "momentum"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestTradeRepoCountForDay(t *testing.T) {
	gw := NewMemoryGateway()
	repo := NewTradeRepo(gw)
	ctx := context.Background()

	save := func(ticker, indicator string) {
		tr := &models.CompletedTrade{
			Ticker: ticker, Indicator: indicator, Direction: models.Long,
			TradeDate:  "2026-03-02",
			EnterPrice: 10, ExitPrice: 10.2,
			EnterTime: time.Now(), ExitTime: time.Now(),
		}
		require.NoError(t, repo.SaveCompleted(ctx, tr))
	}
	save("AAPL", "momentum")
	save("TSLA", "momentum")
	save("GME", "penny")

	n, err := repo.CountForDay(ctx, "momentum", "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.CountForDay(ctx, "momentum", "2026-03-03")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTradeRepoIdempotentByKey(t *testing.T) {
	gw := NewMemoryGateway()
	repo := NewTradeRepo(gw)
	ctx := context.Background()
	tr := &models.CompletedTrade{
		Ticker: "AAPL", Indicator: "momentum", Direction: models.Long,
		TradeDate: "2026-03-02", EnterPrice: 10, ExitPrice: 10.2,
		EnterTime: time.Now(), ExitTime: time.Now(),
	}
	require.NoError(t, repo.SaveCompleted(ctx, tr))
	require.NoError(t, repo.SaveCompleted(ctx, tr))
	assert.Equal(t, 1, gw.Len(TableTrades))
}

func TestMABRepoRoundTrip(t *testing.T) {
	gw := NewMemoryGateway()
	repo := NewMABRepo(gw)
	ctx := context.Background()

	absent, err := repo.Get(ctx, "momentum", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, absent)

	until := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	stats := &models.MABStats{
		Ticker: "AAPL", Indicator: "momentum",
		Successes: 4, Failures: 1, Total: 5,
		LastUpdated:   time.Now().UTC(),
		ExcludedUntil: &until,
	}
	require.NoError(t, repo.Save(ctx, stats))

	got, err := repo.Get(ctx, "momentum", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Successes)
	assert.Equal(t, 5, got.Total)
	require.NotNil(t, got.ExcludedUntil)
	assert.True(t, until.Equal(*got.ExcludedUntil))
}

func TestInactiveRepoBatchAndList(t *testing.T) {
	gw := NewMemoryGateway()
	repo := NewInactiveRepo(gw)
	ctx := context.Background()

	now := time.Now()
	recs := []models.InactiveTickerRecord{
		{ID: "a", Ticker: "AAPL", Indicator: "momentum", Timestamp: now,
			ReasonLong: "x", ReasonShort: "x"},
		{ID: "b", Ticker: "AAPL", Indicator: "momentum", Timestamp: now,
			ReasonLong: "y", ReasonShort: ""},
	}
	require.NoError(t, repo.BatchSave(ctx, recs))

	got, err := repo.ListByTicker(ctx, "AAPL")
	require.NoError(t, err)
	// Same ticker, same instant: the id suffix keeps both rows.
	assert.Len(t, got, 2)
}

func tickerN(i int) string {
	return string(rune('A'+i%26)) + string(rune('A'+(i/26)%26)) + "X"
}
