package position

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daytrader/internal/models"
	"daytrader/internal/store"
	"daytrader/internal/webhook"
)

type banditSpy struct {
	calls []struct {
		Indicator, Ticker string
		Success           bool
	}
}

func (b *banditSpy) RecordOutcome(ctx context.Context, indicator, ticker string, success bool) error {
	b.calls = append(b.calls, struct {
		Indicator, Ticker string
		Success           bool
	}{indicator, ticker, success})
	return nil
}

type fixture struct {
	mgr       *Manager
	gw        *store.MemoryGateway
	positions *store.PositionRepo
	trades    *store.TradeRepo
	bandit    *banditSpy
	recorder  *webhook.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	gw := store.NewMemoryGateway()
	f := &fixture{
		gw:        gw,
		positions: store.NewPositionRepo(gw),
		trades:    store.NewTradeRepo(gw),
		bandit:    &banditSpy{},
		recorder:  &webhook.Recorder{},
	}
	f.mgr = NewManager(f.positions, f.trades, f.bandit, f.recorder, 1000, logger)
	return f
}

func quote(ticker string, bid, ask float64) *models.Quote {
	return &models.Quote{Ticker: ticker, Bid: bid, Ask: ask, Timestamp: time.Now()}
}

func TestOpenPersistsAtAskAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pos, err := f.mgr.Open(ctx, OpenRequest{
		Ticker:     "AAPL",
		Indicator:  "momentum",
		Direction:  models.Long,
		Quote:      quote("AAPL", 149.90, 150.10),
		Snapshot:   models.DefaultSnapshot(150, 1e6),
		Reason:     "strong uptrend",
		ATRStopPct: -2,
	})

	require.NoError(t, err)
	assert.Equal(t, 150.10, pos.EntryPrice, "long entries fill at the ask")
	assert.Greater(t, pos.BreakevenPrice, pos.EntryPrice)
	assert.Equal(t, pos.EntryPrice, pos.PeakPrice)

	stored, err := f.positions.GetActive(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "momentum", stored.Indicator)

	sigs := f.recorder.Published()
	require.Len(t, sigs, 1)
	assert.Equal(t, webhook.ActionBuyToOpen, sigs[0].Action)
	require.NotNil(t, sigs[0].EnterPrice)
	assert.Equal(t, 150.10, *sigs[0].EnterPrice)
}

func TestOpenShortFillsAtBid(t *testing.T) {
	f := newFixture(t)

	pos, err := f.mgr.Open(context.Background(), OpenRequest{
		Ticker:    "XYZ",
		Indicator: "momentum",
		Direction: models.Short,
		Quote:     quote("XYZ", 49.90, 50.10),
	})

	require.NoError(t, err)
	assert.Equal(t, 49.90, pos.EntryPrice)
	assert.Less(t, pos.BreakevenPrice, pos.EntryPrice)
	sigs := f.recorder.Published()
	require.Len(t, sigs, 1)
	assert.Equal(t, webhook.ActionSellToOpen, sigs[0].Action)
}

func TestOpenRejectsDuplicateTicker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := OpenRequest{
		Ticker: "AAPL", Indicator: "momentum", Direction: models.Long,
		Quote: quote("AAPL", 149.90, 150.10),
	}
	_, err := f.mgr.Open(ctx, req)
	require.NoError(t, err)

	_, err = f.mgr.Open(ctx, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already active")
}

func TestOpenDiscardsCandidateOnPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.gw.FailPuts = 10

	_, err := f.mgr.Open(context.Background(), OpenRequest{
		Ticker: "AAPL", Indicator: "momentum", Direction: models.Long,
		Quote: quote("AAPL", 149.90, 150.10),
	})

	require.Error(t, err)
	assert.Empty(t, f.recorder.Published(), "no signal without a persisted position")
	assert.Zero(t, f.gw.Len(store.TableActive))
}

func TestExitComputesPnLAndRewardsBandit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos, err := f.mgr.Open(ctx, OpenRequest{
		Ticker: "AAPL", Indicator: "momentum", Direction: models.Long,
		Quote: quote("AAPL", 99.95, 100.00), Reason: "trend entry",
	})
	require.NoError(t, err)

	trade, err := f.mgr.Exit(ctx, pos, 102.00, "trailing stop", "trailing_stop", nil)
	require.NoError(t, err)

	// 10 shares at $100 entry, +$2 each.
	assert.InDelta(t, 10, trade.Shares, 1e-9)
	assert.InDelta(t, 20, trade.ProfitLoss, 1e-9)
	assert.InDelta(t, 2.0, trade.ProfitLossPct, 1e-9)
	assert.Equal(t, "trend entry", trade.EnterReason)
	assert.Equal(t, "trailing_stop", trade.ExitType)

	active, err := f.positions.GetActive(ctx, "AAPL")
	require.NoError(t, err)
	assert.Nil(t, active, "active row deleted on close")

	require.Len(t, f.bandit.calls, 1)
	assert.True(t, f.bandit.calls[0].Success)

	sigs := f.recorder.Published()
	require.Len(t, sigs, 2)
	assert.Equal(t, webhook.ActionSellToClose, sigs[1].Action)
	require.NotNil(t, sigs[1].ProfitLoss)
	assert.InDelta(t, 20, *sigs[1].ProfitLoss, 1e-9)
}

func TestExitShortPnLMirrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos, err := f.mgr.Open(ctx, OpenRequest{
		Ticker: "XYZ", Indicator: "penny", Direction: models.Short,
		Quote: quote("XYZ", 50.00, 50.05),
	})
	require.NoError(t, err)

	trade, err := f.mgr.Exit(ctx, pos, 49.00, "atr stop", "stop_loss", nil)
	require.NoError(t, err)

	// 20 shares at $50, short gains $1 each.
	assert.InDelta(t, 20, trade.Shares, 1e-9)
	assert.InDelta(t, 20, trade.ProfitLoss, 1e-9)
	require.Len(t, f.bandit.calls, 1)
	assert.True(t, f.bandit.calls[0].Success)
	sigs := f.recorder.Published()
	assert.Equal(t, webhook.ActionBuyToClose, sigs[1].Action)
}

func TestExitLosingTradeRecordsFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos, err := f.mgr.Open(ctx, OpenRequest{
		Ticker: "LOSR", Indicator: "momentum", Direction: models.Long,
		Quote: quote("LOSR", 19.99, 20.00),
	})
	require.NoError(t, err)

	trade, err := f.mgr.Exit(ctx, pos, 19.00, "emergency", "emergency", nil)
	require.NoError(t, err)
	assert.Negative(t, trade.ProfitLoss)
	require.Len(t, f.bandit.calls, 1)
	assert.False(t, f.bandit.calls[0].Success)
}

func TestExitTimestampsAreMarketLocalAndOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos, err := f.mgr.Open(ctx, OpenRequest{
		Ticker: "AAPL", Indicator: "momentum", Direction: models.Long,
		Quote: quote("AAPL", 99.95, 100.00),
	})
	require.NoError(t, err)

	// Clock skew: wall clock reads before the entry time.
	f.mgr.SetClock(func() time.Time { return pos.EntryTime.Add(-time.Minute) })
	trade, err := f.mgr.Exit(ctx, pos, 100.50, "eod", "eod", nil)
	require.NoError(t, err)

	assert.False(t, trade.ExitTime.Before(trade.EnterTime))
	_, enterOffset := trade.EnterTime.Zone()
	assert.Contains(t, []int{-5 * 3600, -4 * 3600}, enterOffset)
	assert.Equal(t, trade.EnterTime.Format("2006-01-02"), trade.TradeDate)
}

func TestExitWebhookFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos, err := f.mgr.Open(ctx, OpenRequest{
		Ticker: "AAPL", Indicator: "momentum", Direction: models.Long,
		Quote: quote("AAPL", 99.95, 100.00),
	})
	require.NoError(t, err)

	f.recorder.Err = assert.AnError
	trade, err := f.mgr.Exit(ctx, pos, 101.00, "eod", "eod", nil)
	require.NoError(t, err, "webhook failure must not fail the close")
	require.NotNil(t, trade)

	trades, err := f.trades.ListByDate(ctx, trade.TradeDate)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestExitPersistsBothSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos, err := f.mgr.Open(ctx, OpenRequest{
		Ticker: "AAPL", Indicator: "momentum", Direction: models.Long,
		Quote: quote("AAPL", 99.95, 100.00),
		Snapshot: &models.Snapshot{RSI: 62, Close: 100.00},
	})
	require.NoError(t, err)

	exitSnap := &models.Snapshot{RSI: 71, Close: 103.00, ATR: 1.2}
	trade, err := f.mgr.Exit(ctx, pos, 103.00, "trailing stop", "trailing_stop", exitSnap)
	require.NoError(t, err)

	stored, err := f.trades.ListByDate(ctx, trade.TradeDate)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].EnterSnapshot)
	require.NotNil(t, stored[0].ExitSnapshot)
	assert.InDelta(t, 62, stored[0].EnterSnapshot.RSI, 1e-9)
	assert.InDelta(t, 71, stored[0].ExitSnapshot.RSI, 1e-9)
	assert.InDelta(t, 103.00, stored[0].ExitSnapshot.Close, 1e-9)

	// Close signal carries the close-time technicals, not the entry view.
	sigs := f.recorder.Published()
	require.Len(t, sigs, 2)
	require.NotNil(t, sigs[1].TechnicalIndicators)
	assert.InDelta(t, 71, sigs[1].TechnicalIndicators.RSI, 1e-9)
}

func TestExitWithoutSnapshotFallsBackToPriceOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos, err := f.mgr.Open(ctx, OpenRequest{
		Ticker: "XYZ", Indicator: "penny", Direction: models.Long,
		Quote: quote("XYZ", 49.95, 50.00),
	})
	require.NoError(t, err)

	trade, err := f.mgr.Exit(ctx, pos, 51.00, "eod", "eod", nil)
	require.NoError(t, err)

	require.NotNil(t, trade.ExitSnapshot)
	assert.InDelta(t, 51.00, trade.ExitSnapshot.Close, 1e-9)
	assert.InDelta(t, 50, trade.ExitSnapshot.RSI, 1e-9)
}

func TestRecordPeakPersistsImprovement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos, err := f.mgr.Open(ctx, OpenRequest{
		Ticker: "AAPL", Indicator: "momentum", Direction: models.Long,
		Quote: quote("AAPL", 99.95, 100.00),
	})
	require.NoError(t, err)

	require.NoError(t, f.mgr.RecordPeak(ctx, pos, 101.50))
	stored, err := f.positions.GetActive(ctx, "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 101.50, stored.PeakPrice, 1e-9)
	assert.Greater(t, stored.PeakProfitPct, 0.0)

	// A worse tick does not regress the stored peak.
	require.NoError(t, f.mgr.RecordPeak(ctx, pos, 100.20))
	stored, err = f.positions.GetActive(ctx, "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 101.50, stored.PeakPrice, 1e-9)
}

func TestLifecycleTransitions(t *testing.T) {
	sm := NewStateMachine()
	require.Error(t, sm.Transition(StateHeld, "first_tick"), "candidate cannot be held")
	require.NoError(t, sm.Transition(StateOpen, "entry_persisted"))
	require.NoError(t, sm.Transition(StateHeld, "first_tick"))
	require.NoError(t, sm.Transition(StateHeld, "peak_updated"))
	require.NoError(t, sm.Transition(StateExiting, "exit_decision"))
	require.Error(t, sm.Transition(StateHeld, "first_tick"), "exiting cannot go back to held")
	require.NoError(t, sm.Transition(StateClosed, "trade_persisted"))
	assert.True(t, sm.Terminal())
	assert.Equal(t, StateExiting, sm.Previous())
}
