// Package position owns the trade lifecycle: opening a validated candidate,
// tracking its peak while held, and seeing a close decision through to the
// completed-trade record. Persistence comes first; the webhook announcement
// is best-effort and never rolls a mutation back.
package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"daytrader/internal/models"
	"daytrader/internal/store"
	"daytrader/internal/util"
	"daytrader/internal/webhook"
)

var (
	tradesOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "daytrader_trades_opened_total",
		Help: "Positions opened, by indicator and direction.",
	}, []string{"indicator", "direction"})
	tradesClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "daytrader_trades_closed_total",
		Help: "Positions closed, by indicator and exit type.",
	}, []string{"indicator", "exit_type"})
)

func init() {
	prometheus.MustRegister(tradesOpened, tradesClosed)
}

// OutcomeRecorder receives the trade result for bandit learning.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, indicator, ticker string, success bool) error
}

// OpenRequest is a validated candidate ready to trade.
type OpenRequest struct {
	Ticker     string
	Indicator  string
	Direction  models.Direction
	Quote      *models.Quote
	Snapshot   *models.Snapshot
	Reason     string
	ATRStopPct float64 // negative
}

// Manager runs the position lifecycle for one strategy.
type Manager struct {
	positions *store.PositionRepo
	trades    *store.TradeRepo
	bandit    OutcomeRecorder
	publisher webhook.Publisher
	logger    *logrus.Logger
	now       func() time.Time

	// positionDollars is the notional per trade; share count is derived
	// from it at entry.
	positionDollars float64

	mu       sync.Mutex
	machines map[string]*StateMachine
}

// NewManager wires the lifecycle dependencies.
func NewManager(
	positions *store.PositionRepo,
	trades *store.TradeRepo,
	bandit OutcomeRecorder,
	publisher webhook.Publisher,
	positionDollars float64,
	logger *logrus.Logger,
) *Manager {
	return &Manager{
		positions:       positions,
		trades:          trades,
		bandit:          bandit,
		publisher:       publisher,
		positionDollars: positionDollars,
		logger:          logger,
		now:             time.Now,
		machines:        make(map[string]*StateMachine),
	}
}

// SetClock swaps the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// machineFor returns the lifecycle machine for a ticker, adopting positions
// recovered from the store straight into the held state.
func (m *Manager) machineFor(ticker string) *StateMachine {
	m.mu.Lock()
	defer m.mu.Unlock()
	sm, ok := m.machines[ticker]
	if !ok {
		sm = Adopted()
		m.machines[ticker] = sm
	}
	return sm
}

func (m *Manager) dropMachine(ticker string) {
	m.mu.Lock()
	delete(m.machines, ticker)
	m.mu.Unlock()
}

// Open enters a position at the quote's far side (ask for long, bid for
// short), persists it, and announces it. A persistence failure discards the
// candidate with no partial state.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*models.Position, error) {
	existing, err := m.positions.GetActive(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("position already active for %s (%s)", req.Ticker, existing.Indicator)
	}

	entry := req.Quote.Ask
	if req.Direction == models.Short {
		entry = req.Quote.Bid
	}
	entry = util.RoundPrice(entry)
	if entry <= 0 {
		return nil, fmt.Errorf("refusing to open %s: non-positive entry price %.4f", req.Ticker, entry)
	}

	sm := NewStateMachine()
	now := m.now()
	spread := req.Quote.SpreadPct()
	pos := &models.Position{
		Ticker:           req.Ticker,
		Indicator:        req.Indicator,
		Direction:        req.Direction,
		EntryPrice:       entry,
		BreakevenPrice:   models.BreakevenFor(entry, spread, req.Direction),
		EntryTime:        now,
		PeakPrice:        entry,
		ATRStopPct:       req.ATRStopPct,
		SpreadPctAtEntry: spread,
		EntryReason:      req.Reason,
		EntrySnapshot:    req.Snapshot,
		CreatedAt:        now,
	}

	if err := m.positions.SaveActive(ctx, pos); err != nil {
		_ = sm.Transition(StateClosed, "entry_discarded")
		return nil, fmt.Errorf("persisting position for %s: %w", req.Ticker, err)
	}
	if err := sm.Transition(StateOpen, "entry_persisted"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.machines[req.Ticker] = sm
	m.mu.Unlock()

	sig := &webhook.Signal{
		Ticker:              pos.Ticker,
		Action:              webhook.OpenAction(pos.Direction),
		Indicator:           pos.Indicator,
		Reason:              req.Reason,
		EnterPrice:          &pos.EntryPrice,
		TechnicalIndicators: req.Snapshot,
	}
	if err := m.publisher.Publish(ctx, sig); err != nil {
		m.logger.WithError(err).WithField("ticker", pos.Ticker).
			Warn("open signal delivery failed")
	}
	tradesOpened.WithLabelValues(pos.Indicator, string(pos.Direction)).Inc()
	m.logger.WithFields(logrus.Fields{
		"ticker":    pos.Ticker,
		"indicator": pos.Indicator,
		"direction": pos.Direction,
		"entry":     pos.EntryPrice,
	}).Info("position opened")
	return pos, nil
}

// RecordPeak folds a tick price into the position's peak tracking and
// persists the improvement. Per-ticker calls are serialized by the exit
// loop, so the read-modify-write is safe.
func (m *Manager) RecordPeak(ctx context.Context, pos *models.Position, price float64) error {
	sm := m.machineFor(pos.Ticker)
	if sm.Current() == StateOpen {
		if err := sm.Transition(StateHeld, "first_tick"); err != nil {
			return err
		}
	}
	if !pos.UpdatePeak(price) {
		return nil
	}
	_ = sm.Transition(StateHeld, "peak_updated")
	return m.positions.UpdatePeak(ctx, pos.Ticker, pos.PeakPrice, pos.PeakProfitPct, pos.TrailingStopPct)
}

// Exit sees a close decision through: persist the completed trade, delete
// the active row, reward the bandit, announce the close. Returns the
// completed trade. exitSnap captures the technicals at close time; callers
// that cannot supply one may pass nil and get a price-only snapshot.
func (m *Manager) Exit(ctx context.Context, pos *models.Position, exitPrice float64, reason, exitType string, exitSnap *models.Snapshot) (*models.CompletedTrade, error) {
	sm := m.machineFor(pos.Ticker)
	if sm.Current() == StateOpen || sm.Current() == StateHeld {
		if err := sm.Transition(StateExiting, "exit_decision"); err != nil {
			return nil, err
		}
	}

	exitPrice = util.RoundPrice(exitPrice)
	if pos.EntryPrice <= 0 {
		return nil, fmt.Errorf("cannot close %s: invalid entry price %.4f", pos.Ticker, pos.EntryPrice)
	}
	shares := m.positionDollars / pos.EntryPrice
	pnl := (exitPrice - pos.EntryPrice) * shares
	if pos.Direction == models.Short {
		pnl = (pos.EntryPrice - exitPrice) * shares
	}

	if exitSnap == nil {
		exitSnap = models.DefaultSnapshot(exitPrice, 0)
	}

	enter := models.MarketTime(pos.EntryTime)
	exit := models.MarketTime(m.now())
	if exit.Before(enter) {
		exit = enter
	}

	trade := &models.CompletedTrade{
		Ticker:        pos.Ticker,
		Indicator:     pos.Indicator,
		Direction:     pos.Direction,
		TradeDate:     models.TradeDate(exit),
		EnterPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		EnterTime:     enter,
		ExitTime:      exit,
		Shares:        shares,
		ProfitLoss:    pnl,
		ProfitLossPct: pos.ProfitPct(exitPrice),
		EnterReason:   pos.EntryReason,
		ExitReason:    reason,
		ExitType:      exitType,
		EnterSnapshot: pos.EntrySnapshot,
		ExitSnapshot:  exitSnap,
	}

	if err := m.trades.SaveCompleted(ctx, trade); err != nil {
		return nil, fmt.Errorf("persisting completed trade for %s: %w", pos.Ticker, err)
	}
	if err := m.positions.DeleteActive(ctx, pos.Ticker); err != nil {
		return nil, fmt.Errorf("deleting active position for %s: %w", pos.Ticker, err)
	}
	_ = sm.Transition(StateClosed, "trade_persisted")
	m.dropMachine(pos.Ticker)

	if err := m.bandit.RecordOutcome(ctx, pos.Indicator, pos.Ticker, pnl > 0); err != nil {
		m.logger.WithError(err).WithField("ticker", pos.Ticker).
			Warn("bandit outcome not recorded")
	}

	sig := &webhook.Signal{
		Ticker:              pos.Ticker,
		Action:              webhook.CloseAction(pos.Direction),
		Indicator:           pos.Indicator,
		Reason:              reason,
		ExitPrice:           &trade.ExitPrice,
		ProfitLoss:          &trade.ProfitLoss,
		TechnicalIndicators: exitSnap,
	}
	if err := m.publisher.Publish(ctx, sig); err != nil {
		m.logger.WithError(err).WithField("ticker", pos.Ticker).
			Warn("close signal delivery failed")
	}
	tradesClosed.WithLabelValues(pos.Indicator, exitType).Inc()
	m.logger.WithFields(logrus.Fields{
		"ticker":    pos.Ticker,
		"indicator": pos.Indicator,
		"pnl":       trade.ProfitLoss,
		"pnl_pct":   trade.ProfitLossPct,
		"exit_type": exitType,
	}).Info("position closed")
	return trade, nil
}
