package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"daytrader/internal/exitengine"
	"daytrader/internal/indicators"
	"daytrader/internal/mab"
	"daytrader/internal/marketdata"
	"daytrader/internal/memgov"
	"daytrader/internal/models"
	"daytrader/internal/position"
	"daytrader/internal/store"
	"daytrader/internal/validation"
)

// Deps are the collaborators a runner needs. All are required except Events.
type Deps struct {
	Provider  marketdata.Provider
	Fetcher   *marketdata.Fetcher
	Governor  *memgov.Governor
	Selector  *mab.Selector
	Manager   *position.Manager
	Positions *store.PositionRepo
	Trades    *store.TradeRepo
	Inactive  *store.InactiveRepo
	Events    *store.EventRepo
	Logger    *logrus.Logger
}

// Runner executes one strategy's entry and exit loops.
type Runner struct {
	params Params
	deps   Deps
	chain  *validation.Chain
	engine *exitengine.Engine
	log    *logrus.Entry
	now    func() time.Time

	mu            sync.Mutex
	cooldowns     map[string]time.Time
	bench         map[string]struct{}
	lastResetDate string
}

// NewRunner builds a runner for one strategy.
func NewRunner(params Params, deps Deps) *Runner {
	chain := validation.NewMomentumChain(params.Validation)
	if params.Simplified {
		chain = validation.NewPennyChain(params.Validation)
	}
	return &Runner{
		params:    params,
		deps:      deps,
		chain:     chain,
		engine:    exitengine.New(params.Exit),
		log:       deps.Logger.WithField("indicator", params.Name),
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
		bench:     make(map[string]struct{}),
	}
}

// Name returns the strategy's indicator name.
func (r *Runner) Name() string { return r.params.Name }

// SetClock swaps the time source. Test hook.
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Run drives both loops until the context is canceled. Cycle errors are
// logged and never stop a loop; in-flight cycles finish before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.loop(ctx, r.params.EntryTick, "entry", r.EntryCycle) })
	g.Go(func() error { return r.loop(ctx, r.params.ExitTick, "exit", r.ExitCycle) })
	err := g.Wait()
	r.engine.Reset()
	return err
}

func (r *Runner) loop(ctx context.Context, every time.Duration, name string, cycle func(context.Context) error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := cycle(ctx); err != nil && ctx.Err() == nil {
			r.log.WithError(err).WithField("loop", name).Error("cycle failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// EntryCycle runs one pass of the entry loop.
func (r *Runner) EntryCycle(ctx context.Context) error {
	open, err := r.deps.Provider.IsMarketOpen(ctx)
	if err != nil {
		return fmt.Errorf("checking market clock: %w", err)
	}
	if !open {
		return nil
	}
	if err := r.dailyResetIfNeeded(ctx); err != nil {
		r.log.WithError(err).Warn("daily reset incomplete")
	}

	today := models.TradeDate(r.now())
	tradeCount, err := r.deps.Trades.CountForDay(ctx, r.params.Name, today)
	if err != nil {
		return fmt.Errorf("counting today's trades: %w", err)
	}

	universe, err := r.screenUniverse(ctx)
	if err != nil {
		return err
	}
	data := r.deps.Fetcher.FetchAll(ctx, universe)

	var inactive []models.InactiveTickerRecord
	up, down := r.validate(data, &inactive)

	picksUp, err := r.deps.Selector.Select(ctx, r.params.Name, up, r.params.TopK)
	if err != nil {
		return fmt.Errorf("selecting long candidates: %w", err)
	}
	picksDown, err := r.deps.Selector.Select(ctx, r.params.Name, down, r.params.TopK)
	if err != nil {
		return fmt.Errorf("selecting short candidates: %w", err)
	}
	r.collectBanditRejections(picksUp, data, &inactive)
	r.collectBanditRejections(picksDown, data, &inactive)

	opened := 0
	for _, pick := range picksUp.Tickers {
		if r.tryOpen(ctx, data[pick], models.Long, tradeCount+opened, &inactive) {
			opened++
		}
	}
	for _, pick := range picksDown.Tickers {
		if r.tryOpen(ctx, data[pick], models.Short, tradeCount+opened, &inactive) {
			opened++
		}
	}

	if err := r.deps.Inactive.BatchSave(ctx, inactive); err != nil {
		r.log.WithError(err).WithField("records", len(inactive)).
			Warn("inactive-ticker audit batch not persisted")
	}
	return nil
}

// dailyResetIfNeeded clears the bandit exclusions, the bench, and the
// cooldowns once per market-day transition. The date stamp is written only
// after the bandit reset succeeds, so a failed reset is retried on the next
// cycle instead of silently skipped for the rest of the day. ResetDaily is
// idempotent, so the in-memory clears running again on retry is harmless.
func (r *Runner) dailyResetIfNeeded(ctx context.Context) error {
	today := models.TradeDate(r.now())
	r.mu.Lock()
	if r.lastResetDate == today {
		r.mu.Unlock()
		return nil
	}
	r.bench = make(map[string]struct{})
	r.cooldowns = make(map[string]time.Time)
	r.mu.Unlock()

	if err := r.deps.Selector.ResetDaily(ctx, r.params.Name); err != nil {
		return err
	}
	r.mu.Lock()
	r.lastResetDate = today
	r.mu.Unlock()
	if r.deps.Events != nil {
		if err := r.deps.Events.Record(ctx, r.params.Name, "daily_reset",
			"bandit exclusions, bench and cooldowns cleared"); err != nil {
			r.log.WithError(err).Warn("daily-reset event not recorded")
		}
	}
	r.log.WithField("date", today).Info("market-day reset complete")
	return nil
}

// screenUniverse pulls the screener symbols and drops actives, cooldowns,
// and benched tickers.
func (r *Runner) screenUniverse(ctx context.Context) ([]string, error) {
	screen, err := r.deps.Provider.Screener(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching screener universe: %w", err)
	}
	actives, err := r.deps.Positions.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active positions: %w", err)
	}
	held := make(map[string]struct{}, len(actives))
	for _, p := range actives {
		held[p.Ticker] = struct{}{}
	}

	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var universe []string
	for _, ticker := range screen.All() {
		if _, active := held[ticker]; active {
			continue
		}
		if until, cooling := r.cooldowns[ticker]; cooling && until.After(now) {
			continue
		}
		if _, benched := r.bench[ticker]; benched {
			continue
		}
		universe = append(universe, ticker)
	}
	return universe, nil
}

// validate runs the pipeline over every fetched candidate, partitions the
// survivors by momentum sign, and accumulates rejections.
func (r *Runner) validate(data map[string]*marketdata.TickerData, inactive *[]models.InactiveTickerRecord) (up, down []mab.Candidate) {
	for ticker, d := range data {
		in := &validation.Input{
			Ticker:   ticker,
			Quote:    d.Quote,
			Bars:     d.Bars,
			Snapshot: d.Snapshot,
			Trend:    d.Trend,
		}
		out := r.chain.Evaluate(in)
		momentum := d.Trend.MomentumScore

		if !out.Valid() || (momentum > 0 && !out.ValidLong()) || (momentum < 0 && !out.ValidShort()) {
			r.addInactive(inactive, ticker, d.Snapshot, out)
			continue
		}
		if abs(momentum) < r.params.MinMomentumPct {
			reason := fmt.Sprintf("Momentum %.2f%% below %.2f%% strategy minimum",
				momentum, r.params.MinMomentumPct)
			r.addInactive(inactive, ticker, d.Snapshot, directional(momentum, reason))
			continue
		}
		c := mab.Candidate{Ticker: ticker, Momentum: momentum}
		if momentum > 0 {
			up = append(up, c)
		} else {
			down = append(down, c)
		}
	}
	return up, down
}

func (r *Runner) collectBanditRejections(sel *mab.Selection, data map[string]*marketdata.TickerData, inactive *[]models.InactiveTickerRecord) {
	for ticker, out := range sel.Rejected {
		var snap *models.Snapshot
		if d := data[ticker]; d != nil {
			snap = d.Snapshot
		}
		r.addInactive(inactive, ticker, snap, out)
	}
}

func (r *Runner) addInactive(recs *[]models.InactiveTickerRecord, ticker string, snap *models.Snapshot, out models.Outcome) {
	*recs = append(*recs, models.InactiveTickerRecord{
		ID:          uuid.NewString(),
		Ticker:      ticker,
		Indicator:   r.params.Name,
		Timestamp:   r.now(),
		ReasonLong:  out.ReasonLong,
		ReasonShort: out.ReasonShort,
		Snapshot:    snap,
	})
}

// tryOpen takes one ranked pick through the cap checks, preemption, a fresh
// quote, and the open. It reports whether a position was opened.
func (r *Runner) tryOpen(ctx context.Context, d *marketdata.TickerData, dir models.Direction, tradesToday int, inactive *[]models.InactiveTickerRecord) bool {
	if d == nil {
		return false
	}
	momentum := d.Trend.MomentumScore
	golden := r.isGolden(d)

	if tradesToday >= r.params.MaxDailyTrades && !golden {
		r.addInactive(inactive, d.Ticker, d.Snapshot, directional(momentum,
			fmt.Sprintf("Daily trade cap reached: %d/%d", tradesToday, r.params.MaxDailyTrades)))
		return false
	}

	actives, err := r.deps.Positions.ListActiveByIndicator(ctx, r.params.Name)
	if err != nil {
		r.log.WithError(err).Warn("could not list actives, skipping entry")
		return false
	}
	if len(actives) >= r.params.MaxActivePositions {
		if !r.preempt(ctx, actives, momentum) {
			r.addInactive(inactive, d.Ticker, d.Snapshot, directional(momentum,
				"No position slot available and no preemptable trade"))
			return false
		}
	}

	quote, err := r.deps.Provider.Quote(ctx, d.Ticker)
	if err != nil || quote == nil || !quote.Valid() {
		return false
	}
	if spread := quote.SpreadPct(); spread > r.params.Validation.MaxSpreadPct {
		r.addInactive(inactive, d.Ticker, d.Snapshot, directional(momentum,
			fmt.Sprintf("Spread widened before entry: %.2f%% > %.2f%% max",
				spread, r.params.Validation.MaxSpreadPct)))
		return false
	}

	reason := fmt.Sprintf("Momentum %.2f%%, continuation %.2f, ADX %.1f",
		momentum, d.Trend.ContinuationScore, d.Snapshot.ADX)
	if golden {
		reason = "Golden ticker: " + reason
	}
	_, err = r.deps.Manager.Open(ctx, position.OpenRequest{
		Ticker:     d.Ticker,
		Indicator:  r.params.Name,
		Direction:  dir,
		Quote:      quote,
		Snapshot:   d.Snapshot,
		Reason:     reason,
		ATRStopPct: r.atrStopFor(d.Snapshot),
	})
	if err != nil {
		r.log.WithError(err).WithField("ticker", d.Ticker).Warn("entry not opened")
		return false
	}
	return true
}

// preempt closes the lowest-profit active trade whose profit clears the
// threshold, freeing a slot for an exceptional signal.
func (r *Runner) preempt(ctx context.Context, actives []models.Position, momentum float64) bool {
	if abs(momentum) < r.params.ExceptionalMomentumPct {
		return false
	}

	var victim *models.Position
	var victimProfit, victimPrice float64
	for i := range actives {
		pos := &actives[i]
		quote, err := r.deps.Provider.Quote(ctx, pos.Ticker)
		if err != nil || quote == nil || !quote.Valid() {
			continue
		}
		price := exitPriceFor(pos, quote)
		profit := pos.ProfitPct(price)
		if profit < r.params.PreemptProfitThresholdPct {
			continue
		}
		if victim == nil || profit < victimProfit {
			victim, victimProfit, victimPrice = pos, profit, price
		}
	}
	if victim == nil {
		return false
	}

	reason := fmt.Sprintf("Preempted for exceptional trade: %.2f%% profit", victimProfit)
	if _, err := r.deps.Manager.Exit(ctx, victim, victimPrice, reason, "preempted", r.exitSnapshot(ctx, victim.Ticker)); err != nil {
		r.log.WithError(err).WithField("ticker", victim.Ticker).Warn("preemption close failed")
		return false
	}
	r.engine.ClearTicker(victim.Ticker)
	r.cooldown(ctx, victim.Ticker)
	return true
}

// isGolden applies the stricter checks that let a candidate bypass the daily
// trade cap (never the active-position cap).
func (r *Runner) isGolden(d *marketdata.TickerData) bool {
	if abs(d.Trend.MomentumScore) < r.params.ExceptionalMomentumPct {
		return false
	}
	snap := d.Snapshot
	if snap.ADX < r.params.GoldenMinADX {
		return false
	}
	if snap.RSI < r.params.GoldenRSIMin || snap.RSI > r.params.GoldenRSIMax {
		return false
	}
	width := snap.BollingerUpper - snap.BollingerLower
	if width > 0 {
		pos := (snap.Close - snap.BollingerLower) / width
		if pos < 0.1 || pos > 0.9 {
			return false
		}
	}
	return true
}

// atrStopFor sizes the ATR stop between the strategy's floor and ceiling.
func (r *Runner) atrStopFor(snap *models.Snapshot) float64 {
	atrPct := 1.0
	if snap.Close > 0 {
		atrPct = snap.ATR / snap.Close * 100
	}
	stop := atrPct * r.params.ATRStopMultiplier
	if stop < r.params.MinStopPct {
		stop = r.params.MinStopPct
	}
	if stop > r.params.MaxStopPct {
		stop = r.params.MaxStopPct
	}
	return -stop
}

// ExitCycle runs one pass of the exit loop: refresh quotes, update peaks,
// evaluate the exit engine, and close what it orders. Per-ticker work fans
// out bounded by the governor; each ticker is handled exactly once per tick,
// so per-position mutations stay ordered.
func (r *Runner) ExitCycle(ctx context.Context) error {
	open, err := r.deps.Provider.IsMarketOpen(ctx)
	if err != nil {
		return fmt.Errorf("checking market clock: %w", err)
	}
	if !open {
		return nil
	}

	actives, err := r.deps.Positions.ListActiveByIndicator(ctx, r.params.Name)
	if err != nil {
		return fmt.Errorf("listing active positions: %w", err)
	}
	if len(actives) == 0 {
		return nil
	}

	clock, err := r.deps.Provider.Clock(ctx)
	if err != nil {
		return fmt.Errorf("fetching market clock: %w", err)
	}
	minutesToClose := clock.MinutesToClose(r.now())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.deps.Governor.Limits().MaxConcurrentFetch)
	for i := range actives {
		pos := &actives[i]
		g.Go(func() error {
			r.manage(gctx, pos, minutesToClose)
			return nil
		})
	}
	return g.Wait()
}

// manage ticks one position. Errors are logged, never propagated, so one
// ticker cannot abort the tick for the others.
func (r *Runner) manage(ctx context.Context, pos *models.Position, minutesToClose float64) {
	quote, err := r.deps.Provider.Quote(ctx, pos.Ticker)
	if err != nil || quote == nil || !quote.Valid() {
		if err != nil {
			r.log.WithError(err).WithField("ticker", pos.Ticker).Warn("quote refresh failed")
		}
		return
	}
	price := exitPriceFor(pos, quote)

	if err := r.deps.Manager.RecordPeak(ctx, pos, price); err != nil {
		r.log.WithError(err).WithField("ticker", pos.Ticker).Warn("peak update not persisted")
	}

	decision := r.engine.Evaluate(exitengine.Input{
		Position:       pos,
		Price:          price,
		Now:            r.now(),
		MinutesToClose: minutesToClose,
	})
	if !decision.ShouldExit {
		return
	}

	trade, err := r.deps.Manager.Exit(ctx, pos, price, decision.Reason, string(decision.Type), r.exitSnapshot(ctx, pos.Ticker))
	if err != nil {
		r.log.WithError(err).WithField("ticker", pos.Ticker).Error("close not completed")
		return
	}
	r.engine.ClearTicker(pos.Ticker)
	r.cooldown(ctx, pos.Ticker)

	if r.params.BenchLosers && trade.ProfitLoss < 0 {
		r.benchLoser(ctx, pos.Ticker)
	}
}

// exitSnapshot computes close-time technicals for a position being exited.
// Only called once a close decision is made, so the extra bar fetch costs one
// call per exit, not per tick. Returns nil on fetch failure; the manager
// substitutes a price-only snapshot.
func (r *Runner) exitSnapshot(ctx context.Context, ticker string) *models.Snapshot {
	bars, err := r.deps.Provider.Bars(ctx, ticker, marketdata.DefaultBarLimit)
	if err != nil || len(bars) == 0 {
		if err != nil {
			r.log.WithError(err).WithField("ticker", ticker).Warn("exit snapshot bars unavailable")
		}
		return nil
	}
	return indicators.Compute(bars)
}

// benchLoser adds a losing ticker to the day's bench and excludes it in the
// bandit until the next daily reset.
func (r *Runner) benchLoser(ctx context.Context, ticker string) {
	r.mu.Lock()
	r.bench[ticker] = struct{}{}
	r.mu.Unlock()
	if err := r.deps.Selector.Exclude(ctx, r.params.Name, ticker, 0); err != nil {
		r.log.WithError(err).WithField("ticker", ticker).Warn("bandit exclusion failed")
	}
	r.engine.ClearTicker(ticker)
}

// Benched reports whether a ticker sits on today's bench.
func (r *Runner) Benched(ticker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bench[ticker]
	return ok
}

// cooldown stamps the re-entry block and mirrors it into the bandit's
// exclusion window so a restart does not forget it.
func (r *Runner) cooldown(ctx context.Context, ticker string) {
	r.stampCooldown(ticker)
	if err := r.deps.Selector.Exclude(ctx, r.params.Name, ticker, r.params.Cooldown); err != nil {
		r.log.WithError(err).WithField("ticker", ticker).Warn("cooldown not persisted")
	}
}

func (r *Runner) stampCooldown(ticker string) {
	r.mu.Lock()
	r.cooldowns[ticker] = r.now().Add(r.params.Cooldown)
	r.mu.Unlock()
}

// exitPriceFor values a position at the side it would actually trade out on.
func exitPriceFor(pos *models.Position, quote *models.Quote) float64 {
	if pos.Direction == models.Short {
		return quote.Ask
	}
	return quote.Bid
}

// directional wraps a reason into the outcome field matching the momentum
// sign.
func directional(momentum float64, reason string) models.Outcome {
	if momentum < 0 {
		return models.Outcome{ReasonShort: reason}
	}
	return models.Outcome{ReasonLong: reason}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
