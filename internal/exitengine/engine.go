// Package exitengine decides when an open position must close. Evaluation is
// pure and priority-ordered: emergency stop, holding-period gate, end-of-day
// closure, tiered trailing stop, ATR stop with a consecutive-check latch,
// and the max-holding cap. The only state is the per-ticker latch counter.
package exitengine

import (
	"fmt"
	"sync"
	"time"

	"daytrader/internal/models"
)

// ExitType classifies an exit decision.
type ExitType string

const (
	ExitNone      ExitType = "none"
	ExitEmergency ExitType = "emergency"
	ExitStopLoss  ExitType = "stop_loss"
	ExitTrailing  ExitType = "trailing_stop"
	ExitEOD       ExitType = "eod"
	ExitMaxHold   ExitType = "max_hold"
)

// Decision is the engine's verdict for one tick.
type Decision struct {
	ShouldExit    bool
	Reason        string
	Type          ExitType
	SpreadInduced bool
}

func hold() Decision { return Decision{Type: ExitNone} }

// Tier is one trailing-stop bracket. Brackets are keyed by the peak profit
// reached versus breakeven; the trail distance is measured from the peak
// price and the locked floor from the breakeven price.
type Tier struct {
	PeakThresholdPct float64
	TrailPct         float64
	MinLockedPct     float64
}

// DefaultTiers, highest threshold first.
var DefaultTiers = []Tier{
	{PeakThresholdPct: 3.0, TrailPct: 1.5, MinLockedPct: 1.5},
	{PeakThresholdPct: 2.0, TrailPct: 0.3, MinLockedPct: 0},
	{PeakThresholdPct: 1.0, TrailPct: 0.5, MinLockedPct: 0},
}

// Config carries the per-strategy exit thresholds.
type Config struct {
	EmergencyStopPct          float64 // negative
	MinHoldingSeconds         float64
	EODMinutes                float64
	HoldLosersOverClose       bool
	TrailingCooldownSeconds   float64
	ConsecutiveChecksRequired int
	MaxHoldingSeconds         float64
	Tiers                     []Tier
}

// DefaultConfig returns the thresholds shared by the momentum strategies.
func DefaultConfig() Config {
	return Config{
		EmergencyStopPct:          -3.0,
		MinHoldingSeconds:         60,
		EODMinutes:                15,
		TrailingCooldownSeconds:   150,
		ConsecutiveChecksRequired: 2,
		MaxHoldingSeconds:         3600,
		Tiers:                     DefaultTiers,
	}
}

// Input is one evaluation tick.
type Input struct {
	Position       *models.Position
	Price          float64
	Bars           []models.Bar
	Now            time.Time
	MinutesToClose float64
}

// Engine evaluates exit decisions for one strategy's positions. Safe for
// concurrent use across tickers; per-ticker evaluation must be serialized by
// the caller, which the exit loop already guarantees.
type Engine struct {
	cfg Config

	mu     sync.Mutex
	checks map[string]int
}

// New builds an engine; an empty tier list falls back to DefaultTiers.
func New(cfg Config) *Engine {
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = DefaultTiers
	}
	if cfg.ConsecutiveChecksRequired <= 0 {
		cfg.ConsecutiveChecksRequired = 2
	}
	return &Engine{cfg: cfg, checks: make(map[string]int)}
}

// Evaluate runs the priority-ordered rules. First match wins.
func (e *Engine) Evaluate(in Input) Decision {
	pos := in.Position
	profitPct := pos.ProfitPct(in.Price)

	// Emergency bypasses the holding gate.
	if profitPct <= e.cfg.EmergencyStopPct {
		induced := abs(profitPct) <= 1.5*pos.SpreadPctAtEntry
		return Decision{
			ShouldExit: true,
			Type:       ExitEmergency,
			Reason: fmt.Sprintf("Emergency stop: %.2f%% <= %.2f%% limit",
				profitPct, e.cfg.EmergencyStopPct),
			SpreadInduced: induced,
		}
	}

	holding := pos.HoldingSeconds(in.Now)
	if holding < e.cfg.MinHoldingSeconds {
		return hold()
	}

	if in.MinutesToClose > 0 && in.MinutesToClose <= e.cfg.EODMinutes {
		if profitPct > 0 {
			return Decision{
				ShouldExit: true,
				Type:       ExitEOD,
				Reason:     fmt.Sprintf("End of day: locking in %.2f%% profit", profitPct),
			}
		}
		if !e.cfg.HoldLosersOverClose {
			return Decision{
				ShouldExit: true,
				Type:       ExitEOD,
				Reason:     fmt.Sprintf("End of day: closing position at %.2f%%", profitPct),
			}
		}
	}

	if d, fired := e.trailingStop(pos, in.Price, holding); fired {
		return d
	}

	if d, fired := e.atrStop(pos, in.Price); fired {
		return d
	}

	if e.cfg.MaxHoldingSeconds > 0 && holding >= e.cfg.MaxHoldingSeconds {
		return Decision{
			ShouldExit: true,
			Type:       ExitMaxHold,
			Reason: fmt.Sprintf("Max holding time: %.0fs >= %.0fs cap at %.2f%%",
				holding, e.cfg.MaxHoldingSeconds, profitPct),
		}
	}

	return hold()
}

// trailingStop applies the tier table. The tier is the highest bracket whose
// threshold the peak profit (versus breakeven) has reached; the stop fires
// when price retraces the tier's trail distance from the peak price, floored
// by the tier's min-locked-profit line.
func (e *Engine) trailingStop(pos *models.Position, price, holding float64) (Decision, bool) {
	if holding < e.cfg.TrailingCooldownSeconds {
		return hold(), false
	}
	tier, ok := e.tierFor(pos.PeakProfitPct)
	if !ok || pos.PeakPrice <= 0 {
		return hold(), false
	}

	var trigger float64
	if pos.Direction == models.Long {
		trigger = pos.PeakPrice * (1 - tier.TrailPct/100)
		if floor := pos.BreakevenPrice * (1 + tier.MinLockedPct/100); floor > trigger {
			trigger = floor
		}
		if price > trigger {
			return hold(), false
		}
	} else {
		trigger = pos.PeakPrice * (1 + tier.TrailPct/100)
		if floor := pos.BreakevenPrice * (1 - tier.MinLockedPct/100); floor < trigger {
			trigger = floor
		}
		if price < trigger {
			return hold(), false
		}
	}
	return Decision{
		ShouldExit: true,
		Type:       ExitTrailing,
		Reason: fmt.Sprintf(
			"Trailing stop: %.2f%% vs breakeven after %.2f%% peak (tier %.1f%%, trail %.1f%%, locked %.1f%%)",
			pos.ProfitVsBreakeven(price), pos.PeakProfitPct,
			tier.PeakThresholdPct, tier.TrailPct, tier.MinLockedPct),
	}, true
}

func (e *Engine) tierFor(peakProfitPct float64) (Tier, bool) {
	for _, tier := range e.cfg.Tiers {
		if peakProfitPct >= tier.PeakThresholdPct {
			return tier, true
		}
	}
	return Tier{}, false
}

// atrStop applies the ATR-based stop with the consecutive-check latch. The
// counter increments on each satisfying tick and resets on any tick that
// does not satisfy; it fires only once the count exceeds the configured
// consecutive checks, so a single-tick wick never closes a position.
func (e *Engine) atrStop(pos *models.Position, price float64) (Decision, bool) {
	stopPct := pos.ATRStopPct
	if stopPct == 0 {
		stopPct = pos.DynamicStopPct
	}
	if stopPct >= 0 {
		return hold(), false
	}

	pvb := pos.ProfitVsBreakeven(price)
	e.mu.Lock()
	defer e.mu.Unlock()
	if pvb > stopPct {
		delete(e.checks, pos.Ticker)
		return hold(), false
	}
	e.checks[pos.Ticker]++
	if e.checks[pos.Ticker] <= e.cfg.ConsecutiveChecksRequired {
		return hold(), false
	}
	count := e.checks[pos.Ticker]
	return Decision{
		ShouldExit: true,
		Type:       ExitStopLoss,
		Reason: fmt.Sprintf("ATR stop: %.2f%% vs breakeven <= %.2f%% on %d consecutive checks",
			pvb, stopPct, count),
	}, true
}

// ClearTicker drops the latch counter for a ticker. Called on position close
// and on exclusion.
func (e *Engine) ClearTicker(ticker string) {
	e.mu.Lock()
	delete(e.checks, ticker)
	e.mu.Unlock()
}

// Reset drops all latch state. Called at strategy shutdown.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.checks = make(map[string]int)
	e.mu.Unlock()
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
