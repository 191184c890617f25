// Package strategy runs the per-indicator trading loops: the entry loop that
// screens, validates, and selects candidates, and the exit loop that manages
// open positions against the exit engine.
package strategy

import (
	"fmt"
	"strings"
	"time"

	"daytrader/internal/exitengine"
	"daytrader/internal/validation"
)

// Params is one strategy's full threshold set. Every strategy shares the
// runner skeleton; only the numbers differ.
type Params struct {
	Name             string
	EnabledByDefault bool

	// Simplified switches the penny-style validation chain in.
	Simplified bool

	Validation validation.Config
	Exit       exitengine.Config

	// Entry thresholds.
	MinMomentumPct            float64
	ExceptionalMomentumPct    float64
	PreemptProfitThresholdPct float64

	// Golden-ticker checks, stricter than the entry chain.
	GoldenMinADX float64
	GoldenRSIMin float64
	GoldenRSIMax float64

	// ATR-derived stop sizing.
	ATRStopMultiplier float64
	MinStopPct        float64
	MaxStopPct        float64

	MaxActivePositions int
	MaxDailyTrades     int
	TopK               int

	EntryTick time.Duration
	ExitTick  time.Duration
	Cooldown  time.Duration

	PositionDollars float64

	// BenchLosers adds losing tickers to the in-memory bench and excludes
	// them in the bandit for the rest of the day.
	BenchLosers bool
}

// Momentum is the rich-indicator intraday strategy.
func Momentum() Params {
	return Params{
		Name:                      "momentum",
		EnabledByDefault:          true,
		Validation:                validation.DefaultConfig(),
		Exit:                      exitengine.DefaultConfig(),
		MinMomentumPct:            1.5,
		ExceptionalMomentumPct:    8.0,
		PreemptProfitThresholdPct: 0.5,
		GoldenMinADX:              25,
		GoldenRSIMin:              40,
		GoldenRSIMax:              70,
		ATRStopMultiplier:         1.5,
		MinStopPct:                1.0,
		MaxStopPct:                3.0,
		MaxActivePositions:        3,
		MaxDailyTrades:            10,
		TopK:                      2,
		EntryTick:                 60 * time.Second,
		ExitTick:                  15 * time.Second,
		Cooldown:                  30 * time.Minute,
		PositionDollars:           1000,
	}
}

// Penny is the simplified low-price pipeline: tighter floors, shorter holds,
// and loser benching.
func Penny() Params {
	p := Momentum()
	p.Name = "penny"
	p.Simplified = true
	p.BenchLosers = true
	p.Validation.MinPrice = 0.10
	p.Validation.MaxSpreadPct = 2.0
	p.Validation.MinVolume = 250_000
	p.Exit.EmergencyStopPct = -5.0
	p.Exit.MaxHoldingSeconds = 1800
	p.MinMomentumPct = 3.0
	p.MaxActivePositions = 2
	p.MaxDailyTrades = 15
	p.EntryTick = 45 * time.Second
	p.ExitTick = 10 * time.Second
	p.Cooldown = 60 * time.Minute
	p.PositionDollars = 500
	return p
}

// Volatile trades high-beta names with wider stops and a shorter cap.
func Volatile() Params {
	p := Momentum()
	p.Name = "volatile"
	p.Validation.MaxATRPct = 15.0
	p.Exit.EmergencyStopPct = -5.0
	p.Exit.MaxHoldingSeconds = 3600
	p.MinMomentumPct = 2.5
	p.MaxStopPct = 4.0
	p.MaxActivePositions = 2
	return p
}

// DeepAnalyzer and UWEnhanced ship disabled; they only run when their env
// flag is explicitly "true".
func DeepAnalyzer() Params {
	p := Momentum()
	p.Name = "deep_analyzer"
	p.EnabledByDefault = false
	p.MaxDailyTrades = 5
	return p
}

func UWEnhanced() Params {
	p := Momentum()
	p.Name = "uw_enhanced"
	p.EnabledByDefault = false
	p.MaxDailyTrades = 5
	return p
}

// All returns every known strategy definition.
func All() []Params {
	return []Params{Momentum(), Penny(), Volatile(), DeepAnalyzer(), UWEnhanced()}
}

// EnvFlag returns the enable-flag name for a strategy.
func EnvFlag(name string) string {
	return fmt.Sprintf("ENABLE_%s_INDICATOR", strings.ToUpper(name))
}

// Enabled filters All by the ENABLE_<STRATEGY>_INDICATOR flags. An explicit
// "true"/"false" wins; anything else falls back to the strategy default.
func Enabled(getenv func(string) string) []Params {
	var out []Params
	for _, p := range All() {
		switch strings.ToLower(strings.TrimSpace(getenv(EnvFlag(p.Name)))) {
		case "true":
			out = append(out, p)
		case "false":
		default:
			if p.EnabledByDefault {
				out = append(out, p)
			}
		}
	}
	return out
}
