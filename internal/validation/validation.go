// Package validation implements the ordered entry-validation pipeline. Rules
// run in a fixed order and the chain stops at the first rule that rejects the
// candidate; every rejection carries a human-readable reason that is persisted
// to the inactive-ticker audit table.
package validation

import (
	"daytrader/internal/models"
)

// Input is everything a rule may inspect for one candidate.
type Input struct {
	Ticker   string
	Quote    *models.Quote
	Bars     []models.Bar
	Snapshot *models.Snapshot
	Trend    *models.TrendMetrics
}

// Result is a single rule's verdict. Symmetric rejections populate both
// reasons with the same string; asymmetric rules populate only the direction
// they evaluated. A result with any reason set fails the chain.
type Result struct {
	Passed      bool
	ReasonLong  string
	ReasonShort string
	Symmetric   bool
}

func pass() Result { return Result{Passed: true} }

func rejectBoth(reason string) Result {
	return Result{ReasonLong: reason, ReasonShort: reason, Symmetric: true}
}

func rejectLong(reason string) Result { return Result{ReasonLong: reason} }

func rejectShort(reason string) Result { return Result{ReasonShort: reason} }

// Rule is one stage of the pipeline.
type Rule interface {
	Name() string
	Evaluate(in *Input) Result
}

// Config carries the thresholds shared by the rule implementations.
// Strategies tune these per indicator.
type Config struct {
	MinBars           int
	MinPrice          float64
	MaxSpreadPct      float64
	MinVolume         float64
	MinRelativeVolume float64

	MaxATRPct         float64
	LowPriceCutoff    float64
	LowPriceMaxATRPct float64

	MinADX         float64
	MaxMomentumPct float64 // overbought bound for shorts

	BandEdgeFraction float64 // mean-reversion guard, fraction of band width

	MinContinuation float64
	PeakProximity   float64 // reject when close/peak exceeds this
}

// DefaultConfig returns the thresholds used by the momentum pipeline.
func DefaultConfig() Config {
	return Config{
		MinBars:           20,
		MinPrice:          0.10,
		MaxSpreadPct:      1.0,
		MinVolume:         100_000,
		MinRelativeVolume: 1.2,
		MaxATRPct:         10.0,
		LowPriceCutoff:    1.0,
		LowPriceMaxATRPct: 5.0,
		MinADX:            20.0,
		MaxMomentumPct:    15.0,
		BandEdgeFraction:  0.10,
		MinContinuation:   0.6,
		PeakProximity:     0.98,
	}
}

// Chain applies rules in order and short-circuits on the first rejection.
type Chain struct {
	rules []Rule
}

// NewChain builds a chain from an explicit rule list.
func NewChain(rules ...Rule) *Chain { return &Chain{rules: rules} }

// NewMomentumChain is the full pipeline used by the rich-indicator
// strategies.
func NewMomentumChain(cfg Config) *Chain {
	return NewChain(
		&DataQualityRule{MinBars: cfg.MinBars},
		&SecurityTypeRule{},
		&PriceFloorRule{MinPrice: cfg.MinPrice},
		&SpreadRule{MaxSpreadPct: cfg.MaxSpreadPct},
		&VolumeRule{MinVolume: cfg.MinVolume, MinRelative: cfg.MinRelativeVolume},
		&VolatilityRule{
			MaxATRPct:         cfg.MaxATRPct,
			LowPriceCutoff:    cfg.LowPriceCutoff,
			LowPriceMaxATRPct: cfg.LowPriceMaxATRPct,
		},
		&MomentumBandRule{MinADX: cfg.MinADX, MaxMomentumPct: cfg.MaxMomentumPct},
		&MeanReversionRule{EdgeFraction: cfg.BandEdgeFraction},
	)
}

// NewPennyChain is the simplified pipeline: the shared structural rules plus
// the continuation/peak-proximity check instead of the indicator-band rules.
func NewPennyChain(cfg Config) *Chain {
	return NewChain(
		&DataQualityRule{MinBars: cfg.MinBars},
		&SecurityTypeRule{},
		&PriceFloorRule{MinPrice: cfg.MinPrice},
		&SpreadRule{MaxSpreadPct: cfg.MaxSpreadPct},
		&VolumeRule{MinVolume: cfg.MinVolume, MinRelative: cfg.MinRelativeVolume},
		&VolatilityRule{
			MaxATRPct:         cfg.MaxATRPct,
			LowPriceCutoff:    cfg.LowPriceCutoff,
			LowPriceMaxATRPct: cfg.LowPriceMaxATRPct,
		},
		&ContinuationRule{MinContinuation: cfg.MinContinuation, PeakProximity: cfg.PeakProximity},
	)
}

// Evaluate runs the chain and returns the outcome of the first failing rule,
// or an all-clear outcome when every rule passes.
func (c *Chain) Evaluate(in *Input) models.Outcome {
	for _, rule := range c.rules {
		res := rule.Evaluate(in)
		if !res.Passed && (res.ReasonLong != "" || res.ReasonShort != "") {
			return models.Outcome{ReasonLong: res.ReasonLong, ReasonShort: res.ReasonShort}
		}
	}
	return models.Outcome{}
}
