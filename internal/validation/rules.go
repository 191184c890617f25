package validation

import (
	"fmt"
	"strings"
)

// DataQualityRule rejects candidates whose bar history or quote is unusable.
type DataQualityRule struct {
	MinBars int
}

var _ Rule = (*DataQualityRule)(nil)

func (r *DataQualityRule) Name() string { return "data_quality" }

func (r *DataQualityRule) Evaluate(in *Input) Result {
	if in.Quote == nil || !in.Quote.Valid() {
		return rejectBoth("No usable quote (missing or crossed bid/ask)")
	}
	if len(in.Bars) < r.MinBars {
		return rejectBoth(fmt.Sprintf(
			"Insufficient bar history: %d bars < %d required", len(in.Bars), r.MinBars))
	}
	for _, bar := range in.Bars {
		if bar.Close <= 0 || bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 {
			return rejectBoth("Bar history contains non-positive prices")
		}
	}
	if in.Snapshot == nil {
		return rejectBoth("No technical snapshot computed")
	}
	return pass()
}

// warrantSuffixes are the class suffixes rejected after a "." or "-"
// separator.
var warrantSuffixes = map[string]struct{}{
	"W": {}, "WS": {}, "WT": {}, "R": {}, "RT": {}, "U": {}, "UN": {},
}

// SecurityTypeRule rejects warrants, rights, and units by ticker suffix.
// Five-letter symbols use the exchange fifth-letter convention.
type SecurityTypeRule struct{}

var _ Rule = (*SecurityTypeRule)(nil)

func (r *SecurityTypeRule) Name() string { return "security_type" }

func (r *SecurityTypeRule) Evaluate(in *Input) Result {
	ticker := strings.ToUpper(in.Ticker)
	if idx := strings.IndexAny(ticker, ".-"); idx >= 0 {
		if _, bad := warrantSuffixes[ticker[idx+1:]]; bad {
			return rejectBoth(fmt.Sprintf(
				"Not a common stock: %s is a warrant/right/unit class", in.Ticker))
		}
		return pass()
	}
	if len(ticker) == 5 {
		switch ticker[4] {
		case 'W', 'R', 'U':
			return rejectBoth(fmt.Sprintf(
				"Not a common stock: %s is a warrant/right/unit class", in.Ticker))
		}
	}
	return pass()
}

// PriceFloorRule rejects tickers whose mid-price is below the tradable
// minimum.
type PriceFloorRule struct {
	MinPrice float64
}

var _ Rule = (*PriceFloorRule)(nil)

func (r *PriceFloorRule) Name() string { return "price_floor" }

func (r *PriceFloorRule) Evaluate(in *Input) Result {
	mid := in.Quote.Mid()
	if mid < r.MinPrice {
		return rejectBoth(fmt.Sprintf(
			"Price too low: $%.2f < $%.2f minimum (too risky)", mid, r.MinPrice))
	}
	return pass()
}

// SpreadRule rejects tickers whose bid-ask spread is too wide to earn back.
type SpreadRule struct {
	MaxSpreadPct float64
}

var _ Rule = (*SpreadRule)(nil)

func (r *SpreadRule) Name() string { return "spread" }

func (r *SpreadRule) Evaluate(in *Input) Result {
	spread := in.Quote.SpreadPct()
	if spread > r.MaxSpreadPct {
		return rejectBoth(fmt.Sprintf(
			"Spread too wide: %.2f%% > %.2f%% max", spread, r.MaxSpreadPct))
	}
	return pass()
}

// VolumeRule applies the absolute and relative (volume vs SMA) liquidity
// thresholds.
type VolumeRule struct {
	MinVolume   float64
	MinRelative float64
}

var _ Rule = (*VolumeRule)(nil)

func (r *VolumeRule) Name() string { return "volume" }

func (r *VolumeRule) Evaluate(in *Input) Result {
	snap := in.Snapshot
	if snap.Volume < r.MinVolume {
		return rejectBoth(fmt.Sprintf(
			"Volume too low: %.0f < %.0f minimum", snap.Volume, r.MinVolume))
	}
	if snap.VolumeSMA > 0 {
		ratio := snap.Volume / snap.VolumeSMA
		if ratio < r.MinRelative {
			return rejectBoth(fmt.Sprintf(
				"Relative volume too low: %.2fx < %.2fx of average", ratio, r.MinRelative))
		}
	}
	return pass()
}

// VolatilityRule rejects tickers whose ATR as a percent of price exceeds the
// ceiling. Low-priced stocks use a tighter ceiling.
type VolatilityRule struct {
	MaxATRPct         float64
	LowPriceCutoff    float64
	LowPriceMaxATRPct float64
}

var _ Rule = (*VolatilityRule)(nil)

func (r *VolatilityRule) Name() string { return "volatility" }

func (r *VolatilityRule) Evaluate(in *Input) Result {
	snap := in.Snapshot
	if snap.Close <= 0 {
		return rejectBoth("Cannot assess volatility: non-positive close")
	}
	atrPct := snap.ATR / snap.Close * 100
	ceiling := r.MaxATRPct
	if snap.Close < r.LowPriceCutoff {
		ceiling = r.LowPriceMaxATRPct
	}
	if atrPct > ceiling {
		return rejectBoth(fmt.Sprintf(
			"Too volatile: ATR %.2f%% of price > %.2f%% max", atrPct, ceiling))
	}
	return pass()
}

// MomentumBandRule is asymmetric: it evaluates only the direction implied by
// the momentum sign. Long candidates need trend strength (ADX); short
// candidates must not be overextended past the overbought bound. Zero
// momentum rejects both directions.
type MomentumBandRule struct {
	MinADX         float64
	MaxMomentumPct float64
}

var _ Rule = (*MomentumBandRule)(nil)

func (r *MomentumBandRule) Name() string { return "momentum_band" }

func (r *MomentumBandRule) Evaluate(in *Input) Result {
	if in.Trend == nil {
		return rejectBoth("No trend metrics computed")
	}
	momentum := in.Trend.MomentumScore
	switch {
	case momentum == 0:
		return Result{
			ReasonLong:  "No directional momentum",
			ReasonShort: "No directional momentum",
		}
	case momentum > 0:
		if in.Snapshot.ADX < r.MinADX {
			return rejectLong(fmt.Sprintf(
				"Trend too weak for long: ADX %.1f < %.1f minimum", in.Snapshot.ADX, r.MinADX))
		}
	default:
		if -momentum > r.MaxMomentumPct {
			return rejectShort(fmt.Sprintf(
				"Overextended for short: momentum %.2f%% beyond %.2f%% bound",
				momentum, r.MaxMomentumPct))
		}
	}
	return pass()
}

// MeanReversionRule is asymmetric: it rejects longs pressed against the top
// edge of the Bollinger band and shorts pressed against the bottom edge.
type MeanReversionRule struct {
	EdgeFraction float64
}

var _ Rule = (*MeanReversionRule)(nil)

func (r *MeanReversionRule) Name() string { return "mean_reversion" }

func (r *MeanReversionRule) Evaluate(in *Input) Result {
	snap := in.Snapshot
	width := snap.BollingerUpper - snap.BollingerLower
	if width <= 0 {
		return pass()
	}
	position := (snap.Close - snap.BollingerLower) / width
	direction := directionOf(in)
	if direction > 0 && position >= 1-r.EdgeFraction {
		return rejectLong(fmt.Sprintf(
			"Mean-reversion risk for long: price at top %.0f%% of Bollinger band",
			r.EdgeFraction*100))
	}
	if direction < 0 && position <= r.EdgeFraction {
		return rejectShort(fmt.Sprintf(
			"Mean-reversion risk for short: price at bottom %.0f%% of Bollinger band",
			r.EdgeFraction*100))
	}
	return pass()
}

// ContinuationRule is the simplified pipeline's asymmetric check: the trend
// must be persistent and the price must not already sit against its recent
// extreme.
type ContinuationRule struct {
	MinContinuation float64
	PeakProximity   float64
}

var _ Rule = (*ContinuationRule)(nil)

func (r *ContinuationRule) Name() string { return "continuation_peak" }

func (r *ContinuationRule) Evaluate(in *Input) Result {
	if in.Trend == nil {
		return rejectBoth("No trend metrics computed")
	}
	trend := in.Trend
	direction := directionOf(in)
	if direction > 0 {
		if trend.ContinuationScore < r.MinContinuation {
			return rejectLong(fmt.Sprintf(
				"Trend not persistent enough for long: continuation %.2f < %.2f",
				trend.ContinuationScore, r.MinContinuation))
		}
		if trend.PeakPrice > 0 && in.Snapshot.Close/trend.PeakPrice > r.PeakProximity {
			return rejectLong(fmt.Sprintf(
				"Too close to recent peak: %.2f%% of $%.2f high",
				in.Snapshot.Close/trend.PeakPrice*100, trend.PeakPrice))
		}
	}
	if direction < 0 {
		if trend.ContinuationScore < r.MinContinuation {
			return rejectShort(fmt.Sprintf(
				"Trend not persistent enough for short: continuation %.2f < %.2f",
				trend.ContinuationScore, r.MinContinuation))
		}
		if in.Snapshot.Close > 0 && trend.BottomPrice/in.Snapshot.Close > r.PeakProximity {
			return rejectShort(fmt.Sprintf(
				"Too close to recent bottom: $%.2f low is %.2f%% of price",
				trend.BottomPrice, trend.BottomPrice/in.Snapshot.Close*100))
		}
	}
	return pass()
}

// directionOf maps the candidate's momentum sign to +1 (long), -1 (short),
// or 0 (no direction).
func directionOf(in *Input) int {
	if in.Trend == nil {
		return 0
	}
	switch {
	case in.Trend.MomentumScore > 0:
		return 1
	case in.Trend.MomentumScore < 0:
		return -1
	}
	return 0
}
