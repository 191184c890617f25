package models

import (
	"fmt"
	"time"
)

// Direction is the side of a trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Position is an open trade being managed by a strategy. At most one position
// exists per (indicator, ticker). After open, only PeakPrice, PeakProfitPct
// and TrailingStopPct mutate, and each only improves in the direction of the
// trade.
type Position struct {
	Ticker           string    `json:"ticker"`
	Indicator        string    `json:"indicator"`
	Direction        Direction `json:"direction"`
	EntryPrice       float64   `json:"entry_price"`
	BreakevenPrice   float64   `json:"breakeven_price"`
	EntryTime        time.Time `json:"entry_time"`
	PeakPrice        float64   `json:"peak_price"`
	ATRStopPct       float64   `json:"atr_stop_pct"`     // negative
	SpreadPctAtEntry float64   `json:"spread_pct_at_entry"`
	DynamicStopPct   float64   `json:"dynamic_stop_pct"` // negative
	TrailingStopPct  float64   `json:"trailing_stop_pct"`
	PeakProfitPct    float64   `json:"peak_profit_pct"`
	EntryReason      string    `json:"entry_reason"`
	EntrySnapshot    *Snapshot `json:"entry_snapshot"`
	CreatedAt        time.Time `json:"created_at"`
}

// BreakevenFor returns the entry price adjusted outward by the entry spread
// so a trade is flat after paying the spread.
func BreakevenFor(entry, spreadPct float64, dir Direction) float64 {
	if dir == Long {
		return entry * (1 + spreadPct/100)
	}
	return entry * (1 - spreadPct/100)
}

// Validate reports invariant violations on a position.
func (p *Position) Validate() error {
	if p.Ticker == "" || p.Indicator == "" {
		return fmt.Errorf("position missing ticker/indicator: %q/%q", p.Ticker, p.Indicator)
	}
	if p.EntryPrice <= 0 {
		return fmt.Errorf("position %s: entry price must be positive, got %.4f", p.Ticker, p.EntryPrice)
	}
	if p.Direction != Long && p.Direction != Short {
		return fmt.Errorf("position %s: unknown direction %q", p.Ticker, p.Direction)
	}
	return nil
}

// ProfitPct returns the percent move from entry in the direction of the trade.
func (p *Position) ProfitPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice * 100
	if p.Direction == Short {
		pct = -pct
	}
	return pct
}

// ProfitVsBreakeven returns the percent move from the breakeven price in the
// direction of the trade. Trailing stops and the ATR stop measure against
// this so they never fire while the entry spread is still unearned.
func (p *Position) ProfitVsBreakeven(price float64) float64 {
	if p.BreakevenPrice <= 0 {
		return 0
	}
	pct := (price - p.BreakevenPrice) / p.BreakevenPrice * 100
	if p.Direction == Short {
		pct = -pct
	}
	return pct
}

// UpdatePeak folds the current price into PeakPrice and PeakProfitPct.
// Both only ever improve in the direction of the trade; it returns true
// when either moved.
func (p *Position) UpdatePeak(price float64) bool {
	improved := false
	if p.PeakPrice == 0 {
		p.PeakPrice = p.EntryPrice
	}
	switch p.Direction {
	case Long:
		if price > p.PeakPrice {
			p.PeakPrice = price
			improved = true
		}
	case Short:
		if price < p.PeakPrice {
			p.PeakPrice = price
			improved = true
		}
	}
	if pct := p.ProfitVsBreakeven(price); pct > p.PeakProfitPct {
		p.PeakProfitPct = pct
		improved = true
	}
	return improved
}

// HoldingSeconds returns how long the position has been open.
func (p *Position) HoldingSeconds(now time.Time) float64 {
	return now.Sub(p.EntryTime).Seconds()
}
