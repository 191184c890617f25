// Package models provides the data structures shared by the trading engine:
// bars, quotes, technical snapshots, positions, completed trades, and the
// audit records persisted for every evaluated ticker.
package models

import "time"

// Bar is a single OHLCV candle. Immutable once fetched.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func (b Bar) TrueRange(prevClose float64) float64 {
	tr := b.High - b.Low
	if hc := abs(b.High - prevClose); hc > tr {
		tr = hc
	}
	if lc := abs(b.Low - prevClose); lc > tr {
		tr = lc
	}
	return tr
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
