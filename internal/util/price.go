// Package util provides small price-math helpers shared by the trading
// packages.
package util

import "math"

// Equity quoting increments: stocks at or above $1 quote in pennies,
// sub-dollar stocks in hundredths of a cent.
const (
	PennyTick     = 0.01
	SubDollarTick = 0.0001
)

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// TickFor returns the quoting increment for a price level.
func TickFor(price float64) float64 {
	if price < 1 {
		return SubDollarTick
	}
	return PennyTick
}

// RoundPrice rounds a price to its natural quoting increment.
func RoundPrice(price float64) float64 {
	return RoundToTick(price, TickFor(price))
}
