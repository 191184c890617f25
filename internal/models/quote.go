package models

import "time"

// Quote is the latest bid/ask for a ticker.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether both sides of the quote are positive.
func (q *Quote) Valid() bool {
	return q != nil && q.Bid > 0 && q.Ask > 0
}

// Mid returns the bid/ask midpoint. Zero for invalid quotes.
func (q *Quote) Mid() float64 {
	if !q.Valid() {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// SpreadPct returns the bid/ask spread as a percentage of the midpoint.
// Zero for invalid quotes.
func (q *Quote) SpreadPct() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid * 100
}

// Clock describes the market session state.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// MinutesToClose returns how many minutes remain in the current session.
// Negative when the session is already over.
func (c *Clock) MinutesToClose(now time.Time) float64 {
	return c.NextClose.Sub(now).Minutes()
}
