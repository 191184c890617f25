package models

import "time"

// MABStats are the success statistics kept per (indicator, ticker) arm.
// Invariant: Total == Successes + Failures.
type MABStats struct {
	Ticker        string     `json:"ticker"`
	Indicator     string     `json:"indicator"`
	Successes     int        `json:"successes"`
	Failures      int        `json:"failures"`
	Total         int        `json:"total"`
	LastUpdated   time.Time  `json:"last_updated"`
	ExcludedUntil *time.Time `json:"excluded_until,omitempty"`
}

// Excluded reports whether the arm is benched at the given instant.
func (s *MABStats) Excluded(now time.Time) bool {
	return s.ExcludedUntil != nil && s.ExcludedUntil.After(now)
}

// Alpha returns the Beta-posterior alpha parameter (1 + successes).
func (s *MABStats) Alpha() float64 { return 1 + float64(s.Successes) }

// Beta returns the Beta-posterior beta parameter (1 + failures).
func (s *MABStats) Beta() float64 { return 1 + float64(s.Failures) }
