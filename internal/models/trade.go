package models

import "time"

// CompletedTrade is the append-only record persisted when a position closes.
// Timestamps are market-local (America/New_York), DST-aware; ExitTime is
// always >= EnterTime.
type CompletedTrade struct {
	Ticker        string    `json:"ticker"`
	Indicator     string    `json:"indicator"`
	Direction     Direction `json:"direction"`
	TradeDate     string    `json:"trade_date"` // yyyy-mm-dd, market-local
	EnterPrice    float64   `json:"enter_price"`
	ExitPrice     float64   `json:"exit_price"`
	EnterTime     time.Time `json:"enter_time"`
	ExitTime      time.Time `json:"exit_time"`
	Shares        float64   `json:"shares"`
	ProfitLoss    float64   `json:"profit_loss"`     // dollars
	ProfitLossPct float64   `json:"profit_loss_pct"` // percent vs entry
	EnterReason   string    `json:"enter_reason"`
	ExitReason    string    `json:"exit_reason"`
	ExitType      string    `json:"exit_type"`
	EnterSnapshot *Snapshot `json:"enter_snapshot"`
	ExitSnapshot  *Snapshot `json:"exit_snapshot"`
}

// SortKey returns the store sort key "<ticker>#<indicator>".
func (t *CompletedTrade) SortKey() string {
	return t.Ticker + "#" + t.Indicator
}

// InactiveTickerRecord is the per-evaluation audit entry written for every
// candidate a cycle looked at but did not enter, whether the validation
// pipeline or the MAB selector rejected it.
type InactiveTickerRecord struct {
	ID          string    `json:"id"`
	Ticker      string    `json:"ticker"`
	Indicator   string    `json:"indicator"`
	Timestamp   time.Time `json:"evaluated_at"`
	ReasonLong  string    `json:"reason_not_to_enter_long"`
	ReasonShort string    `json:"reason_not_to_enter_short"`
	Snapshot    *Snapshot `json:"technical_snapshot"`
}

// Outcome is the result of running the validation pipeline over a candidate.
// An empty reason string means the candidate is valid in that direction.
type Outcome struct {
	ReasonLong  string `json:"reason_not_to_enter_long"`
	ReasonShort string `json:"reason_not_to_enter_short"`
}

// ValidLong reports whether long entry is allowed.
func (o Outcome) ValidLong() bool { return o.ReasonLong == "" }

// ValidShort reports whether short entry is allowed.
func (o Outcome) ValidShort() bool { return o.ReasonShort == "" }

// Valid reports whether at least one direction is allowed.
func (o Outcome) Valid() bool { return o.ValidLong() || o.ValidShort() }

// Symmetric reports whether both rejection reasons are identical and set.
func (o Outcome) Symmetric() bool {
	return o.ReasonLong != "" && o.ReasonLong == o.ReasonShort
}
