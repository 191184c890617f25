package models

import "time"

// MaxRecentCloses caps the (timestamp, close) series carried on a snapshot.
const MaxRecentCloses = 20

// ClosePoint is one element of a snapshot's recent-close series.
type ClosePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
}

// Snapshot is the dense technical-indicator record computed per ticker per
// cycle. Every field always holds a defined value: when bar history is too
// short for an indicator, the documented default is used instead. No field
// is ever conditionally absent at a component boundary.
type Snapshot struct {
	RSI             float64      `json:"rsi"`
	MACD            float64      `json:"macd"`
	MACDSignal      float64      `json:"macd_signal"`
	MACDHistogram   float64      `json:"macd_histogram"`
	BollingerUpper  float64      `json:"bollinger_upper"`
	BollingerMiddle float64      `json:"bollinger_middle"`
	BollingerLower  float64      `json:"bollinger_lower"`
	ADX             float64      `json:"adx"`
	EMAFast         float64      `json:"ema_fast"`
	EMASlow         float64      `json:"ema_slow"`
	VolumeSMA       float64      `json:"volume_sma"`
	OBV             float64      `json:"obv"`
	MFI             float64      `json:"mfi"`
	AD              float64      `json:"ad"`
	StochasticK     float64      `json:"stochastic_k"`
	StochasticD     float64      `json:"stochastic_d"`
	CCI             float64      `json:"cci"`
	ATR             float64      `json:"atr"`
	WilliamsR       float64      `json:"williams_r"`
	ROC             float64      `json:"roc"`
	VWAP            float64      `json:"vwap"`
	VWMA            float64      `json:"vwma"`
	WMA             float64      `json:"wma"`
	Close           float64      `json:"close"`
	Volume          float64      `json:"volume"`
	RecentCloses    []ClosePoint `json:"recent_closes"`
}

// DefaultSnapshot returns a snapshot populated with the documented defaults
// around the given close and volume. Used when bar history is insufficient.
func DefaultSnapshot(close, volume float64) *Snapshot {
	return &Snapshot{
		RSI:             50,
		BollingerUpper:  close * 1.02,
		BollingerMiddle: close,
		BollingerLower:  close * 0.98,
		EMAFast:         close,
		EMASlow:         close,
		VolumeSMA:       volume,
		MFI:             50,
		StochasticK:     50,
		StochasticD:     50,
		ATR:             close * 0.01,
		WilliamsR:       -50,
		VWAP:            close,
		VWMA:            close,
		WMA:             close,
		Close:           close,
		Volume:          volume,
	}
}

// TrendMetrics is the simplified-pipeline view of recent price action,
// computed over the last N closes (default 5).
type TrendMetrics struct {
	MomentumScore     float64 `json:"momentum_score"`
	ContinuationScore float64 `json:"continuation_score"` // in [0, 1]
	PeakPrice         float64 `json:"peak_price"`
	BottomPrice       float64 `json:"bottom_price"`
	Reason            string  `json:"reason"`
}
