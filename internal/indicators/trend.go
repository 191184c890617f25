package indicators

import (
	"fmt"

	"daytrader/internal/models"
)

// DefaultTrendWindow is the number of recent closes the simplified pipeline
// looks at.
const DefaultTrendWindow = 5

// Trend computes the simplified-pipeline trend metrics over the last n
// closes. Bars with close <= 0 are filtered out first. Fewer than two usable
// closes yields zeroed metrics with an explanatory reason.
func Trend(bars []models.Bar, n int) *models.TrendMetrics {
	if n <= 0 {
		n = DefaultTrendWindow
	}
	var usable []models.Bar
	for _, b := range bars {
		if b.Close > 0 {
			usable = append(usable, b)
		}
	}
	if len(usable) > n {
		usable = usable[len(usable)-n:]
	}
	if len(usable) < 2 {
		return &models.TrendMetrics{Reason: "insufficient price history for trend"}
	}

	first, last := usable[0].Close, usable[len(usable)-1].Close
	peak, bottom := first, first
	var up, down int
	for i := 1; i < len(usable); i++ {
		c := usable[i].Close
		if c > peak {
			peak = c
		}
		if c < bottom {
			bottom = c
		}
		switch {
		case c > usable[i-1].Close:
			up++
		case c < usable[i-1].Close:
			down++
		}
	}

	priceChangePct := (last - first) / first * 100
	moves := up + down
	var dominantRatio, consistency float64
	if moves > 0 {
		dominant := up
		if down > up {
			dominant = down
		}
		dominantRatio = float64(dominant) / float64(moves)
		consistency = float64(up-down) / float64(moves)
	}

	continuation := dominantRatio
	// Amplify momentum by trend persistence: 1.0 (choppy) up to 3.0 (one-way).
	amplification := 1 + continuation*2
	momentum := priceChangePct * amplification

	return &models.TrendMetrics{
		MomentumScore:     momentum,
		ContinuationScore: continuation,
		PeakPrice:         peak,
		BottomPrice:       bottom,
		Reason: fmt.Sprintf("change %.2f%% over %d closes, %d up / %d down (consistency %.2f)",
			priceChangePct, len(usable), up, down, consistency),
	}
}
