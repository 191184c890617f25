// Package indicators computes technical indicators as pure functions over
// bar windows. Every function returns a defined default when the bar history
// is too short; callers never have to branch on missing values.
package indicators

import (
	"math"

	"daytrader/internal/models"
)

// Default periods used by the snapshot builder.
const (
	RSIPeriod        = 14
	MACDFastPeriod   = 12
	MACDSlowPeriod   = 26
	MACDSignalPeriod = 9
	BollingerPeriod  = 20
	ADXPeriod        = 14
	EMAFastPeriod    = 9
	EMASlowPeriod    = 21
	VolumeSMAPeriod  = 20
	MFIPeriod        = 14
	StochasticPeriod = 14
	CCIPeriod        = 20
	ATRPeriod        = 14
	WilliamsRPeriod  = 14
	ROCPeriod        = 10
	VWAPPeriod       = 20
	VWMAPeriod       = 20
	WMAPeriod        = 10
)

func closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func lastClose(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}

// RSI computes the Relative Strength Index with simple averaging of gains
// and losses over the last period deltas. Returns 50 when history is short
// and 100 when the average loss is zero.
func RSI(bars []models.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 50
	}
	window := bars[len(bars)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i].Close - window[i-1].Close
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// EMA computes an exponential moving average over the closes.
// Returns the last close when history is shorter than the period.
func EMA(bars []models.Bar, period int) float64 {
	if period <= 0 || len(bars) == 0 {
		return lastClose(bars)
	}
	if len(bars) < period {
		return lastClose(bars)
	}
	cs := closes(bars)
	// Seed with the SMA of the first period, then fold the remainder.
	var seed float64
	for _, c := range cs[:period] {
		seed += c
	}
	ema := seed / float64(period)
	k := 2.0 / (float64(period) + 1)
	for _, c := range cs[period:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// MACD returns (line, signal, histogram). The line is fast EMA minus slow
// EMA; the signal is approximated as an EMA-weighted blend of the line when
// bar history is too short to maintain a true signal series.
func MACD(bars []models.Bar, fast, slow, signalPeriod int) (line, signal, histogram float64) {
	if len(bars) < slow {
		return 0, 0, 0
	}
	line = EMA(bars, fast) - EMA(bars, slow)

	// Build the MACD series over the available tail and smooth it for the
	// signal line. When the tail is shorter than the signal period the
	// blend degenerates toward the line itself.
	n := len(bars) - slow + 1
	if n > signalPeriod*3 {
		n = signalPeriod * 3
	}
	series := make([]float64, 0, n)
	for i := len(bars) - n; i < len(bars); i++ {
		sub := bars[:i+1]
		series = append(series, EMA(sub, fast)-EMA(sub, slow))
	}
	k := 2.0 / (float64(signalPeriod) + 1)
	signal = series[0]
	for _, v := range series[1:] {
		signal = v*k + signal*(1-k)
	}
	return line, signal, line - signal
}

// Bollinger returns (upper, middle, lower) using 2 standard deviations over
// the last period closes. Defaults to a band of +/-2% around the last close.
func Bollinger(bars []models.Bar, period int) (upper, middle, lower float64) {
	c := lastClose(bars)
	if len(bars) < period {
		return c * 1.02, c, c * 0.98
	}
	window := closes(bars[len(bars)-period:])
	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)
	var variance float64
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(variance / float64(period))
	return mean + 2*sd, mean, mean - 2*sd
}

// ATR is the mean of True Range over the last period bars.
// Defaults to 1% of the last close when history is short.
func ATR(bars []models.Bar, period int) float64 {
	if len(bars) < period+1 {
		return lastClose(bars) * 0.01
	}
	window := bars[len(bars)-period-1:]
	var sum float64
	for i := 1; i < len(window); i++ {
		sum += window[i].TrueRange(window[i-1].Close)
	}
	return sum / float64(period)
}

// ADX computes the Average Directional Index via smoothed directional
// movement. Returns 0 when history is short.
func ADX(bars []models.Bar, period int) float64 {
	if len(bars) < 2*period+1 {
		return 0
	}
	var dxs []float64
	start := len(bars) - 2*period
	for end := start + period; end < len(bars); end++ {
		window := bars[end-period : end+1]
		var plusDM, minusDM, trSum float64
		for i := 1; i < len(window); i++ {
			up := window[i].High - window[i-1].High
			down := window[i-1].Low - window[i].Low
			if up > down && up > 0 {
				plusDM += up
			}
			if down > up && down > 0 {
				minusDM += down
			}
			trSum += window[i].TrueRange(window[i-1].Close)
		}
		if trSum == 0 {
			continue
		}
		plusDI := plusDM / trSum * 100
		minusDI := minusDM / trSum * 100
		if plusDI+minusDI == 0 {
			continue
		}
		dxs = append(dxs, math.Abs(plusDI-minusDI)/(plusDI+minusDI)*100)
	}
	if len(dxs) == 0 {
		return 0
	}
	var sum float64
	for _, dx := range dxs {
		sum += dx
	}
	return sum / float64(len(dxs))
}

// VolumeSMA is the simple moving average of volume over the last period bars.
// Defaults to the last bar's volume.
func VolumeSMA(bars []models.Bar, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if len(bars) < period {
		return bars[len(bars)-1].Volume
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += b.Volume
	}
	return sum / float64(period)
}

// OBV is the cumulative On-Balance Volume over the full window.
func OBV(bars []models.Bar) float64 {
	var obv float64
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			obv += bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			obv -= bars[i].Volume
		}
	}
	return obv
}

// MFI is the Money Flow Index over the last period bars. Defaults to 50.
func MFI(bars []models.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 50
	}
	window := bars[len(bars)-period-1:]
	var positive, negative float64
	for i := 1; i < len(window); i++ {
		tp := (window[i].High + window[i].Low + window[i].Close) / 3
		prevTP := (window[i-1].High + window[i-1].Low + window[i-1].Close) / 3
		flow := tp * window[i].Volume
		if tp > prevTP {
			positive += flow
		} else if tp < prevTP {
			negative += flow
		}
	}
	if negative == 0 {
		return 100
	}
	ratio := positive / negative
	return 100 - 100/(1+ratio)
}

// AD is the cumulative Accumulation/Distribution line over the full window.
func AD(bars []models.Bar) float64 {
	var ad float64
	for _, b := range bars {
		rng := b.High - b.Low
		if rng == 0 {
			continue
		}
		mfm := ((b.Close - b.Low) - (b.High - b.Close)) / rng
		ad += mfm * b.Volume
	}
	return ad
}

// Stochastic returns (%K, %D) over the last period's high/low range.
// Returns (50, 50) on zero range or short history.
func Stochastic(bars []models.Bar, period int) (k, d float64) {
	if len(bars) < period {
		return 50, 50
	}
	kAt := func(end int) (float64, bool) {
		window := bars[end-period : end]
		high, low := window[0].High, window[0].Low
		for _, b := range window[1:] {
			if b.High > high {
				high = b.High
			}
			if b.Low < low {
				low = b.Low
			}
		}
		if high == low {
			return 50, false
		}
		return (window[len(window)-1].Close - low) / (high - low) * 100, true
	}
	k, ok := kAt(len(bars))
	if !ok {
		return 50, 50
	}
	// %D is the 3-sample SMA of %K where enough history exists.
	sum, n := k, 1.0
	for back := 1; back <= 2 && len(bars)-back >= period; back++ {
		if kv, kok := kAt(len(bars) - back); kok {
			sum += kv
			n++
		}
	}
	return k, sum / n
}

// CCI is the Commodity Channel Index over the last period bars. Defaults to 0.
func CCI(bars []models.Bar, period int) float64 {
	if len(bars) < period {
		return 0
	}
	window := bars[len(bars)-period:]
	tps := make([]float64, len(window))
	var sum float64
	for i, b := range window {
		tps[i] = (b.High + b.Low + b.Close) / 3
		sum += tps[i]
	}
	mean := sum / float64(period)
	var meanDev float64
	for _, tp := range tps {
		meanDev += math.Abs(tp - mean)
	}
	meanDev /= float64(period)
	if meanDev == 0 {
		return 0
	}
	return (tps[len(tps)-1] - mean) / (0.015 * meanDev)
}

// WilliamsR is Williams %R over the last period bars. Defaults to -50.
func WilliamsR(bars []models.Bar, period int) float64 {
	if len(bars) < period {
		return -50
	}
	window := bars[len(bars)-period:]
	high, low := window[0].High, window[0].Low
	for _, b := range window[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	if high == low {
		return -50
	}
	return (high - window[len(window)-1].Close) / (high - low) * -100
}

// ROC is the percent rate of change versus the close period bars ago.
// Defaults to 0.
func ROC(bars []models.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}
	prev := bars[len(bars)-period-1].Close
	if prev == 0 {
		return 0
	}
	return (lastClose(bars) - prev) / prev * 100
}

// VWAP is the volume-weighted average price over the last period bars,
// using the typical price per bar. Defaults to the last close.
func VWAP(bars []models.Bar, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	window := bars
	if len(bars) > period {
		window = bars[len(bars)-period:]
	}
	var pv, vol float64
	for _, b := range window {
		tp := (b.High + b.Low + b.Close) / 3
		pv += tp * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return lastClose(bars)
	}
	return pv / vol
}

// VWMA is the volume-weighted moving average of closes over the last period
// bars. Defaults to the last close.
func VWMA(bars []models.Bar, period int) float64 {
	if len(bars) < period {
		return lastClose(bars)
	}
	var pv, vol float64
	for _, b := range bars[len(bars)-period:] {
		pv += b.Close * b.Volume
		vol += b.Volume
	}
	if vol == 0 {
		return lastClose(bars)
	}
	return pv / vol
}

// WMA is the linearly weighted moving average of closes over the last period
// bars, most recent bar weighted heaviest. Defaults to the last close.
func WMA(bars []models.Bar, period int) float64 {
	if len(bars) < period {
		return lastClose(bars)
	}
	window := closes(bars[len(bars)-period:])
	var num, den float64
	for i, c := range window {
		w := float64(i + 1)
		num += c * w
		den += w
	}
	return num / den
}
