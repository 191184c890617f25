package indicators

import "daytrader/internal/models"

// Compute builds the full technical snapshot for a bar window. Bars must be
// in ascending time order. An empty window yields the zero-close defaults.
func Compute(bars []models.Bar) *models.Snapshot {
	if len(bars) == 0 {
		return models.DefaultSnapshot(0, 0)
	}
	last := bars[len(bars)-1]
	snap := models.DefaultSnapshot(last.Close, last.Volume)

	snap.RSI = RSI(bars, RSIPeriod)
	snap.MACD, snap.MACDSignal, snap.MACDHistogram = MACD(bars, MACDFastPeriod, MACDSlowPeriod, MACDSignalPeriod)
	snap.BollingerUpper, snap.BollingerMiddle, snap.BollingerLower = Bollinger(bars, BollingerPeriod)
	snap.ADX = ADX(bars, ADXPeriod)
	snap.EMAFast = EMA(bars, EMAFastPeriod)
	snap.EMASlow = EMA(bars, EMASlowPeriod)
	snap.VolumeSMA = VolumeSMA(bars, VolumeSMAPeriod)
	snap.OBV = OBV(bars)
	snap.MFI = MFI(bars, MFIPeriod)
	snap.AD = AD(bars)
	snap.StochasticK, snap.StochasticD = Stochastic(bars, StochasticPeriod)
	snap.CCI = CCI(bars, CCIPeriod)
	snap.ATR = ATR(bars, ATRPeriod)
	snap.WilliamsR = WilliamsR(bars, WilliamsRPeriod)
	snap.ROC = ROC(bars, ROCPeriod)
	snap.VWAP = VWAP(bars, VWAPPeriod)
	snap.VWMA = VWMA(bars, VWMAPeriod)
	snap.WMA = WMA(bars, WMAPeriod)

	start := 0
	if len(bars) > models.MaxRecentCloses {
		start = len(bars) - models.MaxRecentCloses
	}
	for _, b := range bars[start:] {
		snap.RecentCloses = append(snap.RecentCloses, models.ClosePoint{
			Timestamp: b.Timestamp,
			Close:     b.Close,
		})
	}
	return snap
}
