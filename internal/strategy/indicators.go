package strategy

import (
	"math"

	"paper-trading-bot/internal/market"
)

// Snapshot holds the indicator state the strategies and the AI prompt are
// built from. All values refer to the last candle.
type Snapshot struct {
	CurrentPrice float64
	RSI14        float64
	RSI7         float64
	MACD         float64
	MACDSignal   float64
	MACDHist     float64
	BBUpper      float64
	BBMiddle     float64
	BBLower      float64
	BBPosition   float64 // 0 at lower band, 1 at upper band
	ATR          float64
	VolumeRatio  float64
	Volatility   float64
	ZScore       float64
	Momentum     float64 // close / close 10 candles ago
}

const minSnapshotCandles = 30

// ComputeSnapshot derives the full indicator set from candles. With fewer
// than 30 candles it returns ok=false; every indicator degrades to a
// neutral default rather than NaN when its own window is short.
func ComputeSnapshot(klines []market.Kline) (Snapshot, bool) {
	if len(klines) < minSnapshotCandles {
		return Snapshot{}, false
	}

	closes := make([]float64, len(klines))
	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	volumes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
		volumes[i] = k.Volume
	}

	price := closes[len(closes)-1]
	snap := Snapshot{
		CurrentPrice: price,
		RSI14:        rsi(closes, 14),
		RSI7:         rsi(closes, 7),
		ATR:          atr(highs, lows, closes, 14),
		VolumeRatio:  volumeRatio(volumes, 20),
		Volatility:   volatility(closes, 20),
		ZScore:       zScore(closes, 20),
		Momentum:     momentum(closes, 10),
	}
	if snap.ATR == 0 {
		snap.ATR = price * 0.01
	}

	snap.MACD, snap.MACDSignal, snap.MACDHist = macd(closes, 12, 26, 9)

	snap.BBUpper, snap.BBMiddle, snap.BBLower = bollinger(closes, 20, 2.0)
	snap.BBPosition = bbPosition(price, snap.BBUpper, snap.BBLower)

	return snap, true
}

// rsi is Wilder-smoothed over the whole series, returning the last value.
func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func sma(values []float64, period int) float64 {
	if len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// emaSeries returns the EMA at each index from period-1 onward; earlier
// entries are zero.
func emaSeries(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	mult := 2.0 / float64(period+1)

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	out[period-1] = seed / float64(period)

	for i := period; i < len(values); i++ {
		out[i] = values[i]*mult + out[i-1]*(1-mult)
	}
	return out
}

func macd(closes []float64, fast, slow, signalPeriod int) (line, signal, hist float64) {
	if len(closes) < slow+signalPeriod {
		return 0, 0, 0
	}
	emaFast := emaSeries(closes, fast)
	emaSlow := emaSeries(closes, slow)
	if emaFast == nil || emaSlow == nil {
		return 0, 0, 0
	}

	macdSeries := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macdSeries = append(macdSeries, emaFast[i]-emaSlow[i])
	}

	signalSeries := emaSeries(macdSeries, signalPeriod)
	if signalSeries == nil {
		return 0, 0, 0
	}

	line = macdSeries[len(macdSeries)-1]
	signal = signalSeries[len(signalSeries)-1]
	return line, signal, line - signal
}

func bollinger(closes []float64, period int, stdDev float64) (upper, middle, lower float64) {
	price := closes[len(closes)-1]
	if len(closes) < period {
		return price, price, price
	}

	middle = sma(closes, period)
	variance := 0.0
	for _, v := range closes[len(closes)-period:] {
		d := v - middle
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))
	return middle + stdDev*std, middle, middle - stdDev*std
}

func bbPosition(price, upper, lower float64) float64 {
	if upper == lower {
		return 0.5
	}
	pos := (price - lower) / (upper - lower)
	return math.Max(0, math.Min(1, pos))
}

func atr(highs, lows, closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}

	trs := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		tr := highs[i] - lows[i]
		tr = math.Max(tr, math.Abs(highs[i]-closes[i-1]))
		tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
		trs = append(trs, tr)
	}

	v := 0.0
	for _, tr := range trs[:period] {
		v += tr
	}
	v /= float64(period)
	for i := period; i < len(trs); i++ {
		v = (v*float64(period-1) + trs[i]) / float64(period)
	}
	return v
}

func volumeRatio(volumes []float64, period int) float64 {
	if len(volumes) < period+1 {
		return 1
	}
	current := volumes[len(volumes)-1]
	avg := sma(volumes[:len(volumes)-1], period)
	if avg == 0 {
		return 1
	}
	return current / avg
}

func volatility(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0.01
	}
	window := closes[len(closes)-period-1:]
	returns := make([]float64, 0, period)
	for i := 1; i < len(window); i++ {
		if window[i-1] == 0 {
			continue
		}
		returns = append(returns, (window[i]-window[i-1])/window[i-1])
	}
	if len(returns) == 0 {
		return 0.01
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(returns)))
}

func zScore(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}
	window := closes[len(closes)-period-1:]

	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(window)))
	if std == 0 {
		return 0
	}
	return (closes[len(closes)-1] - mean) / std
}

func momentum(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 1
	}
	past := closes[len(closes)-period-1]
	if past == 0 {
		return 1
	}
	return closes[len(closes)-1] / past
}
