// Package indicator implements pure numeric technical-analysis functions
// over in-memory price slices. Every function is side-effect free and
// returns (value, ok) so callers can distinguish "not enough data" from a
// genuine zero.
package indicator

import "math"

// SMA computes the simple moving average of the last n prices.
func SMA(prices []float64, n int) (float64, bool) {
	if n <= 0 || len(prices) < n {
		return 0, false
	}
	window := prices[len(prices)-n:]
	sum := 0.0
	for _, p := range window {
		sum += p
	}
	return sum / float64(n), true
}

// EMA computes the exponential moving average over the full slice, seeded
// by the SMA of the first n prices and recurred forward:
// ema' = (x-ema)*2/(n+1) + ema.
func EMA(prices []float64, n int) (float64, bool) {
	if n <= 0 || len(prices) < n {
		return 0, false
	}
	k := 2.0 / float64(n+1)
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += prices[i]
	}
	ema := sum / float64(n)
	for i := n; i < len(prices); i++ {
		ema = (prices[i]-ema)*k + ema
	}
	return ema, true
}

// RSI computes the Wilder-smoothed relative strength index over period n
// (classically 14). Requires at least n+1 prices.
func RSI(prices []float64, n int) (float64, bool) {
	if n <= 0 || len(prices) < n+1 {
		return 0, false
	}
	var gains, losses float64
	for i := 1; i <= n; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(n)
	avgLoss := losses / float64(n)

	// Wilder smoothing across the remainder of the series.
	for i := n + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0, true
		}
		return 100.0, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD returns the MACD line, signal line and histogram for (fast, slow,
// signal) periods, classically (12, 26, 9). The line series is rebuilt by
// recomputing fast/slow EMA at each growing sub-window so the signal EMA
// has a real series to smooth, matching the reference implementation.
func MACD(prices []float64, fast, slow, signal int) (line, sig, hist float64, ok bool) {
	if len(prices) < slow+signal {
		return 0, 0, 0, false
	}

	macdSeries := make([]float64, 0, len(prices)-slow+1)
	for end := slow; end <= len(prices); end++ {
		sub := prices[:end]
		fastEMA, okFast := EMA(sub, fast)
		slowEMA, okSlow := EMA(sub, slow)
		if !okFast || !okSlow {
			continue
		}
		macdSeries = append(macdSeries, fastEMA-slowEMA)
	}
	if len(macdSeries) < signal {
		return 0, 0, 0, false
	}

	line = macdSeries[len(macdSeries)-1]
	sig, ok = EMA(macdSeries, signal)
	if !ok {
		return 0, 0, 0, false
	}
	hist = line - sig
	return line, sig, hist, true
}

// Bollinger returns the upper, middle and lower bands for period n and
// stdDevs standard deviations (classically 20, 2).
func Bollinger(prices []float64, n int, stdDevs float64) (upper, middle, lower float64, ok bool) {
	mid, ok := SMA(prices, n)
	if !ok {
		return 0, 0, 0, false
	}
	window := prices[len(prices)-n:]
	var sumSq float64
	for _, p := range window {
		d := p - mid
		sumSq += d * d
	}
	sd := math.Sqrt(sumSq / float64(n))
	return mid + stdDevs*sd, mid, mid - stdDevs*sd, true
}

// ATR computes the average true range over the last n+1 high/low/close
// triples (classically n=14).
func ATR(highs, lows, closes []float64, n int) (float64, bool) {
	if n <= 0 || len(highs) < n+1 || len(lows) < n+1 || len(closes) < n+1 {
		return 0, false
	}
	start := len(closes) - n
	var trSum float64
	for i := start; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		trSum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return trSum / float64(n), true
}

// Volatility computes the standard deviation of log returns over the last
// n+1 prices, expressed as a percentage.
func Volatility(prices []float64, n int) (float64, bool) {
	if n <= 0 || len(prices) < n+1 {
		return 0, false
	}
	window := prices[len(prices)-n-1:]
	returns := make([]float64, 0, n)
	for i := 1; i < len(window); i++ {
		if window[i-1] <= 0 {
			continue
		}
		returns = append(returns, math.Log(window[i]/window[i-1]))
	}
	if len(returns) == 0 {
		return 0, false
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	sd := math.Sqrt(sumSq / float64(len(returns)))
	return sd * 100, true
}

// PriceChangePercent returns the percent change between the first and last
// element of the window.
func PriceChangePercent(prices []float64) (float64, bool) {
	if len(prices) < 2 || prices[0] == 0 {
		return 0, false
	}
	return (prices[len(prices)-1] - prices[0]) / prices[0] * 100, true
}

// VolumeRatio returns the last volume divided by the mean of the preceding
// n-1 volumes (the current tick is excluded from the average).
func VolumeRatio(volumes []float64, n int) (float64, bool) {
	if n <= 1 || len(volumes) < n {
		return 0, false
	}
	window := volumes[len(volumes)-n:]
	current := window[len(window)-1]
	prior := window[:len(window)-1]
	sum := 0.0
	for _, v := range prior {
		sum += v
	}
	mean := sum / float64(len(prior))
	if mean == 0 {
		return 0, false
	}
	return current / mean, true
}

// Momentum returns prices[last] - prices[last-n].
func Momentum(prices []float64, n int) (float64, bool) {
	if n <= 0 || len(prices) <= n {
		return 0, false
	}
	return prices[len(prices)-1] - prices[len(prices)-1-n], true
}

// ROC returns the rate of change over n periods, as a percentage.
func ROC(prices []float64, n int) (float64, bool) {
	if n <= 0 || len(prices) <= n {
		return 0, false
	}
	base := prices[len(prices)-1-n]
	if base == 0 {
		return 0, false
	}
	return (prices[len(prices)-1] - base) / base * 100, true
}

// Stochastic returns %K and %D over period n (classically 14, 3).
func Stochastic(highs, lows, closes []float64, n, dPeriod int) (k, d float64, ok bool) {
	if n <= 0 || len(closes) < n+dPeriod-1 {
		return 0, 0, false
	}
	kValues := make([]float64, 0, dPeriod)
	for offset := dPeriod - 1; offset >= 0; offset-- {
		end := len(closes) - offset
		start := end - n
		if start < 0 {
			return 0, 0, false
		}
		hi := maxOf(highs[start:end])
		lo := minOf(lows[start:end])
		if hi == lo {
			kValues = append(kValues, 50.0)
			continue
		}
		kValues = append(kValues, (closes[end-1]-lo)/(hi-lo)*100)
	}
	k = kValues[len(kValues)-1]
	sum := 0.0
	for _, v := range kValues {
		sum += v
	}
	d = sum / float64(len(kValues))
	return k, d, true
}

// WilliamsR returns the Williams %R over period n (classically 14).
func WilliamsR(highs, lows, closes []float64, n int) (float64, bool) {
	if n <= 0 || len(closes) < n {
		return 0, false
	}
	hi := maxOf(highs[len(highs)-n:])
	lo := minOf(lows[len(lows)-n:])
	if hi == lo {
		return -50.0, true
	}
	return (hi - closes[len(closes)-1]) / (hi - lo) * -100, true
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Bundle is the fixed-schema output of Calculator.CalculateAll: neutral
// defaults are substituted whenever the underlying indicator has
// insufficient data, so callers never have to special-case a missing value.
type Bundle struct {
	SMA5, SMA20, SMA60      float64
	EMA12, EMA26            float64
	RSI14                   float64
	MACDLine, MACDSignal, MACDHist float64
	BollingerUpper, BollingerMiddle, BollingerLower float64
	ATR14                   float64
	Volatility5, Volatility20 float64
}

// Calculator bundles the indicator family into one fixed-schema call.
type Calculator struct{}

// CalculateAll computes the full indicator bundle for a price series
// (oldest first). Indicators that cannot be computed fall back to neutral
// defaults: RSI=50, Bollinger middle=last price, everything else=0.
func (Calculator) CalculateAll(prices []float64) Bundle {
	var b Bundle
	b.RSI14 = 50.0
	if len(prices) > 0 {
		b.BollingerMiddle = prices[len(prices)-1]
	}

	if v, ok := SMA(prices, 5); ok {
		b.SMA5 = v
	}
	if v, ok := SMA(prices, 20); ok {
		b.SMA20 = v
	}
	if v, ok := SMA(prices, 60); ok {
		b.SMA60 = v
	}
	if v, ok := EMA(prices, 12); ok {
		b.EMA12 = v
	}
	if v, ok := EMA(prices, 26); ok {
		b.EMA26 = v
	}
	if v, ok := RSI(prices, 14); ok {
		b.RSI14 = v
	}
	if line, sig, hist, ok := MACD(prices, 12, 26, 9); ok {
		b.MACDLine, b.MACDSignal, b.MACDHist = line, sig, hist
	}
	if u, m, l, ok := Bollinger(prices, 20, 2); ok {
		b.BollingerUpper, b.BollingerMiddle, b.BollingerLower = u, m, l
	}
	if v, ok := Volatility(prices, 5); ok {
		b.Volatility5 = v
	}
	if v, ok := Volatility(prices, 20); ok {
		b.Volatility20 = v
	}
	return b
}
