package trading

import "github.com/sentineld/sentineld/internal/model"

// StrategyConfig holds the rule-based scoring thresholds.
type StrategyConfig struct {
	MinConfidence           float64
	SignalThreshold         float64
	RSIOversold             float64
	RSIOverbought           float64
	MinVolatility           float64
	MinVolumeRatio          float64
	ImbalanceLongThreshold  float64
	ImbalanceShortThreshold float64
	TrendFilterPct          float64
}

// Signal is an accepted trade proposal.
type Signal struct {
	Side       model.OrderSideTrade
	Score      float64
	Confidence float64
}

// Strategy scores a FeatureVector into a directional signal.
type Strategy struct {
	cfg StrategyConfig
}

// NewStrategy returns a Strategy configured with cfg.
func NewStrategy(cfg StrategyConfig) *Strategy {
	return &Strategy{cfg: cfg}
}

// Evaluate scores fv and returns a Signal if it clears both the signal
// threshold and the indicator/risk filters. spreadBps is the live
// spread in basis points, used by the signal-time risk check.
func (s *Strategy) Evaluate(fv model.FeatureVector, spreadBps float64) (Signal, bool) {
	if !s.passesIndicatorFilter(fv) {
		return Signal{}, false
	}
	if !s.passesSignalTimeRisk(fv, spreadBps) {
		return Signal{}, false
	}

	score := s.score(fv)
	confidence := score
	if confidence < 0 {
		confidence = -confidence
	}
	if confidence > 1 {
		confidence = 1
	}

	abs := score
	if abs < 0 {
		abs = -abs
	}
	if abs <= s.cfg.SignalThreshold || confidence < s.cfg.MinConfidence {
		return Signal{}, false
	}

	side := model.Long
	if score < 0 {
		side = model.Short
	}
	return Signal{Side: side, Score: score, Confidence: confidence}, true
}

func (s *Strategy) score(fv model.FeatureVector) float64 {
	var score float64

	switch {
	case fv.RSI14 < s.cfg.RSIOversold:
		score += 0.3
	case fv.RSI14 > s.cfg.RSIOverbought:
		score -= 0.3
	}

	if fv.MACDLine > fv.MACDSignal {
		score += 0.2
	} else {
		score -= 0.2
	}

	switch {
	case fv.ImbalanceRatio10 > s.cfg.ImbalanceLongThreshold:
		score += 0.25
	case fv.ImbalanceRatio10 < s.cfg.ImbalanceShortThreshold:
		score -= 0.25
	}

	switch {
	case fv.PriceChange1m > 0.5:
		score += 0.15
	case fv.PriceChange1m < -0.5:
		score -= 0.15
	}

	switch fv.ReversalType {
	case "bottom":
		score += 0.3
	case "top":
		score -= 0.3
	}

	return score
}

func (s *Strategy) passesIndicatorFilter(fv model.FeatureVector) bool {
	if fv.Volatility5m < s.cfg.MinVolatility {
		return false
	}
	if fv.VolumeRatio30 < s.cfg.MinVolumeRatio {
		return false
	}
	// Trend consistency: don't fight a strong prevailing trend.
	score := s.score(fv)
	if score > 0 && fv.PriceChange5m < -s.cfg.TrendFilterPct {
		return false
	}
	if score < 0 && fv.PriceChange5m > s.cfg.TrendFilterPct {
		return false
	}
	return true
}

func (s *Strategy) passesSignalTimeRisk(fv model.FeatureVector, spreadBps float64) bool {
	if spreadBps > 100 {
		return false
	}
	imbalanceAbs := fv.ImbalanceRatio10
	if imbalanceAbs < 0 {
		imbalanceAbs = -imbalanceAbs
	}
	return imbalanceAbs >= 0.05 && imbalanceAbs <= 0.95
}

// ShouldClose is a reverse-signal exit check usable as an extra
// SignalExit trigger alongside the ordered exits on Position. It only
// ever recommends closing early; it never overrides or reorders the
// other exit checks.
func (s *Strategy) ShouldClose(fv model.FeatureVector, currentSide model.OrderSideTrade) (bool, string) {
	score := s.score(fv)
	switch currentSide {
	case model.Long:
		if score < -s.cfg.SignalThreshold {
			return true, "reverse_signal_short"
		}
	case model.Short:
		if score > s.cfg.SignalThreshold {
			return true, "reverse_signal_long"
		}
	}
	return false, ""
}
