package trading

import "github.com/sentineld/sentineld/internal/model"

// StopLossMode selects how StopLossManager.ComputeStop derives a stop
// price.
type StopLossMode string

const (
	StopLossFixed    StopLossMode = "fixed"
	StopLossATR      StopLossMode = "atr"
	StopLossTrailing StopLossMode = "trailing"
	StopLossMultiple StopLossMode = "multiple"
)

// StopLossConfig bundles the tunables for every mode.
type StopLossConfig struct {
	Mode              StopLossMode
	FixedStopPct      float64
	TakeProfitPct     float64
	ATRMultiplier     float64
	ATRPeriod         int
	TrailingDistance  float64
	TrailingActivation float64
	MaxHoldSec        float64
}

// StopLossManager derives stop-loss and take-profit prices for a new
// position and the trailing/time parameters carried on the Position.
type StopLossManager struct {
	cfg StopLossConfig
}

// NewStopLossManager returns a manager configured with cfg.
func NewStopLossManager(cfg StopLossConfig) *StopLossManager {
	return &StopLossManager{cfg: cfg}
}

// ComputeStop returns the stop-loss price for entry at price with the
// given side. atr may be 0 if unavailable, in which case atr mode falls
// back to fixed.
func (m *StopLossManager) ComputeStop(entry float64, side model.OrderSideTrade, atr float64) float64 {
	switch m.cfg.Mode {
	case StopLossATR:
		if atr <= 0 {
			return m.fixedStop(entry, side)
		}
		distance := m.cfg.ATRMultiplier * atr
		if side == model.Long {
			return entry - distance
		}
		return entry + distance
	case StopLossTrailing, StopLossMultiple:
		// Trailing/time exits are carried on the Position itself; the
		// initial stop still anchors the hard floor.
		return m.fixedStop(entry, side)
	default:
		return m.fixedStop(entry, side)
	}
}

func (m *StopLossManager) fixedStop(entry float64, side model.OrderSideTrade) float64 {
	pct := m.cfg.FixedStopPct / 100
	if side == model.Long {
		return entry * (1 - pct)
	}
	return entry * (1 + pct)
}

// ComputeTakeProfit returns entry * (1 ± takeProfitPct%), using + for
// longs and - for shorts.
func (m *StopLossManager) ComputeTakeProfit(entry float64, side model.OrderSideTrade) float64 {
	pct := m.cfg.TakeProfitPct / 100
	if side == model.Long {
		return entry * (1 + pct)
	}
	return entry * (1 - pct)
}

// TrailingParams returns the trailing distance/activation to carry on a
// new Position, which are only meaningful when Mode is trailing or
// multiple.
func (m *StopLossManager) TrailingParams() (distancePct, activationPct float64) {
	if m.cfg.Mode != StopLossTrailing && m.cfg.Mode != StopLossMultiple {
		return 0, 0
	}
	return m.cfg.TrailingDistance, m.cfg.TrailingActivation
}
