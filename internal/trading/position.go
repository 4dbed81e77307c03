package trading

import (
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// Position is one open leveraged paper position.
type Position struct {
	ID         string
	Symbol     string
	Side       model.OrderSideTrade
	Quantity   float64
	EntryPrice float64
	EntryTime  time.Time
	Leverage   float64
	Margin     float64

	TakeProfitPrice     float64
	StopLossPrice       float64
	TrailingStopDistance float64 // percent; 0 means trailing disabled
	TrailingActivationPct float64
	MaxHoldSeconds       float64

	SignalConfidence float64
	SignalReason     string

	CurrentPrice  float64
	HighestPrice  float64
	LowestPrice   float64
	PnLPct        float64
	UnrealizedPnL float64
}

// UpdatePnL refreshes CurrentPrice, the monotone high/low watermarks, and
// the derived PnL fields for a new mark price.
func (p *Position) UpdatePnL(price float64) {
	p.CurrentPrice = price
	if price > p.HighestPrice || p.HighestPrice == 0 {
		p.HighestPrice = price
	}
	if price < p.LowestPrice || p.LowestPrice == 0 {
		p.LowestPrice = price
	}

	if p.EntryPrice == 0 {
		return
	}
	switch p.Side {
	case model.Long:
		p.PnLPct = (price - p.EntryPrice) / p.EntryPrice * 100
	case model.Short:
		p.PnLPct = (p.EntryPrice - price) / p.EntryPrice * 100
	}
	p.UnrealizedPnL = p.Margin * p.PnLPct / 100 * p.Leverage
}

// ExitCheck is the result of evaluating a position's exit conditions.
type ExitCheck struct {
	ShouldExit bool
	Reason     model.ExitReason
}

// EvaluateExit runs the ordered exit checks (take-profit, stop-loss,
// trailing stop, time exit, liquidation) and returns the first that
// matches.
func (p *Position) EvaluateExit(now time.Time) ExitCheck {
	if p.takeProfitHit() {
		return ExitCheck{true, model.ExitTakeProfit}
	}
	if p.stopLossHit() {
		return ExitCheck{true, model.ExitStopLoss}
	}
	if p.trailingStopHit() {
		return ExitCheck{true, model.ExitTrailingStop}
	}
	if p.MaxHoldSeconds > 0 && now.Sub(p.EntryTime).Seconds() > p.MaxHoldSeconds {
		return ExitCheck{true, model.ExitTimeExit}
	}
	if p.Leverage > 0 && p.PnLPct < -100/p.Leverage {
		return ExitCheck{true, model.ExitLiquidation}
	}
	return ExitCheck{false, ""}
}

func (p *Position) takeProfitHit() bool {
	if p.TakeProfitPrice == 0 {
		return false
	}
	switch p.Side {
	case model.Long:
		return p.CurrentPrice >= p.TakeProfitPrice
	case model.Short:
		return p.CurrentPrice <= p.TakeProfitPrice
	}
	return false
}

func (p *Position) stopLossHit() bool {
	if p.StopLossPrice == 0 {
		return false
	}
	switch p.Side {
	case model.Long:
		return p.CurrentPrice <= p.StopLossPrice
	case model.Short:
		return p.CurrentPrice >= p.StopLossPrice
	}
	return false
}

func (p *Position) trailingStopHit() bool {
	if p.TrailingStopDistance == 0 {
		return false
	}
	if p.PnLPct < p.TrailingActivationPct {
		return false
	}
	dist := p.TrailingStopDistance / 100
	switch p.Side {
	case model.Long:
		return p.CurrentPrice <= p.HighestPrice*(1-dist)
	case model.Short:
		return p.CurrentPrice >= p.LowestPrice*(1+dist)
	}
	return false
}
