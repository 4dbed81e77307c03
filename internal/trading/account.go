// Package trading implements the simulated leveraged-futures trading loop:
// a virtual margin account, position lifecycle and exit rules, a
// stop-loss manager, a rule-based signal strategy, and the realtime glue
// that ties them to per-symbol feature updates.
package trading

import (
	"fmt"
	"sync"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// AccountConfig holds the fixed parameters of a VirtualAccount.
type AccountConfig struct {
	InitialBalance  float64
	Leverage        float64
	MakerFee        float64
	TakerFee        float64
	MaxPositions    int
	PositionRiskPct float64
	MaxMarginRatio  float64
}

// Trade is a closed position's realized record.
type Trade struct {
	Symbol         string
	Side           model.OrderSideTrade
	Quantity       float64
	EntryPrice     float64
	ExitPrice      float64
	EntryTime      time.Time
	ExitTime       time.Time
	ExitReason     model.ExitReason
	Leverage       float64
	RealizedPnL    float64
	RealizedPnLPct float64
	ROI            float64
	Commission     float64
	Margin         float64
	SignalConfidence float64
	SignalReason     string
}

// VirtualAccount tracks simulated balance, open positions and trade
// history for the paper-trading engine. All mutation happens under the
// account lock, either in its own methods or in PositionManager, which
// holds that lock while it opens and closes positions.
type VirtualAccount struct {
	mu sync.Mutex

	cfg AccountConfig

	balance     float64
	positions   map[string]*Position // keyed by position ID
	trades      []Trade
	equityPeaks struct {
		maxEquity float64
		maxDD     float64
	}
}

// NewAccount returns a VirtualAccount seeded with cfg.InitialBalance.
func NewAccount(cfg AccountConfig) *VirtualAccount {
	a := &VirtualAccount{
		cfg:       cfg,
		balance:   cfg.InitialBalance,
		positions: make(map[string]*Position),
	}
	a.equityPeaks.maxEquity = cfg.InitialBalance
	return a
}

// Equity returns balance plus the sum of every open position's
// unrealized PnL.
func (a *VirtualAccount) Equity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.equityLocked()
}

func (a *VirtualAccount) equityLocked() float64 {
	eq := a.balance
	for _, p := range a.positions {
		eq += p.UnrealizedPnL
	}
	return eq
}

// MarginUsed returns the sum of margin committed to open positions.
func (a *VirtualAccount) MarginUsed() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var used float64
	for _, p := range a.positions {
		used += p.Margin
	}
	return used
}

// CanOpen reports whether a new position requiring marginRequired may be
// opened, and if not, why.
func (a *VirtualAccount) CanOpen(marginRequired float64) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.canOpenLocked(marginRequired)
}

func (a *VirtualAccount) canOpenLocked(marginRequired float64) (bool, string) {
	if len(a.positions) >= a.cfg.MaxPositions {
		return false, "max_positions_reached"
	}
	used := 0.0
	for _, p := range a.positions {
		used += p.Margin
	}
	available := a.balance - used
	if available < marginRequired {
		return false, "insufficient_margin"
	}
	if a.balance <= 0 {
		return false, "zero_or_negative_balance"
	}
	if (used+marginRequired)/a.balance > a.cfg.MaxMarginRatio {
		return false, "margin_ratio_exceeded"
	}
	return true, ""
}

// SizeFor computes the quantity, margin and position value for a trade
// entered at price with the given stop-loss distance (percent) and risk
// budget (percent of equity), capped at 50% of available margin.
func (a *VirtualAccount) SizeFor(price, stopLossPct, riskPct float64) (qty, marginRequired, positionValue float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if stopLossPct == 0 || price == 0 {
		return 0, 0, 0
	}
	equity := a.equityLocked()
	riskAmount := equity * riskPct / 100
	positionValue = riskAmount / (stopLossPct / 100) * a.cfg.Leverage
	marginRequired = positionValue / a.cfg.Leverage

	used := 0.0
	for _, p := range a.positions {
		used += p.Margin
	}
	available := a.balance - used
	marginCap := available * 0.5
	if marginRequired > marginCap {
		marginRequired = marginCap
		positionValue = marginRequired * a.cfg.Leverage
	}
	qty = marginRequired * a.cfg.Leverage / price
	return qty, marginRequired, positionValue
}

// Commission returns the fee for a fill of qty @ price at the configured
// maker or taker rate.
func (a *VirtualAccount) Commission(qty, price float64, isMaker bool) float64 {
	rate := a.cfg.TakerFee
	if isMaker {
		rate = a.cfg.MakerFee
	}
	return qty * price * rate
}

// recordTradeLocked applies a closed trade's realized PnL to the balance and
// updates drawdown bookkeeping. Must be called with a.mu held.
func (a *VirtualAccount) recordTradeLocked(t Trade) {
	a.balance += t.RealizedPnL
	a.trades = append(a.trades, t)

	eq := a.equityLocked()
	if eq > a.equityPeaks.maxEquity {
		a.equityPeaks.maxEquity = eq
	}
	if a.equityPeaks.maxEquity > 0 {
		dd := (a.equityPeaks.maxEquity - eq) / a.equityPeaks.maxEquity * 100
		if dd > a.equityPeaks.maxDD {
			a.equityPeaks.maxDD = dd
		}
	}
}

// Trades returns a copy of the trade history.
func (a *VirtualAccount) Trades() []Trade {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Trade, len(a.trades))
	copy(out, a.trades)
	return out
}

// Positions returns a copy of the open position set, keyed by ID.
func (a *VirtualAccount) Positions() map[string]*Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]*Position, len(a.positions))
	for k, v := range a.positions {
		cp := *v
		out[k] = &cp
	}
	return out
}

// State builds a point-in-time AccountState snapshot.
func (a *VirtualAccount) State(now time.Time) model.AccountState {
	a.mu.Lock()
	defer a.mu.Unlock()

	used := 0.0
	for _, p := range a.positions {
		used += p.Margin
	}
	eq := a.equityLocked()

	wins := 0
	var totalPnL float64
	for _, t := range a.trades {
		totalPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			wins++
		}
	}
	winRate := 0.0
	if len(a.trades) > 0 {
		winRate = float64(wins) / float64(len(a.trades)) * 100
	}

	marginRatio := 0.0
	if a.balance > 0 {
		marginRatio = used / a.balance
	}

	return model.AccountState{
		TS:              now,
		Balance:         a.balance,
		Equity:          eq,
		MarginUsed:      used,
		MarginAvailable: a.balance - used,
		MarginRatio:     marginRatio,
		OpenPositions:   len(a.positions),
		TotalTrades:     len(a.trades),
		WinTrades:       wins,
		TotalPnL:        totalPnL,
		MaxDrawdown:     a.equityPeaks.maxDD,
		WinRate:         winRate,
	}
}

func newPositionID(symbol string, t time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, t.UnixNano())
}
