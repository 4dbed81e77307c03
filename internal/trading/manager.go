package trading

import (
	"fmt"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// PositionManager orchestrates opening and closing positions against a
// VirtualAccount, keyed by symbol for the maxPositionsPerSymbol guard.
type PositionManager struct {
	account      *VirtualAccount
	stopLoss     *StopLossManager
	maxPerSymbol int
}

// NewPositionManager returns a manager wired to account and stopLoss.
func NewPositionManager(account *VirtualAccount, stopLoss *StopLossManager, maxPerSymbol int) *PositionManager {
	return &PositionManager{account: account, stopLoss: stopLoss, maxPerSymbol: maxPerSymbol}
}

// OpenRequest bundles the inputs needed to open one position.
type OpenRequest struct {
	Symbol     string
	Side       model.OrderSideTrade
	Price      float64
	ATR        float64
	RiskPct    float64
	Confidence float64
	Reason     string
	Now        time.Time
}

// Open attempts to open a new position per req, returning the Position on
// success or an error explaining the rejection.
func (m *PositionManager) Open(req OpenRequest) (*Position, error) {
	stopPrice := m.stopLoss.ComputeStop(req.Price, req.Side, req.ATR)
	takeProfit := m.stopLoss.ComputeTakeProfit(req.Price, req.Side)

	// SizeFor takes the account lock itself, so sizing runs before Open
	// acquires it.
	stopLossPct := pctDistance(req.Price, stopPrice)
	qty, margin, _ := m.account.SizeFor(req.Price, stopLossPct, req.RiskPct)

	m.account.mu.Lock()
	defer m.account.mu.Unlock()

	if len(m.positionsForSymbolLocked(req.Symbol)) >= m.maxPerSymbol {
		return nil, fmt.Errorf("open rejected for %s: max positions per symbol reached", req.Symbol)
	}
	if qty <= 0 || margin <= 0 {
		return nil, fmt.Errorf("open rejected for %s: non-positive size computed", req.Symbol)
	}

	ok, reason := m.account.canOpenLocked(margin)
	if !ok {
		return nil, fmt.Errorf("open rejected for %s: %s", req.Symbol, reason)
	}

	commission := m.account.Commission(qty, req.Price, false)
	m.account.balance -= commission

	trailDist, trailActivation := m.stopLoss.TrailingParams()

	pos := &Position{
		ID:                    newPositionID(req.Symbol, req.Now),
		Symbol:                req.Symbol,
		Side:                  req.Side,
		Quantity:              qty,
		EntryPrice:            req.Price,
		EntryTime:             req.Now,
		Leverage:              m.account.cfg.Leverage,
		Margin:                margin,
		TakeProfitPrice:       takeProfit,
		StopLossPrice:         stopPrice,
		TrailingStopDistance:  trailDist,
		TrailingActivationPct: trailActivation,
		MaxHoldSeconds:        m.stopLoss.cfg.MaxHoldSec,
		SignalConfidence:      req.Confidence,
		SignalReason:          req.Reason,
		CurrentPrice:          req.Price,
		HighestPrice:          req.Price,
		LowestPrice:           req.Price,
	}
	m.account.positions[pos.ID] = pos
	return pos, nil
}

func (m *PositionManager) positionsForSymbolLocked(symbol string) []*Position {
	var out []*Position
	for _, p := range m.account.positions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

func pctDistance(entry, stop float64) float64 {
	if entry == 0 {
		return 0
	}
	d := (entry - stop) / entry * 100
	if d < 0 {
		d = -d
	}
	return d
}

// Close closes the position with the given ID at exitPrice for reason,
// recording the resulting Trade against the account.
func (m *PositionManager) Close(id string, exitPrice float64, reason model.ExitReason, now time.Time) (Trade, error) {
	m.account.mu.Lock()
	defer m.account.mu.Unlock()

	pos, ok := m.account.positions[id]
	if !ok {
		return Trade{}, fmt.Errorf("close rejected: position %s not found", id)
	}

	pos.UpdatePnL(exitPrice)
	commission := m.account.Commission(pos.Quantity, exitPrice, false)
	realizedPnL := pos.UnrealizedPnL - commission

	roi := 0.0
	if pos.Margin > 0 {
		roi = realizedPnL / pos.Margin * 100
	}

	trade := Trade{
		Symbol: pos.Symbol, Side: pos.Side, Quantity: pos.Quantity,
		EntryPrice: pos.EntryPrice, ExitPrice: exitPrice,
		EntryTime: pos.EntryTime, ExitTime: now, ExitReason: reason,
		Leverage: pos.Leverage, RealizedPnL: realizedPnL, RealizedPnLPct: pos.PnLPct,
		ROI: roi, Commission: commission, Margin: pos.Margin,
		SignalConfidence: pos.SignalConfidence, SignalReason: pos.SignalReason,
	}

	delete(m.account.positions, id)
	m.account.recordTradeLocked(trade)
	return trade, nil
}

// UpdatePositionsPnL refreshes every open position whose symbol has a
// price in prices.
func (m *PositionManager) UpdatePositionsPnL(prices map[string]float64) {
	m.account.mu.Lock()
	defer m.account.mu.Unlock()
	for _, p := range m.account.positions {
		if price, ok := prices[p.Symbol]; ok {
			p.UpdatePnL(price)
		}
	}
}

// CloseAll closes every open position, using prices[symbol] when
// available and falling back to the position's last known CurrentPrice
// for any symbol that has gone silent.
func (m *PositionManager) CloseAll(prices map[string]float64, reason model.ExitReason, now time.Time) ([]Trade, error) {
	m.account.mu.Lock()
	ids := make([]string, 0, len(m.account.positions))
	for id := range m.account.positions {
		ids = append(ids, id)
	}
	m.account.mu.Unlock()

	var trades []Trade
	for _, id := range ids {
		m.account.mu.Lock()
		pos, ok := m.account.positions[id]
		price := 0.0
		if ok {
			price = pos.CurrentPrice
			if p, have := prices[pos.Symbol]; have {
				price = p
			}
		}
		m.account.mu.Unlock()
		if !ok {
			continue
		}
		t, err := m.Close(id, price, reason, now)
		if err != nil {
			return trades, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Account exposes the underlying account for read-only dashboard queries.
func (m *PositionManager) Account() *VirtualAccount {
	return m.account
}
