package trading

import (
	"sync"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// StateSink persists account snapshots and equity-curve points, and
// closed trades, on behalf of RealtimeEngine. Implemented by the store
// package; kept as a narrow interface here so trading never imports
// storage directly.
type StateSink interface {
	SaveAccountState(model.AccountState) error
	SaveEquityPoint(symbol string, ts time.Time, equity, balance, drawdown float64) error
	SaveTrade(Trade) error
}

// EngineConfig tunes the realtime wiring.
type EngineConfig struct {
	SaveInterval         time.Duration
	MaxPositionsPerSymbol int
	AllowedSymbols       map[string]struct{} // nil means all symbols allowed
}

// RealtimeEngine ties the VirtualAccount, PositionManager and Strategy
// together behind a single per-symbol entry point driven by feature
// computation.
type RealtimeEngine struct {
	mu sync.Mutex

	manager  *PositionManager
	strategy *Strategy
	sink     StateSink
	cfg      EngineConfig

	running     bool
	lastSave    time.Time
}

// NewEngine returns a RealtimeEngine wired to manager/strategy/sink.
func NewEngine(manager *PositionManager, strategy *Strategy, sink StateSink, cfg EngineConfig) *RealtimeEngine {
	return &RealtimeEngine{manager: manager, strategy: strategy, sink: sink, cfg: cfg}
}

// Start marks the engine as processing feature updates.
func (e *RealtimeEngine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = true
}

// Stop marks the engine as no longer processing feature updates and
// persists a final account snapshot. It deliberately does not close open
// positions — callers that want a clean shutdown must close positions
// explicitly first, then call Stop.
func (e *RealtimeEngine) Stop(now time.Time) error {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	return e.persistState(now)
}

func (e *RealtimeEngine) allowed(symbol string) bool {
	if e.cfg.AllowedSymbols == nil {
		return true
	}
	_, ok := e.cfg.AllowedSymbols[symbol]
	return ok
}

// OnFeatureUpdate is invoked once per feature computation per symbol. It
// marks positions to market, closes any now-exitable position for this
// symbol, opens a new position if the strategy signals and no same-side
// position already exists, and periodically persists account state.
func (e *RealtimeEngine) OnFeatureUpdate(symbol string, fv model.FeatureVector, currentPrice float64, atr, spreadBps float64, now time.Time) error {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	if !running || !e.allowed(symbol) {
		return nil
	}

	e.manager.UpdatePositionsPnL(map[string]float64{symbol: currentPrice})

	if err := e.closeExitable(symbol, fv, currentPrice, now); err != nil {
		return err
	}

	if err := e.maybeOpen(symbol, fv, currentPrice, atr, spreadBps, now); err != nil {
		return err
	}

	return e.maybeSaveState(now)
}

func (e *RealtimeEngine) closeExitable(symbol string, fv model.FeatureVector, currentPrice float64, now time.Time) error {
	for _, pos := range e.manager.account.Positions() {
		if pos.Symbol != symbol {
			continue
		}
		if check := pos.EvaluateExit(now); check.ShouldExit {
			trade, err := e.manager.Close(pos.ID, currentPrice, check.Reason, now)
			if err != nil {
				return err
			}
			if err := e.sink.SaveTrade(trade); err != nil {
				return err
			}
			continue
		}
		if should, _ := e.strategy.ShouldClose(fv, pos.Side); should {
			trade, err := e.manager.Close(pos.ID, currentPrice, model.ExitSignalExit, now)
			if err != nil {
				return err
			}
			if err := e.sink.SaveTrade(trade); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *RealtimeEngine) maybeOpen(symbol string, fv model.FeatureVector, currentPrice, atr, spreadBps float64, now time.Time) error {
	existing := e.manager.account.Positions()
	count := 0
	for _, p := range existing {
		if p.Symbol == symbol {
			count++
		}
	}
	if count >= e.cfg.MaxPositionsPerSymbol {
		return nil
	}

	signal, ok := e.strategy.Evaluate(fv, spreadBps)
	if !ok {
		return nil
	}

	for _, p := range existing {
		if p.Symbol == symbol && p.Side == signal.Side {
			return nil
		}
	}

	_, err := e.manager.Open(OpenRequest{
		Symbol: symbol, Side: signal.Side, Price: currentPrice, ATR: atr,
		RiskPct: e.manager.account.cfg.PositionRiskPct, Confidence: signal.Confidence,
		Reason: "strategy_signal", Now: now,
	})
	return err
}

func (e *RealtimeEngine) maybeSaveState(now time.Time) error {
	e.mu.Lock()
	due := e.lastSave.IsZero() || now.Sub(e.lastSave) >= e.cfg.SaveInterval
	if due {
		e.lastSave = now
	}
	e.mu.Unlock()
	if !due {
		return nil
	}
	return e.persistState(now)
}

// persistState saves the account snapshot and an account-wide equity-curve
// point (symbol "" by convention, matching every row in EquityCurve's
// unfiltered query) for the same instant.
func (e *RealtimeEngine) persistState(now time.Time) error {
	state := e.manager.Account().State(now)
	if err := e.sink.SaveAccountState(state); err != nil {
		return err
	}
	return e.sink.SaveEquityPoint("", now, state.Equity, state.Balance, state.MaxDrawdown)
}
