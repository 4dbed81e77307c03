package trading

import (
	"math"
	"testing"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

func testAccountConfig() AccountConfig {
	return AccountConfig{
		InitialBalance:  10000,
		Leverage:        10,
		MakerFee:        0.0002,
		TakerFee:        0.0004,
		MaxPositions:    5,
		PositionRiskPct: 1,
		MaxMarginRatio:  0.8,
	}
}

func TestAccountCanOpenRejectsOverMaxPositions(t *testing.T) {
	a := NewAccount(AccountConfig{InitialBalance: 10000, Leverage: 10, MaxPositions: 0, MaxMarginRatio: 0.8})
	ok, reason := a.CanOpen(100)
	if ok {
		t.Fatal("expected rejection when maxPositions is 0")
	}
	if reason != "max_positions_reached" {
		t.Fatalf("expected max_positions_reached, got %s", reason)
	}
}

func TestPositionUpdatePnLLong(t *testing.T) {
	p := &Position{Side: model.Long, EntryPrice: 100, Margin: 1000, Leverage: 10}
	p.UpdatePnL(110)
	if p.PnLPct != 10 {
		t.Fatalf("expected 10%% pnl, got %v", p.PnLPct)
	}
	if p.UnrealizedPnL != 1000 { // margin * 10% * leverage(10) = 1000
		t.Fatalf("expected unrealizedPnL=1000, got %v", p.UnrealizedPnL)
	}
}

func TestPositionExitOrderTakeProfitFirst(t *testing.T) {
	p := &Position{
		Side: model.Long, EntryPrice: 100, Margin: 1000, Leverage: 10,
		TakeProfitPrice: 105, StopLossPrice: 95,
	}
	p.UpdatePnL(106)
	check := p.EvaluateExit(time.Now())
	if !check.ShouldExit || check.Reason != model.ExitTakeProfit {
		t.Fatalf("expected take-profit exit, got %+v", check)
	}
}

func TestPositionLiquidation(t *testing.T) {
	p := &Position{Side: model.Long, EntryPrice: 100, Margin: 1000, Leverage: 10}
	p.UpdatePnL(89) // pnlPct = -11%, liquidation threshold is -100/10=-10%
	check := p.EvaluateExit(time.Now())
	if !check.ShouldExit || check.Reason != model.ExitLiquidation {
		t.Fatalf("expected liquidation exit, got %+v", check)
	}
}

func TestStopLossManagerFixed(t *testing.T) {
	m := NewStopLossManager(StopLossConfig{Mode: StopLossFixed, FixedStopPct: 5, TakeProfitPct: 10})
	stop := m.ComputeStop(100, model.Long, 0)
	if stop != 95 {
		t.Fatalf("expected stop=95, got %v", stop)
	}
	tp := m.ComputeTakeProfit(100, model.Long)
	if math.Abs(tp-110) > 1e-9 {
		t.Fatalf("expected tp=110, got %v", tp)
	}
}

func TestStopLossManagerATRFallsBackToFixedWhenUnavailable(t *testing.T) {
	m := NewStopLossManager(StopLossConfig{Mode: StopLossATR, FixedStopPct: 5, ATRMultiplier: 2})
	stop := m.ComputeStop(100, model.Long, 0)
	if stop != 95 {
		t.Fatalf("expected fallback fixed stop=95, got %v", stop)
	}
}

func TestStrategyEmitsLongSignalOnOversoldBounce(t *testing.T) {
	s := NewStrategy(StrategyConfig{
		MinConfidence: 0.2, SignalThreshold: 0.3, RSIOversold: 30, RSIOverbought: 70,
		MinVolatility: 0, MinVolumeRatio: 0, ImbalanceLongThreshold: 0.2, ImbalanceShortThreshold: -0.2,
		TrendFilterPct: 100,
	})
	fv := model.FeatureVector{
		RSI14: 20, MACDLine: 1, MACDSignal: 0.5, ImbalanceRatio10: 0.3,
		PriceChange1m: 0.6, ReversalType: "bottom", Volatility5m: 1, VolumeRatio30: 1,
	}
	signal, ok := s.Evaluate(fv, 10)
	if !ok {
		t.Fatal("expected a signal to be emitted")
	}
	if signal.Side != model.Long {
		t.Fatalf("expected long side, got %v", signal.Side)
	}
}

func TestStrategyRejectsWideSpread(t *testing.T) {
	s := NewStrategy(StrategyConfig{MinConfidence: 0.1, SignalThreshold: 0.1, ImbalanceLongThreshold: 0.1, ImbalanceShortThreshold: -0.1})
	fv := model.FeatureVector{RSI14: 20, ImbalanceRatio10: 0.3, Volatility5m: 1, VolumeRatio30: 1}
	_, ok := s.Evaluate(fv, 150)
	if ok {
		t.Fatal("expected rejection on spread > 100bps")
	}
}

func TestPositionManagerOpenAndClose(t *testing.T) {
	account := NewAccount(testAccountConfig())
	sl := NewStopLossManager(StopLossConfig{Mode: StopLossFixed, FixedStopPct: 5, TakeProfitPct: 10})
	pm := NewPositionManager(account, sl, 3)

	now := time.Now()
	pos, err := pm.Open(OpenRequest{Symbol: "BTCUSDT", Side: model.Long, Price: 100, RiskPct: 1, Now: now})
	if err != nil {
		t.Fatalf("unexpected error opening position: %v", err)
	}
	if pos.Quantity <= 0 {
		t.Fatal("expected positive quantity")
	}

	trade, err := pm.Close(pos.ID, 110, model.ExitTakeProfit, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error closing position: %v", err)
	}
	if trade.RealizedPnL <= 0 {
		t.Fatalf("expected positive realized pnl, got %v", trade.RealizedPnL)
	}
}

func TestCloseAllFallsBackToLastKnownPrice(t *testing.T) {
	account := NewAccount(testAccountConfig())
	sl := NewStopLossManager(StopLossConfig{Mode: StopLossFixed, FixedStopPct: 5, TakeProfitPct: 10})
	pm := NewPositionManager(account, sl, 3)

	now := time.Now()
	_, err := pm.Open(OpenRequest{Symbol: "BTCUSDT", Side: model.Long, Price: 100, RiskPct: 1, Now: now})
	if err != nil {
		t.Fatalf("unexpected error opening position: %v", err)
	}

	trades, err := pm.CloseAll(map[string]float64{}, model.ExitManual, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error in closeAll: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade closed, got %d", len(trades))
	}
}

type fakeSink struct {
	accountSaves int
	equitySaves  int
}

func (f *fakeSink) SaveAccountState(model.AccountState) error { f.accountSaves++; return nil }
func (f *fakeSink) SaveEquityPoint(symbol string, ts time.Time, equity, balance, drawdown float64) error {
	f.equitySaves++
	return nil
}
func (f *fakeSink) SaveTrade(Trade) error { return nil }

func TestMaybeSaveStateWritesAccountAndEquityPoint(t *testing.T) {
	account := NewAccount(testAccountConfig())
	sl := NewStopLossManager(StopLossConfig{Mode: StopLossFixed, FixedStopPct: 5, TakeProfitPct: 10})
	pm := NewPositionManager(account, sl, 3)
	strategy := NewStrategy(StrategyConfig{})
	sink := &fakeSink{}
	engine := NewEngine(pm, strategy, sink, EngineConfig{SaveInterval: time.Minute, MaxPositionsPerSymbol: 3})
	engine.Start()

	now := time.Now()
	if err := engine.OnFeatureUpdate("BTCUSDT", model.FeatureVector{}, 100, 0, 5, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.accountSaves != 1 {
		t.Fatalf("expected 1 account save, got %d", sink.accountSaves)
	}
	if sink.equitySaves != 1 {
		t.Fatalf("expected 1 equity point save alongside the account save, got %d", sink.equitySaves)
	}
}

func TestStopPersistsFinalEquityPoint(t *testing.T) {
	account := NewAccount(testAccountConfig())
	sl := NewStopLossManager(StopLossConfig{Mode: StopLossFixed, FixedStopPct: 5, TakeProfitPct: 10})
	pm := NewPositionManager(account, sl, 3)
	strategy := NewStrategy(StrategyConfig{})
	sink := &fakeSink{}
	engine := NewEngine(pm, strategy, sink, EngineConfig{SaveInterval: time.Minute, MaxPositionsPerSymbol: 3})
	engine.Start()

	if err := engine.Stop(time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.accountSaves != 1 || sink.equitySaves != 1 {
		t.Fatalf("expected Stop to save both account state and an equity point, got %+v", sink)
	}
}
