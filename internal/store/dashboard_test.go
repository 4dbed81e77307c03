package store

import (
	"testing"
	"time"

	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/trading"
)

func TestTradeStatisticsComputesWinRate(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	trades := []trading.Trade{
		{Symbol: "BTCUSDT", Side: model.Long, ExitTime: base, EntryTime: base.Add(-time.Minute), RealizedPnL: 10, ROI: 0.1},
		{Symbol: "BTCUSDT", Side: model.Long, ExitTime: base.Add(time.Minute), EntryTime: base, RealizedPnL: -5, ROI: -0.05},
	}
	for _, tr := range trades {
		if err := s.SaveTrade(tr); err != nil {
			t.Fatalf("unexpected error saving trade: %v", err)
		}
	}

	stats, err := s.TradeStatistics("BTCUSDT", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalTrades != 2 || stats.WinTrades != 1 {
		t.Fatalf("expected 2 trades, 1 win, got %+v", stats)
	}
	if stats.TotalPnL != 5 {
		t.Fatalf("expected total pnl 5, got %v", stats.TotalPnL)
	}
}

func TestEquityCurveOrdersAscending(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.SaveEquityPoint("BTCUSDT", base.Add(time.Minute), 10100, 10000, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SaveEquityPoint("BTCUSDT", base, 10000, 10000, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	points, err := s.EquityCurve("BTCUSDT", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 2 || points[0].Equity != 10000 || points[1].Equity != 10100 {
		t.Fatalf("expected ascending equity points, got %+v", points)
	}
}

func TestAlertsReturnsFilteredAndUnfilteredRows(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	event := model.AnomalyEvent{Symbol: "BTCUSDT", Kind: model.KindPriceChange, TS: base}

	if err := s.SaveAlert(event, false, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SaveAlert(event, true, "fake_signal"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alerts, err := s.Alerts(base.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alert rows, got %d", len(alerts))
	}
}
