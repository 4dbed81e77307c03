package orderbook

import (
	"testing"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

func levels(n int, basePrice, step, qty float64, ascending bool) []model.DepthLevel {
	out := make([]model.DepthLevel, n)
	for i := 0; i < n; i++ {
		delta := float64(i) * step
		if !ascending {
			delta = -delta
		}
		out[i] = model.DepthLevel{Price: basePrice + delta, Qty: qty}
	}
	return out
}

func TestWallDetectedOnNewLargeOrder(t *testing.T) {
	cfg := DefaultConfig()
	m := NewMonitor(cfg)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	bids := levels(20, 100, 0.1, 1, false)
	asks := levels(20, 100.2, 0.1, 1, true)
	bids[0].Qty = 100000 // value = 100*100000 = 10,000,000 >> threshold

	snap := model.DepthSnapshot{Symbol: "BTCUSDT", Bids: bids, Asks: asks, TS: base}
	events := m.Process(snap)

	found := false
	for _, e := range events {
		if e.Kind == model.KindOrderBookWall {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a wall event on first snapshot with an oversized bid")
	}
}

func TestSweepDetectedWhenWallVanishes(t *testing.T) {
	cfg := DefaultConfig()
	m := NewMonitor(cfg)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	bids := levels(20, 100, 0.1, 1, false)
	asks := levels(20, 100.2, 0.1, 1, true)
	bids[0].Qty = 100000
	snap1 := model.DepthSnapshot{Symbol: "BTCUSDT", Bids: bids, Asks: asks, TS: base}
	m.Process(snap1)

	bids2 := levels(20, 100, 0.1, 1, false)
	asks2 := levels(20, 100.2, 0.1, 1, true)
	bids2[0].Qty = 10 // vanished to 0.01% of prior
	snap2 := model.DepthSnapshot{Symbol: "BTCUSDT", Bids: bids2, Asks: asks2, TS: base.Add(time.Minute)}
	events := m.Process(snap2)

	found := false
	for _, e := range events {
		if e.Kind == model.KindOrderBookSweep {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a sweep event when the wall qty collapses")
	}
}

func TestImbalanceDetectedOnSkewedBook(t *testing.T) {
	cfg := DefaultConfig()
	m := NewMonitor(cfg)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	bids := levels(20, 100, 0.1, 100, false)
	asks := levels(20, 100.2, 0.1, 1, true)
	snap := model.DepthSnapshot{Symbol: "BTCUSDT", Bids: bids, Asks: asks, TS: base}
	events := m.Process(snap)

	found := false
	for _, e := range events {
		if e.Kind == model.KindOrderBookImbalance {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an imbalance event on a heavily bid-skewed book")
	}
}
