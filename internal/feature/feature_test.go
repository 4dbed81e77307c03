package feature

import (
	"testing"
	"time"

	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/orderbook"
	"github.com/sentineld/sentineld/internal/tracker"
)

func TestComputeReturnsNilBelowMinPoints(t *testing.T) {
	tr := tracker.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Update(model.Ticker{Symbol: "BTCUSDT", Price: 100, BaseVolume: 1, TS: base})
	st, _ := tr.Symbol("BTCUSDT")

	e := New()
	fv, ok := e.Compute("BTCUSDT", st, nil, base)
	if ok || fv != nil {
		t.Fatal("expected no feature vector with fewer than minPricePoints observations")
	}
}

func TestComputeProducesFeatureVector(t *testing.T) {
	tr := tracker.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		tr.Update(model.Ticker{Symbol: "BTCUSDT", Price: 100 + float64(i), BaseVolume: 1, TS: base.Add(time.Duration(i) * time.Second)})
	}
	st, _ := tr.Symbol("BTCUSDT")

	e := New()
	fv, ok := e.Compute("BTCUSDT", st, nil, base.Add(9*time.Second))
	if !ok || fv == nil {
		t.Fatal("expected a feature vector")
	}
	if fv.Symbol != "BTCUSDT" {
		t.Fatalf("expected symbol BTCUSDT, got %s", fv.Symbol)
	}
	if fv.Price != 109 {
		t.Fatalf("expected price 109, got %v", fv.Price)
	}
}

func TestComputeUsesOrderBookSnapshotWhenProvided(t *testing.T) {
	tr := tracker.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		tr.Update(model.Ticker{Symbol: "BTCUSDT", Price: 100, BaseVolume: 1, TS: base.Add(time.Duration(i) * time.Second)})
	}
	st, _ := tr.Symbol("BTCUSDT")

	book := orderbook.NewMonitor(orderbook.DefaultConfig())
	book.Process(model.DepthSnapshot{
		Symbol: "BTCUSDT",
		Bids:   []model.DepthLevel{{Price: 99, Qty: 101}},
		Asks:   []model.DepthLevel{{Price: 101, Qty: 99}},
		TS:     base.Add(9 * time.Second),
	})

	e := New()
	fv, ok := e.Compute("BTCUSDT", st, book, base.Add(9*time.Second))
	if !ok {
		t.Fatal("expected a feature vector")
	}
	if fv.ImbalanceRatio5 != 0 {
		t.Fatalf("expected balanced book imbalance of 0, got %v", fv.ImbalanceRatio5)
	}
}

func TestComputeReportsNearestWallDistanceAndValue(t *testing.T) {
	tr := tracker.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		tr.Update(model.Ticker{Symbol: "BTCUSDT", Price: 100, BaseVolume: 1, TS: base.Add(time.Duration(i) * time.Second)})
	}
	st, _ := tr.Symbol("BTCUSDT")

	cfg := orderbook.DefaultConfig()
	cfg.WallValueThreshold = 1000
	cfg.WallRatioThreshold = 0
	book := orderbook.NewMonitor(cfg)
	book.Process(model.DepthSnapshot{
		Symbol: "BTCUSDT",
		Bids:   []model.DepthLevel{{Price: 99, Qty: 100}},
		Asks:   []model.DepthLevel{{Price: 101, Qty: 100}},
		TS:     base.Add(9 * time.Second),
	})

	e := New()
	fv, ok := e.Compute("BTCUSDT", st, book, base.Add(9*time.Second))
	if !ok {
		t.Fatal("expected a feature vector")
	}
	if fv.WallValueBid == 0 || fv.WallValueAsk == 0 {
		t.Fatalf("expected nonzero tracked wall values, got bid=%v ask=%v", fv.WallValueBid, fv.WallValueAsk)
	}
}
