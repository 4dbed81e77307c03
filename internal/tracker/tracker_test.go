package tracker

import (
	"testing"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

func tick(symbol string, price, volume float64, ts time.Time) model.Ticker {
	return model.Ticker{Symbol: symbol, Price: price, BaseVolume: volume, TS: ts}
}

func TestPriceChange(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Update(tick("BTCUSDT", 100, 1, base))
	tr.Update(tick("BTCUSDT", 110, 1, base.Add(30*time.Second)))

	st, ok := tr.Symbol("BTCUSDT")
	if !ok {
		t.Fatal("expected symbol to exist")
	}
	changePct, low, high, ok := st.PriceChange(time.Minute)
	if !ok {
		t.Fatal("expected price change to be computable")
	}
	if changePct <= 0 {
		t.Fatalf("expected positive change, got %v", changePct)
	}
	if low != 100 || high != 110 {
		t.Fatalf("expected low=100 high=110, got low=%v high=%v", low, high)
	}
}

func TestVolumeRatioExcludesCurrentTick(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		tr.Update(tick("ETHUSDT", 2000, 10, base.Add(time.Duration(i)*time.Second)))
	}
	tr.Update(tick("ETHUSDT", 2000, 100, base.Add(5*time.Second)))

	st, _ := tr.Symbol("ETHUSDT")
	ratio, ok := st.VolumeRatio(6)
	if !ok {
		t.Fatal("expected ratio to be computable")
	}
	if ratio != 10 {
		t.Fatalf("expected ratio=10 (100/10), got %v", ratio)
	}
}

func TestOIChange(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.UpdateOI("BTCUSDT", 1000, base)
	tr.UpdateOI("BTCUSDT", 1100, base.Add(time.Minute))

	st, _ := tr.Symbol("BTCUSDT")
	changePct, ok := st.OIChange(5 * time.Minute)
	if !ok {
		t.Fatal("expected OI change to be computable")
	}
	if changePct < 9.9 || changePct > 10.1 {
		t.Fatalf("expected ~10%% change, got %v", changePct)
	}
}

func TestSpotFuturesSpreadStaleness(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.UpdateSpot("BTCUSDT", 100, base)
	tr.Update(tick("BTCUSDT", 101, 1, base.Add(time.Hour)))

	st, _ := tr.Symbol("BTCUSDT")
	_, _, _, ok := st.SpotFuturesSpread(30 * time.Second)
	if ok {
		t.Fatal("expected stale spot data to be rejected")
	}
}

func TestPriceReversalTop(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []float64{100, 110, 120, 115, 105, 95}
	for i, p := range points {
		tr.Update(tick("BTCUSDT", p, 1, base.Add(time.Duration(i)*time.Minute)))
	}

	st, _ := tr.Symbol("BTCUSDT")
	rev, ok := st.PriceReversal(5 * time.Minute)
	if !ok {
		t.Fatal("expected a reversal to be detected")
	}
	if rev.Type != ReversalTop {
		t.Fatalf("expected top reversal, got %v", rev.Type)
	}
}

func TestCleanupOlderThanEvictsStaleSymbols(t *testing.T) {
	tr := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Update(tick("BTCUSDT", 100, 1, base))

	// Advance the wall clock far beyond maxAge by directly aging the entry.
	st, _ := tr.Symbol("BTCUSDT")
	st.mu.Lock()
	st.lastUpdate = base
	st.mu.Unlock()

	tr.CleanupOlderThan(time.Nanosecond)

	if _, ok := tr.Symbol("BTCUSDT"); ok {
		t.Fatal("expected stale symbol to be evicted")
	}
}
