package detector

import (
	"testing"
	"time"

	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/tracker"
)

func tiers() []model.TierConfig {
	return []model.TierConfig{
		{MinOIValue: 0, PriceThreshold: 5, VolumeThreshold: 3, OIThreshold: 5, SpreadThreshold: 1, Label: "small"},
		{MinOIValue: 1_000_000, PriceThreshold: 3, VolumeThreshold: 2, OIThreshold: 3, SpreadThreshold: 0.5, Label: "large"},
	}
}

func baseConfig() Config {
	return Config{
		Tiers:          tiers(),
		Filter:         Filter{Mode: FilterModeNone},
		Windows:        DefaultWindows(),
		Cooldown:       time.Minute,
		VolumeLookback: 6,
	}
}

func TestPriceChangeDetectorFiresAboveThreshold(t *testing.T) {
	tr := tracker.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Update(model.Ticker{Symbol: "BTCUSDT", Price: 100, BaseVolume: 1, TS: base})
	tr.Update(model.Ticker{Symbol: "BTCUSDT", Price: 110, BaseVolume: 1, TS: base.Add(time.Minute)})
	st, _ := tr.Symbol("BTCUSDT")

	d := NewDispatcher(baseConfig())
	events := d.Evaluate("BTCUSDT", st, base.Add(time.Minute))

	found := false
	for _, e := range events {
		if e.Kind == model.KindPriceChange {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a PriceChange event")
	}
}

func TestCooldownSuppressesRepeatedFire(t *testing.T) {
	c := NewCooldown()
	now := time.Now()
	if !c.TryFire("BTCUSDT", model.KindPriceChange, now, time.Minute) {
		t.Fatal("expected first fire to succeed")
	}
	if c.TryFire("BTCUSDT", model.KindPriceChange, now.Add(10*time.Second), time.Minute) {
		t.Fatal("expected second fire within cooldown to be suppressed")
	}
	if !c.TryFire("BTCUSDT", model.KindPriceChange, now.Add(2*time.Minute), time.Minute) {
		t.Fatal("expected fire after cooldown elapses to succeed")
	}
}

func TestFilterBlacklistBlocksSymbol(t *testing.T) {
	f := Filter{Mode: FilterModeBlacklist, Symbols: map[string]struct{}{"BTCUSDT": {}}}
	if f.Allows("BTCUSDT") {
		t.Fatal("expected blacklisted symbol to be blocked")
	}
	if !f.Allows("ETHUSDT") {
		t.Fatal("expected non-blacklisted symbol to be allowed")
	}
}

func TestSelectTierFirstMatchWins(t *testing.T) {
	d := NewDispatcher(baseConfig())
	tier, ok := selectTier(d.tiers, 2_000_000)
	if !ok || tier.Label != "large" {
		t.Fatalf("expected large tier, got %+v ok=%v", tier, ok)
	}
	tier, ok = selectTier(d.tiers, 500)
	if !ok || tier.Label != "small" {
		t.Fatalf("expected small tier, got %+v ok=%v", tier, ok)
	}
}

func TestNoTierMatchSuppressesAllDetectors(t *testing.T) {
	cfg := baseConfig()
	cfg.Tiers = []model.TierConfig{{MinOIValue: 1_000_000_000, Label: "whale"}}
	d := NewDispatcher(cfg)

	tr := tracker.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Update(model.Ticker{Symbol: "BTCUSDT", Price: 100, BaseVolume: 1, TS: base})
	tr.Update(model.Ticker{Symbol: "BTCUSDT", Price: 200, BaseVolume: 1, TS: base.Add(time.Minute)})
	st, _ := tr.Symbol("BTCUSDT")

	events := d.Evaluate("BTCUSDT", st, base.Add(time.Minute))
	if len(events) != 0 {
		t.Fatalf("expected no events when no tier matches, got %d", len(events))
	}
}
