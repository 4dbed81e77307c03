package risk

import (
	"testing"
	"time"
)

func TestLatencyFlagTriggersFilter(t *testing.T) {
	f := New(DefaultConfig())
	now := time.Now()
	in := Input{
		Symbol:    "BTCUSDT",
		Now:       now,
		HasTicker: true,
		TickerTS:  now.Add(-3 * time.Second),
		WSRecvTS:  now,
	}
	result, filtered, reason, err := f.Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filtered {
		t.Fatal("expected high-latency alert to be filtered")
	}
	if reason != "latency" {
		t.Fatalf("expected reason=latency, got %s", reason)
	}
	if result.WSLatencyMs <= DefaultConfig().MaxWSLatencyMs {
		t.Fatalf("expected latency above threshold, got %v", result.WSLatencyMs)
	}
}

func TestFakeSignalDetectsSpikeAndRevert(t *testing.T) {
	f := New(DefaultConfig())
	now := time.Now()
	prices := []float64{100, 105, 110, 105, 101} // rise to 110 then revert close to start
	in := Input{Symbol: "BTCUSDT", Now: now, RecentPrices: prices}

	result, filtered, reason, err := f.Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsFake {
		t.Fatal("expected fake signal to be flagged")
	}
	if !filtered {
		t.Fatal("expected fake signal to cause filtering")
	}
	if reason == "" {
		t.Fatal("expected a non-empty filter reason")
	}
}

func TestWallManipulationRequiresBothAppearAndDisappear(t *testing.T) {
	f := New(DefaultConfig())
	now := time.Now()
	var events []WallEvent
	for i := 0; i < 4; i++ {
		events = append(events, WallEvent{TS: now, Kind: WallAppear})
		events = append(events, WallEvent{TS: now, Kind: WallDisappear})
	}
	in := Input{Symbol: "BTCUSDT", Now: now, WallEvents: events}
	result, filtered, _, err := f.Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.WallManipulation || !filtered {
		t.Fatal("expected wall manipulation to be flagged with matching appear/disappear counts")
	}
}

func TestVolumeManipulationFlagsIsolatedSpike(t *testing.T) {
	f := New(DefaultConfig())
	now := time.Now()
	volumes := make([]float64, 20)
	for i := range volumes {
		volumes[i] = 10
	}
	volumes[10] = 1000 // isolated spike with no before/after follow-through
	in := Input{Symbol: "BTCUSDT", Now: now, RecentVolumes: volumes}

	result, filtered, _, err := f.Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.VolumeManipulation || !filtered {
		t.Fatal("expected isolated volume spike to be flagged")
	}
}

func TestCleanAlertIsNotFiltered(t *testing.T) {
	f := New(DefaultConfig())
	now := time.Now()
	in := Input{
		Symbol:       "BTCUSDT",
		Now:          now,
		HasTicker:    true,
		TickerTS:     now,
		WSRecvTS:     now,
		HasDepth:     true,
		SpreadPct:    0.01,
		BidDepth10:   1_000_000,
		AskDepth10:   1_000_000,
		RecentPrices: []float64{100, 100.1, 100.2, 100.1, 100.3},
	}
	_, filtered, _, err := f.Evaluate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filtered {
		t.Fatal("expected a clean alert to pass through unfiltered")
	}
}
