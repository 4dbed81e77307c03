package label

import (
	"testing"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// fakeSource is a simple in-memory PriceSource/UnlabeledStore for tests.
type fakeSource struct {
	points map[string][]model.PricePoint
	saved  []model.Label
}

func newFakeSource() *fakeSource {
	return &fakeSource{points: make(map[string][]model.PricePoint)}
}

func (f *fakeSource) add(symbol string, ts time.Time, price float64) {
	f.points[symbol] = append(f.points[symbol], model.PricePoint{Price: price, TS: ts})
}

func (f *fakeSource) PriceAt(symbol string, ts time.Time, toleranceSec float64) (float64, bool) {
	best := -1
	bestDiff := toleranceSec
	for i, p := range f.points[symbol] {
		diff := p.TS.Sub(ts).Seconds()
		if diff < 0 {
			diff = -diff
		}
		if diff <= bestDiff {
			bestDiff = diff
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return f.points[symbol][best].Price, true
}

func (f *fakeSource) PricesInWindow(symbol string, start, end time.Time) []model.PricePoint {
	var out []model.PricePoint
	for _, p := range f.points[symbol] {
		if !p.TS.Before(start) && !p.TS.After(end) {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeSource) UnlabeledFeatures(symbol string, minAge time.Duration, limit int) ([]model.FeatureVector, error) {
	return nil, nil
}

func (f *fakeSource) SaveLabel(l model.Label) error {
	f.saved = append(f.saved, l)
	return nil
}

func TestTryGenerateRespectsDelayGate(t *testing.T) {
	src := newFakeSource()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src.add("BTCUSDT", base, 100)
	src.add("BTCUSDT", base.Add(30*time.Minute), 110)

	g := New(src, DefaultConfig())
	g.Register(model.FeatureVector{Symbol: "BTCUSDT", TS: base, Price: 100})

	labels, err := g.TryGenerate("BTCUSDT", base.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) != 0 {
		t.Fatal("expected no labels before maxLabelWindow elapses")
	}
	if g.PendingCount("BTCUSDT") != 1 {
		t.Fatal("expected the entry to remain pending")
	}

	labels, err = g.TryGenerate("BTCUSDT", base.Add(31*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) != 1 {
		t.Fatalf("expected one label after maxLabelWindow elapses, got %d", len(labels))
	}
	if labels[0].Return30m <= 0 {
		t.Fatalf("expected positive 30m return, got %v", labels[0].Return30m)
	}
	if !labels[0].LabelGeneratedAt.After(base.Add(maxLabelWindow)) {
		t.Fatal("label invariant violated: generatedAt must be after featureTs+maxLabelWindow")
	}
}

func TestRegisterPrunesOverCapacity(t *testing.T) {
	src := newFakeSource()
	g := New(src, Config{MaxPendingPerSymbol: 2, Buffer: time.Minute, DirectionThreshold: 0.1, PriceToleranceSec: 5})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		g.Register(model.FeatureVector{Symbol: "ETHUSDT", TS: base.Add(time.Duration(i) * time.Second), Price: 2000})
	}
	if g.PendingCount("ETHUSDT") != 2 {
		t.Fatalf("expected queue capped at 2, got %d", g.PendingCount("ETHUSDT"))
	}
}

func TestReconcilerBackfillsLabels(t *testing.T) {
	src := newFakeSource()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src.add("BTCUSDT", base, 100)
	src.add("BTCUSDT", base.Add(30*time.Minute), 105)

	store := &reconcilerTestStore{fakeSource: src, features: []model.FeatureVector{{Symbol: "BTCUSDT", TS: base, Price: 100}}}
	r := NewReconciler(store, DefaultConfig())

	n, err := r.Run("BTCUSDT", base.Add(31*time.Minute), 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 label backfilled, got %d", n)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 label saved, got %d", len(store.saved))
	}
}

type reconcilerTestStore struct {
	*fakeSource
	features []model.FeatureVector
}

func (s *reconcilerTestStore) UnlabeledFeatures(symbol string, minAge time.Duration, limit int) ([]model.FeatureVector, error) {
	return s.features, nil
}
