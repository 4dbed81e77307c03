package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentineld.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndQueryPriceSnapshot(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := s.SavePriceSnapshot("BTCUSDT", ts, 100, 1, 100); err != nil {
		t.Fatalf("unexpected error saving snapshot: %v", err)
	}

	price, ok := s.PriceAt("BTCUSDT", ts, 1)
	if !ok {
		t.Fatal("expected a price to be found within tolerance")
	}
	if price != 100 {
		t.Fatalf("expected price=100, got %v", price)
	}
}

func TestSaveFeatureIsIdempotentOnUniqueKey(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fv := model.FeatureVector{Symbol: "BTCUSDT", TS: ts, Price: 100}

	if err := s.SaveFeature(fv); err != nil {
		t.Fatalf("unexpected error saving feature: %v", err)
	}
	fv.Price = 200
	if err := s.SaveFeature(fv); err != nil {
		t.Fatalf("unexpected error re-saving feature: %v", err)
	}

	rows, err := s.ExportTrainingData(ExportFilter{Symbol: "BTCUSDT", Since: ts.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("unexpected error exporting training data: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no joined rows without a label, got %d", len(rows))
	}
}

func TestUnlabeledFeaturesExcludesLabeled(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fv := model.FeatureVector{Symbol: "BTCUSDT", TS: ts, Price: 100}
	if err := s.SaveFeature(fv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unlabeled, err := s.UnlabeledFeatures("BTCUSDT", 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unlabeled) != 1 {
		t.Fatalf("expected 1 unlabeled feature, got %d", len(unlabeled))
	}

	lbl := model.Label{Symbol: "BTCUSDT", FeatureTS: ts, LabelGeneratedAt: ts.Add(31 * time.Minute)}
	if err := s.SaveLabel(lbl); err != nil {
		t.Fatalf("unexpected error saving label: %v", err)
	}

	unlabeled, err = s.UnlabeledFeatures("BTCUSDT", 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unlabeled) != 0 {
		t.Fatalf("expected 0 unlabeled features after labeling, got %d", len(unlabeled))
	}
}

func TestSaveAccountStateUpsertsOnTimestamp(t *testing.T) {
	s := openTestStore(t)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	state := model.AccountState{TS: ts, Balance: 10000, Equity: 10000}
	if err := s.SaveAccountState(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state.Balance = 9000
	if err := s.SaveAccountState(state); err != nil {
		t.Fatalf("unexpected error on upsert: %v", err)
	}
}
