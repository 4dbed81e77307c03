package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/trading"
)

type fakeAccount struct {
	state     model.AccountState
	positions map[string]*trading.Position
}

func (f fakeAccount) State(now time.Time) model.AccountState           { return f.state }
func (f fakeAccount) Positions() map[string]*trading.Position { return f.positions }

type fakeTracker struct{ symbols []string }

func (f fakeTracker) AllSymbols() []string { return f.symbols }

func TestHandleAccountSnapshotReturnsState(t *testing.T) {
	acc := fakeAccount{state: model.AccountState{Balance: 10000, Equity: 10500}}
	srv := New(acc, fakeTracker{}, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var got model.AccountState
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got.Equity != 10500 {
		t.Fatalf("expected equity 10500, got %v", got.Equity)
	}
}

func TestHandleOpenPositionsFiltersBySymbol(t *testing.T) {
	acc := fakeAccount{positions: map[string]*trading.Position{
		"a": {Symbol: "BTCUSDT"},
		"b": {Symbol: "ETHUSDT"},
	}}
	srv := New(acc, fakeTracker{}, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/positions?symbol=BTCUSDT", nil)
	srv.Handler().ServeHTTP(rr, req)

	var got []*trading.Position
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "BTCUSDT" {
		t.Fatalf("expected only BTCUSDT position, got %+v", got)
	}
}

func TestHandleTradesWithoutStoreReturns503(t *testing.T) {
	srv := New(fakeAccount{}, fakeTracker{}, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a store, got %d", rr.Code)
	}
}

func TestHandleHealthReturnsHealthy(t *testing.T) {
	srv := New(fakeAccount{}, fakeTracker{}, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHandleSystemStatusReportsTrackedSymbols(t *testing.T) {
	srv := New(fakeAccount{}, fakeTracker{symbols: []string{"BTCUSDT", "ETHUSDT"}}, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	srv.Handler().ServeHTTP(rr, req)

	var got model.StatusSnapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got.TrackedSymbols != 2 {
		t.Fatalf("expected 2 tracked symbols, got %d", got.TrackedSymbols)
	}
}
