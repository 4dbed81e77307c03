// Package orderbook tracks per-symbol DepthSnapshots and diffs successive
// snapshots to detect resting walls, bid/ask imbalance and sweeps.
package orderbook

import (
	"sync"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// Config holds the tunables that drive wall/imbalance/sweep detection.
type Config struct {
	DepthLevels          int
	WallValueThreshold   float64
	WallRatioThreshold   float64
	WallDistanceMaxPct   float64
	ImbalanceThreshold   float64
	ImbalanceDepthLevels int
	SweepValueThreshold  float64
	SweepQtyRatioMax     float64 // vanished qty must drop below this fraction of prior qty
	Cooldown             time.Duration
}

// DefaultConfig mirrors the thresholds used against a 20-level book.
func DefaultConfig() Config {
	return Config{
		DepthLevels:          20,
		WallValueThreshold:   100_000,
		WallRatioThreshold:   3.0,
		WallDistanceMaxPct:   2.0,
		ImbalanceThreshold:   0.6,
		ImbalanceDepthLevels: 20,
		SweepValueThreshold:  50_000,
		SweepQtyRatioMax:     0.2,
		Cooldown:             time.Minute,
	}
}

type wallKey struct {
	side  model.OrderSide
	price float64
}

// SymbolBook holds the last snapshot and tracked walls for one symbol.
type SymbolBook struct {
	mu       sync.Mutex
	last     model.DepthSnapshot
	walls    map[wallKey]model.WallState
	cooldown map[model.AnomalyKind]map[model.OrderSide]time.Time
}

func newSymbolBook() *SymbolBook {
	return &SymbolBook{
		walls:    make(map[wallKey]model.WallState),
		cooldown: make(map[model.AnomalyKind]map[model.OrderSide]time.Time),
	}
}

func (b *SymbolBook) tryFire(kind model.AnomalyKind, side model.OrderSide, now time.Time, cooldown time.Duration) bool {
	sides, ok := b.cooldown[kind]
	if !ok {
		sides = make(map[model.OrderSide]time.Time)
		b.cooldown[kind] = sides
	}
	if last, ok := sides[side]; ok && now.Sub(last) < cooldown {
		return false
	}
	sides[side] = now
	return true
}

// Monitor tracks order books across symbols and emits AnomalyEvents for
// walls, imbalance and sweeps.
type Monitor struct {
	cfg Config

	mu    sync.RWMutex
	books map[string]*SymbolBook
}

// NewMonitor returns a Monitor configured with cfg.
func NewMonitor(cfg Config) *Monitor {
	return &Monitor{cfg: cfg, books: make(map[string]*SymbolBook)}
}

func (m *Monitor) book(symbol string) *SymbolBook {
	m.mu.RLock()
	b, ok := m.books[symbol]
	m.mu.RUnlock()
	if ok {
		return b
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[symbol]; ok {
		return b
	}
	b = newSymbolBook()
	m.books[symbol] = b
	return b
}

func avgValue(levels []model.DepthLevel, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += levels[i].Price * levels[i].Qty
	}
	return sum / float64(n)
}

func distancePct(price, mid float64) float64 {
	if mid == 0 {
		return 0
	}
	d := (price - mid) / mid * 100
	if d < 0 {
		d = -d
	}
	return d
}

// Process ingests a new DepthSnapshot for its symbol, diffs it against the
// previously tracked walls, and returns any AnomalyEvents detected.
func (m *Monitor) Process(snap model.DepthSnapshot) []model.AnomalyEvent {
	b := m.book(snap.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	mid, ok := snap.MidPrice()
	if !ok {
		b.last = snap
		return nil
	}

	n := m.cfg.DepthLevels
	avgBid := avgValue(snap.Bids, n)
	avgAsk := avgValue(snap.Asks, n)

	currentWalls := make(map[wallKey]model.WallState)
	m.collectWalls(snap.Symbol, snap.Bids, model.SideBid, n, mid, avgBid, snap.TS, currentWalls)
	m.collectWalls(snap.Symbol, snap.Asks, model.SideAsk, n, mid, avgAsk, snap.TS, currentWalls)

	var events []model.AnomalyEvent
	events = append(events, m.detectNewWalls(b, snap, currentWalls)...)
	events = append(events, m.detectImbalance(b, snap)...)
	events = append(events, m.detectSweeps(b, snap, currentWalls)...)

	b.walls = currentWalls
	b.last = snap
	return events
}

func (m *Monitor) collectWalls(symbol string, levels []model.DepthLevel, side model.OrderSide, n int, mid, avg float64, ts time.Time, out map[wallKey]model.WallState) {
	if n > len(levels) {
		n = len(levels)
	}
	for i := 0; i < n; i++ {
		lvl := levels[i]
		value := lvl.Price * lvl.Qty
		if distancePct(lvl.Price, mid) > m.cfg.WallDistanceMaxPct {
			continue
		}
		if value < m.cfg.WallValueThreshold {
			continue
		}
		if avg > 0 && value < m.cfg.WallRatioThreshold*avg {
			continue
		}
		key := wallKey{side: side, price: lvl.Price}
		out[key] = model.WallState{
			Symbol: symbol, Side: side, Price: lvl.Price, Qty: lvl.Qty, Value: value,
			FirstSeen: ts, LastSeen: ts,
		}
	}
}

// DepthInfo returns the most recent DepthSnapshot processed for symbol.
// Satisfies the getDepthInfo capability FeatureEngine depends on.
func (m *Monitor) DepthInfo(symbol string) (model.DepthSnapshot, bool) {
	m.mu.RLock()
	b, ok := m.books[symbol]
	m.mu.RUnlock()
	if !ok {
		return model.DepthSnapshot{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last.Symbol == "" {
		return model.DepthSnapshot{}, false
	}
	return b.last, true
}

// TrackedWalls returns the walls currently tracked for symbol. Satisfies
// the getTrackedWalls capability FeatureEngine depends on.
func (m *Monitor) TrackedWalls(symbol string) []model.WallState {
	m.mu.RLock()
	b, ok := m.books[symbol]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.WallState, 0, len(b.walls))
	for _, w := range b.walls {
		out = append(out, w)
	}
	return out
}

func (m *Monitor) detectNewWalls(b *SymbolBook, snap model.DepthSnapshot, current map[wallKey]model.WallState) []model.AnomalyEvent {
	var events []model.AnomalyEvent
	for key, w := range current {
		if prior, existed := b.walls[key]; existed {
			w.FirstSeen = prior.FirstSeen
			current[key] = w
			continue
		}
		if !b.tryFire(model.KindOrderBookWall, key.side, snap.TS, m.cfg.Cooldown) {
			continue
		}
		events = append(events, model.AnomalyEvent{
			Symbol: snap.Symbol, Kind: model.KindOrderBookWall, TS: snap.TS,
			CurrentPrice: key.price, ChangePct: w.Value, Threshold: m.cfg.WallValueThreshold,
			Extras: map[string]any{"side": string(key.side), "price": key.price, "qty": w.Qty, "value": w.Value},
		})
	}
	return events
}

func (m *Monitor) detectImbalance(b *SymbolBook, snap model.DepthSnapshot) []model.AnomalyEvent {
	ratio, ok := snap.ImbalanceRatio(m.cfg.ImbalanceDepthLevels)
	if !ok {
		return nil
	}
	abs := ratio
	if abs < 0 {
		abs = -abs
	}
	if abs < m.cfg.ImbalanceThreshold {
		return nil
	}
	side := model.SideBid
	if ratio < 0 {
		side = model.SideAsk
	}
	if !b.tryFire(model.KindOrderBookImbalance, side, snap.TS, m.cfg.Cooldown) {
		return nil
	}
	return []model.AnomalyEvent{{
		Symbol: snap.Symbol, Kind: model.KindOrderBookImbalance, TS: snap.TS,
		ChangePct: ratio, Threshold: m.cfg.ImbalanceThreshold,
		Extras: map[string]any{"side": string(side)},
	}}
}

func (m *Monitor) detectSweeps(b *SymbolBook, snap model.DepthSnapshot, current map[wallKey]model.WallState) []model.AnomalyEvent {
	var events []model.AnomalyEvent
	for key, prior := range b.walls {
		curQty := 0.0
		if cur, ok := current[key]; ok {
			curQty = cur.Qty
		}
		if prior.Qty == 0 {
			continue
		}
		ratio := curQty / prior.Qty
		if ratio >= m.cfg.SweepQtyRatioMax {
			continue
		}
		if prior.Value < m.cfg.SweepValueThreshold {
			continue
		}
		if !b.tryFire(model.KindOrderBookSweep, key.side, snap.TS, m.cfg.Cooldown) {
			continue
		}
		events = append(events, model.AnomalyEvent{
			Symbol: snap.Symbol, Kind: model.KindOrderBookSweep, TS: snap.TS,
			CurrentPrice: key.price, ChangePct: prior.Value, Threshold: m.cfg.SweepValueThreshold,
			Extras: map[string]any{"side": string(key.side), "price": key.price, "priorValue": prior.Value},
		})
	}
	return events
}
