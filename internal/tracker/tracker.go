// Package tracker owns the per-symbol rolling state the detectors and
// feature engine read from: price/volume history, open-interest history,
// spot-price history and the latest scalar snapshot.
package tracker

import (
	"sync"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

const (
	priceRingCapacity = 1000
	auxRingCapacity   = 100
)

type oiPoint struct {
	ts time.Time
	oi float64
}

type spotPoint struct {
	ts    time.Time
	price float64
}

// SymbolTracker holds one symbol's rolling windows behind its own lock so a
// single writer goroutine per symbol never blocks readers on other symbols.
type SymbolTracker struct {
	mu sync.RWMutex

	symbol string

	priceHistory []model.PricePoint
	oiHistory    []oiPoint
	spotHistory  []spotPoint

	latestPrice  float64
	latestOI     float64
	lastUpdate   time.Time
}

func newSymbolTracker(symbol string) *SymbolTracker {
	return &SymbolTracker{symbol: symbol}
}

// Update appends a price point from a Ticker and refreshes cached scalars.
func (s *SymbolTracker) Update(t model.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.priceHistory = append(s.priceHistory, model.PricePoint{Price: t.Price, Volume: t.BaseVolume, TS: t.TS})
	if len(s.priceHistory) > priceRingCapacity {
		s.priceHistory = s.priceHistory[len(s.priceHistory)-priceRingCapacity:]
	}
	s.latestPrice = t.Price
	s.lastUpdate = t.TS
}

// UpdateOI appends an open-interest observation.
func (s *SymbolTracker) UpdateOI(oi float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.oiHistory = append(s.oiHistory, oiPoint{ts: ts, oi: oi})
	if len(s.oiHistory) > auxRingCapacity {
		s.oiHistory = s.oiHistory[len(s.oiHistory)-auxRingCapacity:]
	}
	s.latestOI = oi
}

// UpdateSpot appends a spot-price observation.
func (s *SymbolTracker) UpdateSpot(price float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spotHistory = append(s.spotHistory, spotPoint{ts: ts, price: price})
	if len(s.spotHistory) > auxRingCapacity {
		s.spotHistory = s.spotHistory[len(s.spotHistory)-auxRingCapacity:]
	}
}

// LatestPrice returns the most recently observed price.
func (s *SymbolTracker) LatestPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestPrice
}

// LatestOI returns the most recently observed open interest.
func (s *SymbolTracker) LatestOI() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestOI
}

// LastUpdate returns the timestamp of the most recent price tick.
func (s *SymbolTracker) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// OIValue returns currentPrice * latestOI.
func (s *SymbolTracker) OIValue() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestPrice * s.latestOI
}

// PriceChange computes the percent change from the first point within
// window of "now" to the latest point, plus the window's low/high.
func (s *SymbolTracker) PriceChange(window time.Duration) (changePct, low, high float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.priceHistory) == 0 {
		return 0, 0, 0, false
	}
	now := s.priceHistory[len(s.priceHistory)-1].TS
	cutoff := now.Add(-window)

	anchorIdx := -1
	low, high = s.priceHistory[len(s.priceHistory)-1].Price, s.priceHistory[len(s.priceHistory)-1].Price
	for i := len(s.priceHistory) - 1; i >= 0; i-- {
		p := s.priceHistory[i]
		if p.TS.Before(cutoff) {
			break
		}
		anchorIdx = i
		if p.Price < low {
			low = p.Price
		}
		if p.Price > high {
			high = p.Price
		}
	}
	if anchorIdx < 0 {
		return 0, 0, 0, false
	}
	anchor := s.priceHistory[anchorIdx].Price
	current := s.priceHistory[len(s.priceHistory)-1].Price
	if anchor == 0 {
		return 0, 0, 0, false
	}
	return (current - anchor) / anchor * 100, low, high, true
}

// VolumeRatio divides the latest tick's volume by the mean of the preceding
// lookbackPeriods-1 ticks' volumes (current excluded from the average).
func (s *SymbolTracker) VolumeRatio(lookbackPeriods int) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if lookbackPeriods <= 1 || len(s.priceHistory) < lookbackPeriods {
		return 0, false
	}
	window := s.priceHistory[len(s.priceHistory)-lookbackPeriods:]
	current := window[len(window)-1].Volume
	var sum float64
	for _, p := range window[:len(window)-1] {
		sum += p.Volume
	}
	mean := sum / float64(len(window)-1)
	if mean == 0 {
		return 0, false
	}
	return current / mean, true
}

// OIChange computes the percent change in OI over window.
func (s *SymbolTracker) OIChange(window time.Duration) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.oiHistory) == 0 {
		return 0, false
	}
	now := s.oiHistory[len(s.oiHistory)-1].ts
	cutoff := now.Add(-window)

	anchorIdx := -1
	for i := len(s.oiHistory) - 1; i >= 0; i-- {
		if s.oiHistory[i].ts.Before(cutoff) {
			break
		}
		anchorIdx = i
	}
	if anchorIdx < 0 {
		return 0, false
	}
	anchor := s.oiHistory[anchorIdx].oi
	current := s.oiHistory[len(s.oiHistory)-1].oi
	if anchor == 0 {
		return 0, false
	}
	return (current - anchor) / anchor * 100, true
}

// SpotFuturesSpread returns (spreadPct, spot, futures). Stale spot data
// (older than 2x spreadWindow relative to the latest futures tick) yields
// not-ok.
func (s *SymbolTracker) SpotFuturesSpread(spreadWindow time.Duration) (spreadPct, spot, futures float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.spotHistory) == 0 || len(s.priceHistory) == 0 {
		return 0, 0, 0, false
	}
	lastSpot := s.spotHistory[len(s.spotHistory)-1]
	lastFutures := s.priceHistory[len(s.priceHistory)-1]

	if lastFutures.TS.Sub(lastSpot.ts) > 2*spreadWindow {
		return 0, 0, 0, false
	}
	futures = lastFutures.Price
	spot = lastSpot.price
	if futures == 0 {
		return 0, 0, 0, false
	}
	return (spot - futures) / futures * 100, spot, futures, true
}

// ReversalType enumerates the extremum direction of a detected reversal.
type ReversalType string

const (
	ReversalTop    ReversalType = "top"
	ReversalBottom ReversalType = "bottom"
)

// Reversal is the result of PriceReversal.
type Reversal struct {
	Type       ReversalType
	StartPrice float64
	High       float64
	Low        float64
	Current    float64
	RisePct    float64
	FallPct    float64
	ExtremeTS  time.Time
}

// PriceReversal looks for a rise-then-fall ("top") or fall-then-rise
// ("bottom") pattern within window. The extremum must fall in the first
// half of the window and both legs must be strictly nonzero in the
// reversal direction.
func (s *SymbolTracker) PriceReversal(window time.Duration) (Reversal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.priceHistory) == 0 {
		return Reversal{}, false
	}
	now := s.priceHistory[len(s.priceHistory)-1].TS
	windowStart := now.Add(-window)
	windowMid := windowStart.Add(window / 2)

	var inWindow []model.PricePoint
	for i := len(s.priceHistory) - 1; i >= 0; i-- {
		p := s.priceHistory[i]
		if p.TS.Before(windowStart) {
			break
		}
		inWindow = append([]model.PricePoint{p}, inWindow...)
	}
	if len(inWindow) < 2 {
		return Reversal{}, false
	}

	start := inWindow[0]
	current := inWindow[len(inWindow)-1]

	highIdx, lowIdx := 0, 0
	for i, p := range inWindow {
		if p.Price > inWindow[highIdx].Price {
			highIdx = i
		}
		if p.Price < inWindow[lowIdx].Price {
			lowIdx = i
		}
	}
	high := inWindow[highIdx]
	low := inWindow[lowIdx]

	// Top: rise to a high within the first half, then fall to current.
	if high.TS.After(windowStart) && !high.TS.After(windowMid) {
		rise := (high.Price - start.Price) / start.Price * 100
		fall := (high.Price - current.Price) / high.Price * 100
		if rise > 0 && fall > 0 {
			return Reversal{
				Type: ReversalTop, StartPrice: start.Price, High: high.Price, Low: low.Price,
				Current: current.Price, RisePct: rise, FallPct: fall, ExtremeTS: high.TS,
			}, true
		}
	}

	// Bottom: fall to a low within the first half, then rise to current.
	if low.TS.After(windowStart) && !low.TS.After(windowMid) {
		fall := (start.Price - low.Price) / start.Price * 100
		rise := (current.Price - low.Price) / low.Price * 100
		if fall > 0 && rise > 0 {
			return Reversal{
				Type: ReversalBottom, StartPrice: start.Price, High: high.Price, Low: low.Price,
				Current: current.Price, RisePct: rise, FallPct: fall, ExtremeTS: low.TS,
			}, true
		}
	}

	return Reversal{}, false
}

// Prices returns a copy of the price-only series (oldest first), used by
// the feature engine / indicator calculator.
func (s *SymbolTracker) Prices() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.priceHistory))
	for i, p := range s.priceHistory {
		out[i] = p.Price
	}
	return out
}

// PricesInWindow returns prices with timestamps in [start,end], ascending.
func (s *SymbolTracker) PricesInWindow(start, end time.Time) []model.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.PricePoint
	for _, p := range s.priceHistory {
		if !p.TS.Before(start) && !p.TS.After(end) {
			out = append(out, p)
		}
	}
	return out
}

// PriceAt returns the price point closest to ts within toleranceSec, or
// false if none is within tolerance.
func (s *SymbolTracker) PriceAt(ts time.Time, toleranceSec float64) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := -1
	bestDiff := toleranceSec
	for i, p := range s.priceHistory {
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
	return s.priceHistory[best].Price, true
}

// Volumes returns a copy of the per-tick volume series (oldest first).
func (s *SymbolTracker) Volumes() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.priceHistory))
	for i, p := range s.priceHistory {
		out[i] = p.Volume
	}
	return out
}

// cleanupOlderThan drops price/OI/spot entries older than maxAge relative
// to now from the front of each ring.
func (s *SymbolTracker) cleanupOlderThan(now time.Time, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-maxAge)

	i := 0
	for i < len(s.priceHistory) && s.priceHistory[i].TS.Before(cutoff) {
		i++
	}
	s.priceHistory = s.priceHistory[i:]

	j := 0
	for j < len(s.oiHistory) && s.oiHistory[j].ts.Before(cutoff) {
		j++
	}
	s.oiHistory = s.oiHistory[j:]

	k := 0
	for k < len(s.spotHistory) && s.spotHistory[k].ts.Before(cutoff) {
		k++
	}
	s.spotHistory = s.spotHistory[k:]
}

func (s *SymbolTracker) isStale(now time.Time, maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate.IsZero() || now.Sub(s.lastUpdate) > maxAge
}

// Tracker is the sharded, per-symbol rolling state store. A new
// SymbolTracker is created lazily on first observation.
type Tracker struct {
	mu       sync.RWMutex
	symbols  map[string]*SymbolTracker
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{symbols: make(map[string]*SymbolTracker)}
}

// symbolTracker returns (creating if necessary) the SymbolTracker for
// symbol.
func (t *Tracker) symbolTracker(symbol string) *SymbolTracker {
	t.mu.RLock()
	st, ok := t.symbols[symbol]
	t.mu.RUnlock()
	if ok {
		return st
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.symbols[symbol]; ok {
		return st
	}
	st = newSymbolTracker(symbol)
	t.symbols[symbol] = st
	return st
}

// Update routes a Ticker to its symbol's tracker, creating it if needed.
func (t *Tracker) Update(tick model.Ticker) {
	t.symbolTracker(tick.Symbol).Update(tick)
}

// UpdateOI routes an OI observation to its symbol's tracker.
func (t *Tracker) UpdateOI(symbol string, oi float64, ts time.Time) {
	t.symbolTracker(symbol).UpdateOI(oi, ts)
}

// UpdateSpot routes a spot observation to its symbol's tracker.
func (t *Tracker) UpdateSpot(symbol string, price float64, ts time.Time) {
	t.symbolTracker(symbol).UpdateSpot(price, ts)
}

// Symbol returns the SymbolTracker for symbol if it has been observed.
func (t *Tracker) Symbol(symbol string) (*SymbolTracker, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.symbols[symbol]
	return st, ok
}

// AllSymbols returns every symbol currently tracked.
func (t *Tracker) AllSymbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.symbols))
	for s := range t.symbols {
		out = append(out, s)
	}
	return out
}

// CleanupOlderThan evicts ring entries older than maxAge across all
// symbols, and drops symbols that have had no update for maxAge at all.
func (t *Tracker) CleanupOlderThan(maxAge time.Duration) {
	now := time.Now()

	t.mu.RLock()
	trackers := make([]*SymbolTracker, 0, len(t.symbols))
	for _, st := range t.symbols {
		trackers = append(trackers, st)
	}
	t.mu.RUnlock()

	var stale []string
	for _, st := range trackers {
		st.cleanupOlderThan(now, maxAge)
		if st.isStale(now, maxAge) {
			stale = append(stale, st.symbol)
		}
	}

	if len(stale) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sym := range stale {
		delete(t.symbols, sym)
	}
}
