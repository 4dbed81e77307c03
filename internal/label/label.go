// Package label implements delay-gated label generation: a feature vector
// observed at time t only receives its supervised labels once enough wall
// clock time has passed to observe the future prices the labels describe.
// No code path may compute a label using data from before it was legally
// observable.
package label

import (
	"fmt"
	"sync"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// Windows are the return horizons a label covers, in ascending order. The
// last entry (1800s) is also the maxLabelWindow gating generation.
var Windows = []time.Duration{
	60 * time.Second,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

const maxLabelWindow = 30 * time.Minute

// PriceSource resolves a price at or near a timestamp, first from in-memory
// history and falling back to persisted storage.
type PriceSource interface {
	PriceAt(symbol string, ts time.Time, toleranceSec float64) (float64, bool)
	PricesInWindow(symbol string, start, end time.Time) []model.PricePoint
}

type pending struct {
	fv model.FeatureVector
}

// Generator holds per-symbol ordered queues of pending feature vectors
// awaiting label generation.
type Generator struct {
	mu                  sync.Mutex
	queues              map[string][]pending
	maxPendingPerSymbol int
	buffer              time.Duration
	directionThreshold  float64
	priceTolerance      float64

	source PriceSource
}

// Config tunes Generator behavior.
type Config struct {
	MaxPendingPerSymbol int
	Buffer              time.Duration // extra slack beyond maxLabelWindow before an entry is dropped unlabeled
	DirectionThreshold  float64       // percent threshold below which direction is Flat
	PriceToleranceSec   float64
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxPendingPerSymbol: 500,
		Buffer:              time.Minute,
		DirectionThreshold:  0.1,
		PriceToleranceSec:   5,
	}
}

// New returns a Generator backed by source.
func New(source PriceSource, cfg Config) *Generator {
	return &Generator{
		queues:              make(map[string][]pending),
		maxPendingPerSymbol: cfg.MaxPendingPerSymbol,
		buffer:              cfg.Buffer,
		directionThreshold:  cfg.DirectionThreshold,
		priceTolerance:      cfg.PriceToleranceSec,
		source:              source,
	}
}

// Register enqueues a feature vector awaiting eventual labeling, pruning
// entries older than maxWait or beyond the per-symbol cap (drop oldest).
func (g *Generator) Register(fv model.FeatureVector) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q := g.queues[fv.Symbol]
	q = append(q, pending{fv: fv})

	maxWait := maxLabelWindow + g.buffer
	now := fv.TS
	i := 0
	for i < len(q) && now.Sub(q[i].fv.TS) > maxWait {
		i++
	}
	q = q[i:]

	if len(q) > g.maxPendingPerSymbol {
		q = q[len(q)-g.maxPendingPerSymbol:]
	}
	g.queues[fv.Symbol] = q
}

// direction maps a percent return to a signed Direction using threshold.
func direction(returnPct, threshold float64) model.Direction {
	if returnPct > threshold {
		return model.DirectionUp
	}
	if returnPct < -threshold {
		return model.DirectionDown
	}
	return model.DirectionFlat
}

// TryGenerate walks symbol's pending queue in order and attempts to
// compute a label for every entry that has aged past maxLabelWindow.
// Entries that are not yet old enough remain untouched and are not
// reordered. Returns the labels produced this call.
func (g *Generator) TryGenerate(symbol string, now time.Time) ([]model.Label, error) {
	g.mu.Lock()
	q := append([]pending(nil), g.queues[symbol]...)
	g.mu.Unlock()

	var labels []model.Label
	var remaining []pending
	var consumed []time.Time

	for _, p := range q {
		if now.Sub(p.fv.TS) < maxLabelWindow {
			remaining = append(remaining, p)
			continue
		}
		lbl, ok, err := g.computeLabel(symbol, p.fv, now)
		if err != nil {
			return labels, err
		}
		if ok {
			labels = append(labels, lbl)
		}
		consumed = append(consumed, p.fv.TS)
	}

	if len(consumed) > 0 {
		g.mu.Lock()
		cur := g.queues[symbol]
		filtered := cur[:0]
		consumedSet := make(map[time.Time]struct{}, len(consumed))
		for _, ts := range consumed {
			consumedSet[ts] = struct{}{}
		}
		for _, p := range cur {
			if _, done := consumedSet[p.fv.TS]; done {
				continue
			}
			filtered = append(filtered, p)
		}
		g.queues[symbol] = filtered
		g.mu.Unlock()
	}

	return labels, nil
}

func (g *Generator) computeLabel(symbol string, fv model.FeatureVector, now time.Time) (model.Label, bool, error) {
	lbl := model.Label{Symbol: symbol, FeatureTS: fv.TS}

	returns := make([]float64, len(Windows))
	anyOK := false
	for i, w := range Windows {
		future, ok := g.source.PriceAt(symbol, fv.TS.Add(w), g.priceTolerance)
		if !ok || fv.Price == 0 {
			continue
		}
		returns[i] = (future - fv.Price) / fv.Price * 100
		anyOK = true
	}
	if !anyOK {
		return model.Label{}, false, nil
	}

	lbl.Return1m = returns[0]
	lbl.Return5m = returns[1]
	lbl.Return15m = returns[2]
	lbl.Return30m = returns[3]
	lbl.Direction5m = direction(returns[1], g.directionThreshold)
	lbl.Direction15m = direction(returns[2], g.directionThreshold)

	window := g.source.PricesInWindow(symbol, fv.TS, fv.TS.Add(5*time.Minute))
	maxProfit, maxDrawdown := 0.0, 0.0
	for _, p := range window {
		if fv.Price == 0 {
			continue
		}
		pct := (p.Price - fv.Price) / fv.Price * 100
		if pct > maxProfit {
			maxProfit = pct
		}
		if -pct > maxDrawdown {
			maxDrawdown = -pct
		}
	}
	lbl.MaxProfit5m = maxProfit
	lbl.MaxDrawdown5m = maxDrawdown
	lbl.LabelGeneratedAt = now

	if !lbl.LabelGeneratedAt.After(fv.TS.Add(maxLabelWindow)) {
		return model.Label{}, false, fmt.Errorf("label invariant violated for %s at %s: generated at %s is not after featureTs+maxLabelWindow", symbol, fv.TS, lbl.LabelGeneratedAt)
	}

	return lbl, true, nil
}

// PendingCount returns the number of entries awaiting generation for
// symbol, for diagnostics.
func (g *Generator) PendingCount(symbol string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queues[symbol])
}
