// Package detector turns Tracker state into AnomalyEvents by comparing
// per-kind magnitudes against tiered thresholds, subject to a filter mode
// and a per-(symbol,kind) cooldown.
package detector

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/tracker"
)

// FilterMode selects how Symbols is interpreted.
type FilterMode string

const (
	FilterModeNone      FilterMode = "none"
	FilterModeWhitelist FilterMode = "whitelist"
	FilterModeBlacklist FilterMode = "blacklist"
)

// Filter decides which symbols detectors are allowed to run against.
type Filter struct {
	Mode    FilterMode
	Symbols map[string]struct{}
}

// Allows reports whether symbol passes the filter.
func (f Filter) Allows(symbol string) bool {
	switch f.Mode {
	case FilterModeWhitelist:
		_, ok := f.Symbols[symbol]
		return ok
	case FilterModeBlacklist:
		_, ok := f.Symbols[symbol]
		return !ok
	default:
		return true
	}
}

// Windows bundles the lookback windows each detector evaluates over.
type Windows struct {
	Price   time.Duration
	OI      time.Duration
	Reversal time.Duration
	Spread  time.Duration
}

// DefaultWindows matches the magnitudes used against the tier tables.
func DefaultWindows() Windows {
	return Windows{
		Price:    5 * time.Minute,
		OI:       15 * time.Minute,
		Reversal: 10 * time.Minute,
		Spread:   30 * time.Second,
	}
}

// Config bundles everything a Dispatcher needs besides the Tracker.
type Config struct {
	Tiers           []model.TierConfig // sorted descending by MinOIValue by Dispatcher
	Filter          Filter
	Windows         Windows
	Cooldown        time.Duration
	VolumeLookback  int
	Enabled         map[model.AnomalyKind]bool
}

// selectTier returns the first tier (by descending MinOIValue) whose
// threshold the oiValue clears, or false if none applies.
func selectTier(tiers []model.TierConfig, oiValue float64) (model.TierConfig, bool) {
	for _, t := range tiers {
		if oiValue >= t.MinOIValue {
			return t, true
		}
	}
	return model.TierConfig{}, false
}

type cooldownKey struct {
	symbol string
	kind   model.AnomalyKind
}

// Cooldown tracks the last-fired time per (symbol, kind) pair.
type Cooldown struct {
	mu   sync.Mutex
	last map[cooldownKey]time.Time
}

// NewCooldown returns an empty Cooldown tracker.
func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[cooldownKey]time.Time)}
}

// TryFire reports whether (symbol, kind) is past its cooldown as of now,
// and if so atomically records now as the new last-fired time.
func (c *Cooldown) TryFire(symbol string, kind model.AnomalyKind, now time.Time, window time.Duration) bool {
	key := cooldownKey{symbol, kind}
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[key]; ok && now.Sub(last) < window {
		return false
	}
	c.last[key] = now
	return true
}

// Dispatcher evaluates every detector kind for a symbol against the
// Tracker and emits AnomalyEvents that survive filter + cooldown + tier.
type Dispatcher struct {
	cfg      Config
	cooldown *Cooldown
	tiers    []model.TierConfig
}

// NewDispatcher sorts cfg.Tiers descending by MinOIValue (first match wins)
// and returns a ready Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	tiers := append([]model.TierConfig(nil), cfg.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinOIValue > tiers[j].MinOIValue })
	return &Dispatcher{cfg: cfg, cooldown: NewCooldown(), tiers: tiers}
}

func (d *Dispatcher) enabled(kind model.AnomalyKind) bool {
	if d.cfg.Enabled == nil {
		return true
	}
	v, ok := d.cfg.Enabled[kind]
	return !ok || v
}

// Evaluate runs every detector kind for symbol against st and returns the
// AnomalyEvents that clear filter, cooldown and tier threshold.
func (d *Dispatcher) Evaluate(symbol string, st *tracker.SymbolTracker, now time.Time) []model.AnomalyEvent {
	if !d.cfg.Filter.Allows(symbol) {
		return nil
	}

	oiValue := st.OIValue()
	tier, ok := selectTier(d.tiers, oiValue)
	if !ok {
		return nil
	}

	var events []model.AnomalyEvent
	if e, ok := d.evalPriceChange(symbol, st, tier, now); ok {
		events = append(events, e)
	}
	if e, ok := d.evalVolumeSpike(symbol, st, tier, now); ok {
		events = append(events, e)
	}
	if e, ok := d.evalOIChange(symbol, st, tier, now); ok {
		events = append(events, e)
	}
	if e, ok := d.evalSpotFuturesSpread(symbol, st, tier, now); ok {
		events = append(events, e)
	}
	if e, ok := d.evalPriceReversal(symbol, st, tier, now); ok {
		events = append(events, e)
	}
	return events
}

func (d *Dispatcher) evalPriceChange(symbol string, st *tracker.SymbolTracker, tier model.TierConfig, now time.Time) (model.AnomalyEvent, bool) {
	if !d.enabled(model.KindPriceChange) {
		return model.AnomalyEvent{}, false
	}
	changePct, low, high, ok := st.PriceChange(d.cfg.Windows.Price)
	if !ok || math.Abs(changePct) < tier.PriceThreshold {
		return model.AnomalyEvent{}, false
	}
	if !d.cooldown.TryFire(symbol, model.KindPriceChange, now, d.cfg.Cooldown) {
		return model.AnomalyEvent{}, false
	}
	return model.AnomalyEvent{
		Symbol: symbol, Kind: model.KindPriceChange, Tier: tier.Label,
		CurrentPrice: st.LatestPrice(), ChangePct: changePct, Threshold: tier.PriceThreshold,
		Window: d.cfg.Windows.Price, TS: now,
		Extras: map[string]any{"windowLow": low, "windowHigh": high, "oiValue": st.OIValue()},
	}, true
}

func (d *Dispatcher) evalVolumeSpike(symbol string, st *tracker.SymbolTracker, tier model.TierConfig, now time.Time) (model.AnomalyEvent, bool) {
	if !d.enabled(model.KindVolumeSpike) {
		return model.AnomalyEvent{}, false
	}
	lookback := d.cfg.VolumeLookback
	if lookback == 0 {
		lookback = 30
	}
	ratio, ok := st.VolumeRatio(lookback)
	if !ok || ratio < tier.VolumeThreshold {
		return model.AnomalyEvent{}, false
	}
	if !d.cooldown.TryFire(symbol, model.KindVolumeSpike, now, d.cfg.Cooldown) {
		return model.AnomalyEvent{}, false
	}
	return model.AnomalyEvent{
		Symbol: symbol, Kind: model.KindVolumeSpike, Tier: tier.Label,
		CurrentPrice: st.LatestPrice(), ChangePct: ratio, Threshold: tier.VolumeThreshold,
		TS: now, Extras: map[string]any{"oiValue": st.OIValue()},
	}, true
}

func (d *Dispatcher) evalOIChange(symbol string, st *tracker.SymbolTracker, tier model.TierConfig, now time.Time) (model.AnomalyEvent, bool) {
	if !d.enabled(model.KindOIChange) {
		return model.AnomalyEvent{}, false
	}
	changePct, ok := st.OIChange(d.cfg.Windows.OI)
	if !ok || math.Abs(changePct) < tier.OIThreshold {
		return model.AnomalyEvent{}, false
	}
	if !d.cooldown.TryFire(symbol, model.KindOIChange, now, d.cfg.Cooldown) {
		return model.AnomalyEvent{}, false
	}
	return model.AnomalyEvent{
		Symbol: symbol, Kind: model.KindOIChange, Tier: tier.Label,
		CurrentPrice: st.LatestPrice(), ChangePct: changePct, Threshold: tier.OIThreshold,
		Window: d.cfg.Windows.OI, TS: now,
		Extras: map[string]any{"currentOI": st.LatestOI(), "oiValue": st.OIValue()},
	}, true
}

func (d *Dispatcher) evalSpotFuturesSpread(symbol string, st *tracker.SymbolTracker, tier model.TierConfig, now time.Time) (model.AnomalyEvent, bool) {
	if !d.enabled(model.KindSpotFuturesSpread) {
		return model.AnomalyEvent{}, false
	}
	spreadPct, spot, futures, ok := st.SpotFuturesSpread(d.cfg.Windows.Spread)
	if !ok || math.Abs(spreadPct) < tier.SpreadThreshold {
		return model.AnomalyEvent{}, false
	}
	if !d.cooldown.TryFire(symbol, model.KindSpotFuturesSpread, now, d.cfg.Cooldown) {
		return model.AnomalyEvent{}, false
	}
	return model.AnomalyEvent{
		Symbol: symbol, Kind: model.KindSpotFuturesSpread, Tier: tier.Label,
		CurrentPrice: futures, ChangePct: spreadPct, Threshold: tier.SpreadThreshold,
		TS: now, Extras: map[string]any{"spot": spot, "futures": futures, "oiValue": st.OIValue()},
	}, true
}

func (d *Dispatcher) evalPriceReversal(symbol string, st *tracker.SymbolTracker, tier model.TierConfig, now time.Time) (model.AnomalyEvent, bool) {
	if !d.enabled(model.KindPriceReversal) {
		return model.AnomalyEvent{}, false
	}
	rev, ok := st.PriceReversal(d.cfg.Windows.Reversal)
	if !ok {
		return model.AnomalyEvent{}, false
	}
	magnitude := math.Min(rev.RisePct, rev.FallPct)
	if magnitude < tier.PriceThreshold {
		return model.AnomalyEvent{}, false
	}
	if !d.cooldown.TryFire(symbol, model.KindPriceReversal, now, d.cfg.Cooldown) {
		return model.AnomalyEvent{}, false
	}
	return model.AnomalyEvent{
		Symbol: symbol, Kind: model.KindPriceReversal, Tier: tier.Label,
		CurrentPrice: rev.Current, ChangePct: magnitude, Threshold: tier.PriceThreshold,
		Window: d.cfg.Windows.Reversal, TS: now,
		Extras: map[string]any{
			"type": string(rev.Type), "startPrice": rev.StartPrice, "extremeTs": rev.ExtremeTS,
			"risePct": rev.RisePct, "fallPct": rev.FallPct, "oiValue": st.OIValue(),
		},
	}, true
}
