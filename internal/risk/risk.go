// Package risk implements the RiskFilter: a set of independent checks that
// decide whether an anomaly alert should be suppressed. A failure inside
// any individual check never drops the alert — the filter fails open,
// matching the conservative exception handling the detection pipeline was
// ported from.
package risk

import (
	"fmt"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// Config holds every tunable threshold the filter evaluates against.
type Config struct {
	MaxWSLatencyMs      float64
	MaxSpreadBps        float64
	MinDepthValue       float64
	FakeSignalWindow    time.Duration
	FakeSignalRevertRatio float64
	FakeSignalMinChangePct float64
	WallFlashWindow     time.Duration
	WallFlashCount      int
	VolumeSpikeRatio    float64
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxWSLatencyMs:         2000,
		MaxSpreadBps:           50,
		MinDepthValue:          50_000,
		FakeSignalWindow:       2 * time.Minute,
		FakeSignalRevertRatio:  0.7,
		FakeSignalMinChangePct: 1.0,
		WallFlashWindow:        time.Minute,
		WallFlashCount:         3,
		VolumeSpikeRatio:       5.0,
	}
}

// WallEventKind distinguishes a wall appearing from vanishing.
type WallEventKind string

const (
	WallAppear    WallEventKind = "appear"
	WallDisappear WallEventKind = "disappear"
)

// WallEvent is one observation fed by the order-book monitor into the
// wall-manipulation check.
type WallEvent struct {
	TS   time.Time
	Kind WallEventKind
}

// Input bundles everything one Evaluate call needs. Some fields are
// optional (zero value means "unavailable") and the corresponding check
// is skipped rather than flagged.
type Input struct {
	Symbol string
	Now    time.Time

	TickerTS    time.Time
	WSRecvTS    time.Time
	HasTicker   bool

	SpreadPct    float64
	BidDepth10   float64
	AskDepth10   float64
	HasDepth     bool

	RecentPrices []float64 // oldest first, spanning at least FakeSignalWindow
	RecentVolumes []float64 // oldest first, last ~20 ticks

	WallEvents []WallEvent // within WallFlashWindow of Now, per symbol
}

// Filter evaluates risk checks and decides whether to suppress an alert.
type Filter struct {
	cfg Config
}

// New returns a Filter configured with cfg.
func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Evaluate runs every check against in and returns a RiskResult plus the
// filter decision and reason. It never panics outward: an internal error
// recovered here causes the filter to fail open (pass the alert through)
// while still reporting the error to the caller for logging.
func (f *Filter) Evaluate(in Input) (result model.RiskResult, filtered bool, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("risk filter panic recovered for %s: %v", in.Symbol, r)
			filtered = false
			reason = ""
		}
	}()

	result.Symbol = in.Symbol
	result.TS = in.Now

	if in.HasTicker {
		result.WSLatencyMs = in.WSRecvTS.Sub(in.TickerTS).Seconds() * 1000
		result.DataAgeMs = in.Now.Sub(in.TickerTS).Seconds() * 1000
	}

	if in.HasDepth {
		spreadBps := in.SpreadPct * 100
		result.SpreadTooWide = spreadBps > f.cfg.MaxSpreadBps
		totalDepth := in.BidDepth10 + in.AskDepth10
		result.DepthTooThin = totalDepth < 2*f.cfg.MinDepthValue
	}

	result.IsFake, result.FakeReason = f.checkFakeSignal(in.RecentPrices)
	result.WallManipulation = f.checkWallManipulation(in.WallEvents, in.Now)
	result.VolumeManipulation = f.checkVolumeManipulation(in.RecentVolumes)

	filtered = result.WSLatencyMs > f.cfg.MaxWSLatencyMs ||
		result.SpreadTooWide || result.DepthTooThin || result.IsFake ||
		result.WallManipulation || result.VolumeManipulation

	if filtered {
		reason = filterReason(result, f.cfg)
	}
	return result, filtered, reason, nil
}

func filterReason(r model.RiskResult, cfg Config) string {
	switch {
	case r.WSLatencyMs > cfg.MaxWSLatencyMs:
		return "latency"
	case r.SpreadTooWide:
		return "spread_too_wide"
	case r.DepthTooThin:
		return "depth_too_thin"
	case r.IsFake:
		return "fake_signal:" + r.FakeReason
	case r.WallManipulation:
		return "wall_manipulation"
	case r.VolumeManipulation:
		return "volume_manipulation"
	default:
		return ""
	}
}

// checkFakeSignal looks for a spike-then-revert pattern in prices: either
// leg (rise-to-high / fall-from-high, or fall-to-low / rise-from-low) must
// clear fakeSignalMinChangePct, and the reverse leg must retrace at least
// fakeSignalRevertRatio of it.
func (f *Filter) checkFakeSignal(prices []float64) (bool, string) {
	if len(prices) < 3 {
		return false, ""
	}
	start := prices[0]
	current := prices[len(prices)-1]

	hiIdx, loIdx := 0, 0
	for i, p := range prices {
		if p > prices[hiIdx] {
			hiIdx = i
		}
		if p < prices[loIdx] {
			loIdx = i
		}
	}
	high, low := prices[hiIdx], prices[loIdx]

	if start == 0 || high == 0 || low == 0 {
		return false, ""
	}

	riseToHigh := (high - start) / start * 100
	fallFromHigh := (high - current) / high * 100
	if riseToHigh >= f.cfg.FakeSignalMinChangePct && fallFromHigh > 0 {
		if fallFromHigh/riseToHigh >= f.cfg.FakeSignalRevertRatio {
			return true, "spike_up_revert"
		}
	}

	fallToLow := (start - low) / start * 100
	riseFromLow := (current - low) / low * 100
	if fallToLow >= f.cfg.FakeSignalMinChangePct && riseFromLow > 0 {
		if riseFromLow/fallToLow >= f.cfg.FakeSignalRevertRatio {
			return true, "spike_down_revert"
		}
	}

	return false, ""
}

func (f *Filter) checkWallManipulation(events []WallEvent, now time.Time) bool {
	var appear, disappear int
	cutoff := now.Add(-f.cfg.WallFlashWindow)
	for _, e := range events {
		if e.TS.Before(cutoff) {
			continue
		}
		switch e.Kind {
		case WallAppear:
			appear++
		case WallDisappear:
			disappear++
		}
	}
	return appear >= f.cfg.WallFlashCount && disappear >= f.cfg.WallFlashCount
}

// checkVolumeManipulation flags an isolated spike: the max of the last 20
// volumes exceeds volumeSpikeRatio x average, but its immediate
// 3-neighborhood on both sides stays below 1.5x average (no follow-through).
func (f *Filter) checkVolumeManipulation(volumes []float64) bool {
	if len(volumes) < 7 {
		return false
	}
	window := volumes
	if len(window) > 20 {
		window = window[len(window)-20:]
	}

	var sum float64
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(len(window))
	if avg == 0 {
		return false
	}

	maxIdx := 0
	for i, v := range window {
		if v > window[maxIdx] {
			maxIdx = i
		}
	}
	if window[maxIdx] <= avg*f.cfg.VolumeSpikeRatio {
		return false
	}

	before := neighborhoodMean(window, maxIdx-3, maxIdx)
	after := neighborhoodMean(window, maxIdx+1, maxIdx+4)
	return before < 1.5*avg && after < 1.5*avg
}

func neighborhoodMean(window []float64, start, end int) float64 {
	if start < 0 {
		start = 0
	}
	if end > len(window) {
		end = len(window)
	}
	if start >= end {
		return 0
	}
	var sum float64
	n := 0
	for i := start; i < end; i++ {
		sum += window[i]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
