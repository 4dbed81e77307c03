package label

import (
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// UnlabeledStore is the subset of DataStore the offline reconciler needs:
// it must be able to list features that never received a label and
// persist newly computed labels back via the same idempotent key used by
// the realtime path.
type UnlabeledStore interface {
	PriceSource
	UnlabeledFeatures(symbol string, minAge time.Duration, limit int) ([]model.FeatureVector, error)
	SaveLabel(model.Label) error
}

// Reconciler recomputes labels for features whose label was never
// generated in-process, e.g. after a process restart dropped the pending
// queue. It reuses the same label computation as Generator so the two
// paths can never diverge on semantics.
type Reconciler struct {
	store UnlabeledStore
	cfg   Config
}

// NewReconciler returns a Reconciler backed by store.
func NewReconciler(store UnlabeledStore, cfg Config) *Reconciler {
	return &Reconciler{store: store, cfg: cfg}
}

// Run scans for unlabeled features older than minAge (per symbol) and
// attempts to backfill their labels, persisting any that succeed. Returns
// the number of labels written.
func (r *Reconciler) Run(symbol string, now time.Time, minAge time.Duration, limit int) (int, error) {
	features, err := r.store.UnlabeledFeatures(symbol, minAge, limit)
	if err != nil {
		return 0, err
	}

	g := &Generator{
		queues:              make(map[string][]pending),
		maxPendingPerSymbol: r.cfg.MaxPendingPerSymbol,
		buffer:              r.cfg.Buffer,
		directionThreshold:  r.cfg.DirectionThreshold,
		priceTolerance:      r.cfg.PriceToleranceSec,
		source:              r.store,
	}

	written := 0
	for _, fv := range features {
		if now.Sub(fv.TS) < maxLabelWindow {
			continue
		}
		lbl, ok, err := g.computeLabel(symbol, fv, now)
		if err != nil {
			continue // invariant violation on a single entry must not abort the batch
		}
		if !ok {
			continue
		}
		if err := r.store.SaveLabel(lbl); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
