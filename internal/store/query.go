package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentineld/sentineld/internal/model"
)

// PriceAt returns the price_snapshots row closest to ts within
// toleranceSec, or (0, false) if none qualifies.
func (s *Store) PriceAt(symbol string, ts time.Time, toleranceSec float64) (float64, bool) {
	toleranceNs := int64(toleranceSec * float64(time.Second))
	target := ts.UnixNano()

	row := s.db.QueryRow(`SELECT price, ts FROM price_snapshots
		WHERE symbol = ? AND ts BETWEEN ? AND ?
		ORDER BY ABS(ts - ?) ASC LIMIT 1`,
		symbol, target-toleranceNs, target+toleranceNs, target)

	var price float64
	var foundTS int64
	if err := row.Scan(&price, &foundTS); err != nil {
		return 0, false
	}
	return price, true
}

// PricesInWindow returns price points for symbol within [start, end],
// ascending by timestamp.
func (s *Store) PricesInWindow(symbol string, start, end time.Time) []model.PricePoint {
	rows, err := s.db.Query(`SELECT ts, price, volume FROM price_snapshots
		WHERE symbol = ? AND ts BETWEEN ? AND ? ORDER BY ts ASC`,
		symbol, start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []model.PricePoint
	for rows.Next() {
		var tsNano int64
		var price, volume float64
		if err := rows.Scan(&tsNano, &price, &volume); err != nil {
			continue
		}
		out = append(out, model.PricePoint{Price: price, Volume: volume, TS: time.Unix(0, tsNano)})
	}
	return out
}

// UnlabeledFeatures returns features older than minAge with no matching
// labels row, limited to limit rows. An empty symbol matches all symbols.
func (s *Store) UnlabeledFeatures(symbol string, minAge time.Duration, limit int) ([]model.FeatureVector, error) {
	cutoff := time.Now().Add(-minAge).UnixNano()

	query := `SELECT f.symbol, f.ts, f.feature_json FROM features f
		LEFT JOIN labels l ON l.symbol = f.symbol AND l.feature_ts = f.ts
		WHERE l.feature_ts IS NULL AND f.ts <= ?`
	args := []any{cutoff}
	if symbol != "" {
		query += ` AND f.symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY f.ts ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unlabeled features: %w", err)
	}
	defer rows.Close()

	var out []model.FeatureVector
	for rows.Next() {
		var sym string
		var tsNano int64
		var blob string
		if err := rows.Scan(&sym, &tsNano, &blob); err != nil {
			continue
		}
		var fv model.FeatureVector
		if err := json.Unmarshal([]byte(blob), &fv); err != nil {
			continue
		}
		out = append(out, fv)
	}
	return out, nil
}

// TrainingRow is one joined feature+label record yielded by
// ExportTrainingData.
type TrainingRow struct {
	Feature model.FeatureVector
	Label   model.Label
}

// ExportFilter scopes an ExportTrainingData call.
type ExportFilter struct {
	Symbol string
	Since  time.Time
	Limit  int
}

// ExportTrainingData yields joined feature+label rows matching filter.
func (s *Store) ExportTrainingData(filter ExportFilter) ([]TrainingRow, error) {
	query := `SELECT f.symbol, f.ts, f.feature_json,
			l.return_1m, l.return_5m, l.return_15m, l.return_30m,
			l.direction_5m, l.direction_15m, l.max_profit_5m, l.max_drawdown_5m, l.label_generated_at
		FROM features f
		JOIN labels l ON l.symbol = f.symbol AND l.feature_ts = f.ts
		WHERE f.ts >= ?`
	args := []any{filter.Since.UnixNano()}
	if filter.Symbol != "" {
		query += ` AND f.symbol = ?`
		args = append(args, filter.Symbol)
	}
	query += ` ORDER BY f.ts ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query training data: %w", err)
	}
	defer rows.Close()

	var out []TrainingRow
	for rows.Next() {
		var sym string
		var tsNano, labelGenNano int64
		var blob string
		var lbl model.Label
		var dir5, dir15 int
		if err := rows.Scan(&sym, &tsNano, &blob,
			&lbl.Return1m, &lbl.Return5m, &lbl.Return15m, &lbl.Return30m,
			&dir5, &dir15, &lbl.MaxProfit5m, &lbl.MaxDrawdown5m, &labelGenNano); err != nil {
			continue
		}
		var fv model.FeatureVector
		if err := json.Unmarshal([]byte(blob), &fv); err != nil {
			continue
		}
		lbl.Symbol = sym
		lbl.FeatureTS = time.Unix(0, tsNano)
		lbl.Direction5m = model.Direction(dir5)
		lbl.Direction15m = model.Direction(dir15)
		lbl.LabelGeneratedAt = time.Unix(0, labelGenNano)
		out = append(out, TrainingRow{Feature: fv, Label: lbl})
	}
	return out, nil
}
