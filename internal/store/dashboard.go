package store

import (
	"time"

	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/trading"
)

// Trades returns closed trades for symbol (all symbols if empty) since
// the given time, most recent first, capped at limit.
func (s *Store) Trades(symbol string, since time.Time, limit int) ([]trading.Trade, error) {
	query := `SELECT symbol, side, quantity, entry_price, exit_price, entry_time, exit_time,
			exit_reason, leverage, realized_pnl, realized_pnl_pct, roi, commission,
			signal_confidence, signal_reason, margin
		FROM trades WHERE exit_time >= ?`
	args := []any{since.UnixNano()}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY exit_time DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trading.Trade
	for rows.Next() {
		var t trading.Trade
		var side, exitReason string
		var entryNano, exitNano int64
		if err := rows.Scan(&t.Symbol, &side, &t.Quantity, &t.EntryPrice, &t.ExitPrice,
			&entryNano, &exitNano, &exitReason, &t.Leverage, &t.RealizedPnL, &t.RealizedPnLPct,
			&t.ROI, &t.Commission, &t.SignalConfidence, &t.SignalReason, &t.Margin); err != nil {
			continue
		}
		t.Side = model.OrderSideTrade(side)
		t.ExitReason = model.ExitReason(exitReason)
		t.EntryTime = time.Unix(0, entryNano)
		t.ExitTime = time.Unix(0, exitNano)
		out = append(out, t)
	}
	return out, nil
}

// TradeStats summarizes closed trades matching a Trades filter.
type TradeStats struct {
	TotalTrades int
	WinTrades   int
	WinRate     float64
	TotalPnL    float64
	AvgPnL      float64
	AvgROI      float64
}

// TradeStatistics aggregates closed trades for symbol since the given
// time into win rate / PnL summary statistics.
func (s *Store) TradeStatistics(symbol string, since time.Time) (TradeStats, error) {
	trades, err := s.Trades(symbol, since, 0)
	if err != nil {
		return TradeStats{}, err
	}
	var stats TradeStats
	var roiSum float64
	for _, t := range trades {
		stats.TotalTrades++
		stats.TotalPnL += t.RealizedPnL
		roiSum += t.ROI
		if t.RealizedPnL > 0 {
			stats.WinTrades++
		}
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinTrades) / float64(stats.TotalTrades)
		stats.AvgPnL = stats.TotalPnL / float64(stats.TotalTrades)
		stats.AvgROI = roiSum / float64(stats.TotalTrades)
	}
	return stats, nil
}

// EquityPoint is one sample of the equity_curve table.
type EquityPoint struct {
	Symbol   string
	TS       time.Time
	Equity   float64
	Balance  float64
	Drawdown float64
}

// EquityCurve returns equity_curve samples for symbol since the given
// time, ascending by timestamp. An empty symbol matches all symbols.
func (s *Store) EquityCurve(symbol string, since time.Time) ([]EquityPoint, error) {
	query := `SELECT symbol, ts, equity, balance, drawdown FROM equity_curve WHERE ts >= ?`
	args := []any{since.UnixNano()}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY ts ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquityPoint
	for rows.Next() {
		var p EquityPoint
		var tsNano int64
		if err := rows.Scan(&p.Symbol, &tsNano, &p.Equity, &p.Balance, &p.Drawdown); err != nil {
			continue
		}
		p.TS = time.Unix(0, tsNano)
		out = append(out, p)
	}
	return out, nil
}

// AlertRecord is one row of the alerts table.
type AlertRecord struct {
	Symbol       string
	TS           time.Time
	Kind         string
	Tier         string
	ChangePct    float64
	Threshold    float64
	WasFiltered  bool
	FilterReason string
}

// Alerts returns alert rows since the given time, most recent first,
// capped at limit.
func (s *Store) Alerts(since time.Time, limit int) ([]AlertRecord, error) {
	query := `SELECT symbol, ts, kind, tier, change_pct, threshold, was_filtered, filter_reason
		FROM alerts WHERE ts >= ? ORDER BY ts DESC`
	args := []any{since.UnixNano()}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AlertRecord
	for rows.Next() {
		var a AlertRecord
		var tsNano int64
		var filtered int
		if err := rows.Scan(&a.Symbol, &tsNano, &a.Kind, &a.Tier, &a.ChangePct, &a.Threshold, &filtered, &a.FilterReason); err != nil {
			continue
		}
		a.TS = time.Unix(0, tsNano)
		a.WasFiltered = filtered != 0
		out = append(out, a)
	}
	return out, nil
}

// FeatureStats summarizes how many feature rows were recorded, and how
// many have since been labeled, since the given time.
type FeatureStats struct {
	TotalFeatures   int
	LabeledFeatures int
}

// FeatureStatistics counts feature rows recorded since the given time.
func (s *Store) FeatureStatistics(since time.Time) (FeatureStats, error) {
	var stats FeatureStats
	row := s.db.QueryRow(`SELECT COUNT(*) FROM features WHERE ts >= ?`, since.UnixNano())
	if err := row.Scan(&stats.TotalFeatures); err != nil {
		return stats, err
	}
	row = s.db.QueryRow(`SELECT COUNT(*) FROM features f JOIN labels l
		ON l.symbol = f.symbol AND l.feature_ts = f.ts WHERE f.ts >= ?`, since.UnixNano())
	if err := row.Scan(&stats.LabeledFeatures); err != nil {
		return stats, err
	}
	return stats, nil
}

// LabelStats summarizes label direction distribution since the given
// time.
type LabelStats struct {
	TotalLabels int
	UpCount5m   int
	DownCount5m int
	FlatCount5m int
	AvgReturn5m float64
}

// LabelStatistics counts label rows and their 5-minute direction
// distribution since the given time.
func (s *Store) LabelStatistics(since time.Time) (LabelStats, error) {
	rows, err := s.db.Query(`SELECT direction_5m, return_5m FROM labels WHERE feature_ts >= ?`, since.UnixNano())
	if err != nil {
		return LabelStats{}, err
	}
	defer rows.Close()

	var stats LabelStats
	var returnSum float64
	for rows.Next() {
		var dir int
		var ret float64
		if err := rows.Scan(&dir, &ret); err != nil {
			continue
		}
		stats.TotalLabels++
		returnSum += ret
		switch model.Direction(dir) {
		case model.DirectionUp:
			stats.UpCount5m++
		case model.DirectionDown:
			stats.DownCount5m++
		default:
			stats.FlatCount5m++
		}
	}
	if stats.TotalLabels > 0 {
		stats.AvgReturn5m = returnSum / float64(stats.TotalLabels)
	}
	return stats, nil
}
