// Package store persists features, labels, price snapshots, alerts and
// paper-trading state to a local SQLite database via the pure-Go
// modernc.org/sqlite driver. All writes funnel through a single
// serialized writer goroutine draining a buffered command channel; each
// write call waits until the writer has applied its command. Reads open
// independent connections.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sentineld/sentineld/internal/model"
	"github.com/sentineld/sentineld/internal/trading"
)

const schema = `
CREATE TABLE IF NOT EXISTS features (
	symbol TEXT NOT NULL,
	ts INTEGER NOT NULL,
	feature_json TEXT NOT NULL,
	UNIQUE(symbol, ts)
);
CREATE TABLE IF NOT EXISTS labels (
	symbol TEXT NOT NULL,
	feature_ts INTEGER NOT NULL,
	return_1m REAL, return_5m REAL, return_15m REAL, return_30m REAL,
	direction_5m INTEGER, direction_15m INTEGER,
	max_profit_5m REAL, max_drawdown_5m REAL,
	label_generated_at INTEGER NOT NULL,
	UNIQUE(symbol, feature_ts)
);
CREATE TABLE IF NOT EXISTS price_snapshots (
	symbol TEXT NOT NULL,
	ts INTEGER NOT NULL,
	price REAL NOT NULL,
	volume REAL,
	quote_volume REAL,
	UNIQUE(symbol, ts)
);
CREATE TABLE IF NOT EXISTS alerts (
	symbol TEXT NOT NULL,
	ts INTEGER NOT NULL,
	kind TEXT NOT NULL,
	tier TEXT,
	change_pct REAL,
	threshold REAL,
	was_filtered INTEGER NOT NULL,
	filter_reason TEXT,
	extras_json TEXT
);
CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL, entry_price REAL, entry_time INTEGER,
	leverage REAL, margin REAL,
	take_profit_price REAL, stop_loss_price REAL,
	trailing_stop_distance REAL, max_hold_seconds REAL,
	signal_confidence REAL, signal_reason TEXT,
	status TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL, entry_price REAL, exit_price REAL,
	entry_time INTEGER, exit_time INTEGER,
	exit_reason TEXT, leverage REAL,
	realized_pnl REAL, realized_pnl_pct REAL, roi REAL,
	commission REAL, signal_confidence REAL, signal_reason TEXT, margin REAL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
CREATE TABLE IF NOT EXISTS account_states (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL UNIQUE,
	balance REAL, equity REAL, margin_used REAL, margin_available REAL,
	margin_ratio REAL, open_positions INTEGER, total_trades INTEGER,
	win_trades INTEGER, total_pnl REAL, max_drawdown REAL, win_rate REAL
);
CREATE TABLE IF NOT EXISTS equity_curve (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	ts INTEGER NOT NULL,
	equity REAL, balance REAL, drawdown REAL,
	UNIQUE(symbol, ts)
);
`

// writeCmd is one unit of work the serialized writer goroutine executes.
type writeCmd struct {
	exec func(*sql.Tx) error
	done chan error
}

// Store is the SQLite-backed DataStore. Writes are serialized through a
// single goroutine; reads use the shared *sql.DB connection pool.
type Store struct {
	db      *sql.DB
	writeCh chan writeCmd
	cancel  context.CancelFunc
}

// Open opens (creating if necessary) the SQLite database at path, applies
// the schema, and starts the writer goroutine.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(8)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{db: db, writeCh: make(chan writeCmd, 1000), cancel: cancel}
	go s.runWriter(ctx)
	return s, nil
}

// Close stops the writer goroutine and closes the underlying connection.
func (s *Store) Close() error {
	s.cancel()
	return s.db.Close()
}

func (s *Store) runWriter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.writeCh:
			tx, err := s.db.Begin()
			if err != nil {
				cmd.done <- fmt.Errorf("begin tx: %w", err)
				continue
			}
			if err := cmd.exec(tx); err != nil {
				tx.Rollback()
				cmd.done <- err
				continue
			}
			cmd.done <- tx.Commit()
		}
	}
}

// enqueue submits a write and blocks until it completes.
func (s *Store) enqueue(exec func(*sql.Tx) error) error {
	done := make(chan error, 1)
	s.writeCh <- writeCmd{exec: exec, done: done}
	return <-done
}

// SaveFeature persists fv, overwriting any prior row for (symbol, ts).
func (s *Store) SaveFeature(fv model.FeatureVector) error {
	blob, err := json.Marshal(fv)
	if err != nil {
		return fmt.Errorf("marshal feature: %w", err)
	}
	return s.enqueue(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO features(symbol, ts, feature_json) VALUES(?,?,?)
			ON CONFLICT(symbol, ts) DO UPDATE SET feature_json=excluded.feature_json`,
			fv.Symbol, fv.TS.UnixNano(), string(blob))
		return err
	})
}

// SaveLabel persists lbl, keyed by (symbol, featureTs).
func (s *Store) SaveLabel(lbl model.Label) error {
	return s.enqueue(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO labels(symbol, feature_ts, return_1m, return_5m, return_15m, return_30m,
				direction_5m, direction_15m, max_profit_5m, max_drawdown_5m, label_generated_at)
			VALUES(?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(symbol, feature_ts) DO UPDATE SET
				return_1m=excluded.return_1m, return_5m=excluded.return_5m,
				return_15m=excluded.return_15m, return_30m=excluded.return_30m,
				direction_5m=excluded.direction_5m, direction_15m=excluded.direction_15m,
				max_profit_5m=excluded.max_profit_5m, max_drawdown_5m=excluded.max_drawdown_5m,
				label_generated_at=excluded.label_generated_at`,
			lbl.Symbol, lbl.FeatureTS.UnixNano(), lbl.Return1m, lbl.Return5m, lbl.Return15m, lbl.Return30m,
			int(lbl.Direction5m), int(lbl.Direction15m), lbl.MaxProfit5m, lbl.MaxDrawdown5m, lbl.LabelGeneratedAt.UnixNano())
		return err
	})
}

// SavePriceSnapshot records a price tick for later priceAt/window lookups.
func (s *Store) SavePriceSnapshot(symbol string, ts time.Time, price, volume, quoteVolume float64) error {
	return s.enqueue(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO price_snapshots(symbol, ts, price, volume, quote_volume) VALUES(?,?,?,?,?)
			ON CONFLICT(symbol, ts) DO UPDATE SET price=excluded.price, volume=excluded.volume, quote_volume=excluded.quote_volume`,
			symbol, ts.UnixNano(), price, volume, quoteVolume)
		return err
	})
}

// SaveAlert records an emitted (or filtered) anomaly event.
func (s *Store) SaveAlert(event model.AnomalyEvent, wasFiltered bool, filterReason string) error {
	extras, err := json.Marshal(event.Extras)
	if err != nil {
		return fmt.Errorf("marshal extras: %w", err)
	}
	return s.enqueue(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO alerts(symbol, ts, kind, tier, change_pct, threshold, was_filtered, filter_reason, extras_json)
			VALUES(?,?,?,?,?,?,?,?,?)`,
			event.Symbol, event.TS.UnixNano(), string(event.Kind), event.Tier, event.ChangePct, event.Threshold,
			boolToInt(wasFiltered), filterReason, string(extras))
		return err
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveTrade persists a closed Trade.
func (s *Store) SaveTrade(t trading.Trade) error {
	id := fmt.Sprintf("%s-%d", t.Symbol, t.ExitTime.UnixNano())
	return s.enqueue(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO trades(trade_id, symbol, side, quantity, entry_price, exit_price,
				entry_time, exit_time, exit_reason, leverage, realized_pnl, realized_pnl_pct, roi,
				commission, signal_confidence, signal_reason, margin, created_at)
			VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			id, t.Symbol, string(t.Side), t.Quantity, t.EntryPrice, t.ExitPrice,
			t.EntryTime.UnixNano(), t.ExitTime.UnixNano(), string(t.ExitReason), t.Leverage,
			t.RealizedPnL, t.RealizedPnLPct, t.ROI, t.Commission, t.SignalConfidence, t.SignalReason, t.Margin,
			t.ExitTime.UnixNano())
		return err
	})
}

// SaveAccountState persists a point-in-time account snapshot.
func (s *Store) SaveAccountState(state model.AccountState) error {
	return s.enqueue(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO account_states(ts, balance, equity, margin_used, margin_available,
				margin_ratio, open_positions, total_trades, win_trades, total_pnl, max_drawdown, win_rate)
			VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(ts) DO UPDATE SET balance=excluded.balance, equity=excluded.equity`,
			state.TS.UnixNano(), state.Balance, state.Equity, state.MarginUsed, state.MarginAvailable,
			state.MarginRatio, state.OpenPositions, state.TotalTrades, state.WinTrades, state.TotalPnL,
			state.MaxDrawdown, state.WinRate)
		return err
	})
}

// SaveEquityPoint records one equity-curve sample for symbol.
func (s *Store) SaveEquityPoint(symbol string, ts time.Time, equity, balance, drawdown float64) error {
	return s.enqueue(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO equity_curve(symbol, ts, equity, balance, drawdown) VALUES(?,?,?,?,?)
			ON CONFLICT(symbol, ts) DO UPDATE SET equity=excluded.equity, balance=excluded.balance, drawdown=excluded.drawdown`,
			symbol, ts.UnixNano(), equity, balance, drawdown)
		return err
	})
}
