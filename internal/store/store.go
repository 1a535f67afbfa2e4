// Package store is the durable relational backing for prices, strategies,
// and trades. It owns all persisted rows; callers such as PositionManager
// keep in-memory caches but treat the Store as the source of truth on
// restart.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"quarterbinary/pkg/types"
)

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// tickPrecision is the number of decimal places prices, shares, and P&L
// figures are rounded to before binding into a SQL param. Venue prices move
// in ticks far coarser than float64's native precision; rounding here avoids
// persisting noise like 0.0899999999999999 for an entry price of 0.09.
const tickPrecision = 6

// roundTick rounds v to tickPrecision decimal places using shopspring/decimal
// rather than a hand-rolled math.Round(v*1e6)/1e6, which drifts for values
// decimal's base-10 arithmetic represents exactly.
func roundTick(v float64) float64 {
	return decimal.NewFromFloat(v).Round(tickPrecision).InexactFloat64()
}

// Store wraps a sqlite database holding the prices/strategies/trades
// tables described in the external interface specification.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite does not support concurrent writers

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			condition_id TEXT NOT NULL,
			asset TEXT NOT NULL,
			yes_price REAL NOT NULL,
			no_price REAL NOT NULL,
			yes_bid REAL NOT NULL,
			yes_ask REAL NOT NULL,
			no_bid REAL NOT NULL,
			no_ask REAL NOT NULL,
			time_remaining REAL NOT NULL,
			observed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_condition_observed ON prices(condition_id, observed_at)`,

		`CREATE TABLE IF NOT EXISTS strategies (
			id TEXT PRIMARY KEY,
			tier TEXT NOT NULL DEFAULT '',
			entry_threshold REAL NOT NULL,
			exit_threshold REAL NOT NULL,
			direction TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'testing',
			total_trades INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			total_pnl REAL NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			strategy_id TEXT NOT NULL,
			condition_id TEXT NOT NULL,
			asset TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price REAL NOT NULL,
			entry_time TEXT NOT NULL,
			shares REAL NOT NULL,
			time_remaining_at_entry REAL NOT NULL,
			hour_of_day INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			status TEXT NOT NULL,
			is_paper BOOLEAN NOT NULL,
			exit_price REAL NOT NULL DEFAULT 0,
			exit_time TEXT,
			exit_reason TEXT NOT NULL DEFAULT '',
			pnl REAL NOT NULL DEFAULT 0,
			pnl_pct REAL NOT NULL DEFAULT 0,
			is_win BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_strategy_id ON trades(strategy_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// AppendPrice appends one PriceUpdate to the time series.
func (s *Store) AppendPrice(p types.PriceUpdate) error {
	_, err := s.db.Exec(`
		INSERT INTO prices (condition_id, asset, yes_price, no_price, yes_bid, yes_ask, no_bid, no_ask, time_remaining, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ConditionID, p.Asset, roundTick(p.YesPrice), roundTick(p.NoPrice), roundTick(p.YesBid), roundTick(p.YesAsk),
		roundTick(p.NoBid), roundTick(p.NoAsk), p.TimeRemainingSeconds, p.ObservedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("store: append price: %w", err)
	}
	return nil
}

// UpsertStrategy inserts a strategy row on first run, preserving any
// already-persisted status, total_trades, wins, and total_pnl — Store's
// status always takes precedence over the config default, per spec.
func (s *Store) UpsertStrategy(cfg types.StrategyConfig) error {
	status := string(types.StrategyTesting)
	if cfg.Enabled {
		status = string(types.StrategyActive)
	}
	_, err := s.db.Exec(`
		INSERT INTO strategies (id, tier, entry_threshold, exit_threshold, direction, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tier = excluded.tier,
			entry_threshold = excluded.entry_threshold,
			exit_threshold = excluded.exit_threshold,
			direction = excluded.direction
	`, cfg.ID, cfg.Tier, cfg.EntryThreshold, cfg.ExitThreshold, string(cfg.Direction), status)
	if err != nil {
		return fmt.Errorf("store: upsert strategy %s: %w", cfg.ID, err)
	}
	return nil
}

// LoadStrategies returns every persisted strategy row.
func (s *Store) LoadStrategies() ([]types.Strategy, error) {
	rows, err := s.db.Query(`SELECT id, tier, entry_threshold, exit_threshold, direction, status, total_trades, wins, total_pnl FROM strategies`)
	if err != nil {
		return nil, fmt.Errorf("store: load strategies: %w", err)
	}
	defer rows.Close()

	var out []types.Strategy
	for rows.Next() {
		var st types.Strategy
		var direction, status string
		if err := rows.Scan(&st.ID, &st.Tier, &st.EntryThreshold, &st.ExitThreshold, &direction, &status, &st.TotalTrades, &st.Wins, &st.TotalPnL); err != nil {
			return nil, fmt.Errorf("store: scan strategy: %w", err)
		}
		st.Direction = types.Direction(direction)
		st.Status = types.StrategyStatus(status)
		out = append(out, st)
	}
	return out, rows.Err()
}

// OpenTrade persists a new open trade and stores its assigned ID in t.ID.
func (s *Store) OpenTrade(t *types.Trade) error {
	res, err := s.db.Exec(`
		INSERT INTO trades (strategy_id, condition_id, asset, side, entry_price, entry_time, shares,
			time_remaining_at_entry, hour_of_day, day_of_week, status, is_paper)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.StrategyID, t.ConditionID, t.Asset, string(t.Side), roundTick(t.EntryPrice), t.EntryTime.Format(timeLayout), roundTick(t.Shares),
		t.TimeRemainingAtEntry, t.HourOfDay, t.DayOfWeek, string(types.TradeOpen), t.IsPaper)
	if err != nil {
		return fmt.Errorf("store: open trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: open trade id: %w", err)
	}
	t.ID = id
	t.Status = types.TradeOpen
	return nil
}

// CloseTrade persists the closing fields of an already-open trade and
// updates the owning strategy's performance cache.
func (s *Store) CloseTrade(t *types.Trade) error {
	_, err := s.db.Exec(`
		UPDATE trades SET
			status = ?, exit_price = ?, exit_time = ?, exit_reason = ?, pnl = ?, pnl_pct = ?, is_win = ?
		WHERE id = ?
	`, string(types.TradeClosed), roundTick(t.ExitPrice), t.ExitTime.Format(timeLayout), string(t.ExitReason),
		roundTick(t.PnL), roundTick(t.PnLPct), t.IsWin, t.ID)
	if err != nil {
		return fmt.Errorf("store: close trade %d: %w", t.ID, err)
	}

	win := 0
	if t.IsWin {
		win = 1
	}
	_, err = s.db.Exec(`
		UPDATE strategies SET total_trades = total_trades + 1, wins = wins + ?, total_pnl = total_pnl + ?
		WHERE id = ?
	`, win, roundTick(t.PnL), t.StrategyID)
	if err != nil {
		return fmt.Errorf("store: update strategy perf cache for %s: %w", t.StrategyID, err)
	}
	return nil
}

// LoadOpenTrades returns every row with status = open, used to rehydrate
// PositionManager's in-memory cache on startup.
func (s *Store) LoadOpenTrades() ([]types.Trade, error) {
	return s.queryTrades(`status = ?`, string(types.TradeOpen))
}

// HasAnyTrade implements the one-shot-per-market rule: true if any row
// (open or closed) exists for this (strategyId, conditionId) pair.
func (s *Store) HasAnyTrade(key types.Key) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE strategy_id = ? AND condition_id = ?`,
		key.StrategyID, key.ConditionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: has any trade: %w", err)
	}
	return count > 0, nil
}

func (s *Store) queryTrades(where string, args ...any) ([]types.Trade, error) {
	rows, err := s.db.Query(`
		SELECT id, strategy_id, condition_id, asset, side, entry_price, entry_time, shares,
			time_remaining_at_entry, hour_of_day, day_of_week, status, is_paper,
			exit_price, exit_time, exit_reason, pnl, pnl_pct, is_win
		FROM trades WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query trades: %w", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var t types.Trade
		var side, status, exitReason string
		var entryTime string
		var exitTime sql.NullString
		if err := rows.Scan(&t.ID, &t.StrategyID, &t.ConditionID, &t.Asset, &side, &t.EntryPrice, &entryTime, &t.Shares,
			&t.TimeRemainingAtEntry, &t.HourOfDay, &t.DayOfWeek, &status, &t.IsPaper,
			&t.ExitPrice, &exitTime, &exitReason, &t.PnL, &t.PnLPct, &t.IsWin); err != nil {
			return nil, fmt.Errorf("store: scan trade: %w", err)
		}
		t.Side = types.Side(side)
		t.Status = types.TradeStatus(status)
		t.ExitReason = types.ExitReason(exitReason)
		if parsed, perr := time.Parse(timeLayout, entryTime); perr == nil {
			t.EntryTime = parsed
		}
		if exitTime.Valid {
			if parsed, perr := time.Parse(timeLayout, exitTime.String); perr == nil {
				t.ExitTime = parsed
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
