// Package safety implements the pre-flight eligibility gate and the trade
// frequency limiter. Both consult the executed-trade log; the limiter fails
// closed on storage errors.
package safety

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// TradeLog supplies trade history to the gate and limiter.
type TradeLog interface {
	// LastTrade returns the most recent executed trade time for a symbol
	// and side ("BUY" or "SELL").
	LastTrade(symbol, side string) (time.Time, bool, error)

	// FirstBuy returns the acquisition time of the open position.
	FirstBuy(symbol string) (time.Time, bool, error)

	// CountSince counts executed trades at or after the given time.
	CountSince(since time.Time) (int, error)

	// LastTradeTime returns the most recent executed trade time overall.
	LastTradeTime() (time.Time, bool, error)
}

const tradeLogSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	quantity    REAL NOT NULL,
	price       REAL NOT NULL,
	executed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, side, executed_at);
CREATE INDEX IF NOT EXISTS idx_trades_executed ON trades(executed_at);
`

// TradeLogStore is the sqlite-backed trade log.
type TradeLogStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeLogStore opens (or creates) the trade log at path.
func NewTradeLogStore(path string, log zerolog.Logger) (*TradeLogStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	if _, err := db.Exec(tradeLogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create trade log schema: %w", err)
	}
	return &TradeLogStore{
		db:  db,
		log: log.With().Str("module", "trade_log").Logger(),
	}, nil
}

// Close releases the underlying database.
func (s *TradeLogStore) Close() error {
	return s.db.Close()
}

// RecordTrade appends an executed trade.
func (s *TradeLogStore) RecordTrade(symbol, side string, quantity, price float64, executedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO trades (symbol, side, quantity, price, executed_at) VALUES (?, ?, ?, ?, ?)`,
		symbol, side, quantity, price, executedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

// LastTrade implements TradeLog.
func (s *TradeLogStore) LastTrade(symbol, side string) (time.Time, bool, error) {
	var ts int64
	err := s.db.QueryRow(
		`SELECT executed_at FROM trades WHERE symbol = ? AND side = ? ORDER BY executed_at DESC LIMIT 1`,
		symbol, side,
	).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last trade: %w", err)
	}
	return time.Unix(ts, 0), true, nil
}

// FirstBuy implements TradeLog.
func (s *TradeLogStore) FirstBuy(symbol string) (time.Time, bool, error) {
	var ts int64
	err := s.db.QueryRow(
		`SELECT executed_at FROM trades WHERE symbol = ? AND side = 'BUY' ORDER BY executed_at ASC LIMIT 1`,
		symbol,
	).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query first buy: %w", err)
	}
	return time.Unix(ts, 0), true, nil
}

// CountSince implements TradeLog.
func (s *TradeLogStore) CountSince(since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM trades WHERE executed_at >= ?`, since.Unix(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return n, nil
}

// LastTradeTime implements TradeLog.
func (s *TradeLogStore) LastTradeTime() (time.Time, bool, error) {
	var ts int64
	err := s.db.QueryRow(`SELECT executed_at FROM trades ORDER BY executed_at DESC LIMIT 1`).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last trade time: %w", err)
	}
	return time.Unix(ts, 0), true, nil
}
