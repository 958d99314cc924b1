// Package sqlitestore persists canonical bars in SQLite. The store doubles
// as a bar sink (bars delivered by the feed are written through) and as a
// seed-feed source replaying previously stored bars before broker data.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ibfeed/internal/domain"
	"ibfeed/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store implements ports.BarSink backed by SQLite.
type Store struct {
	db        *sql.DB
	logger    ports.Logger
	symbol    string
	timeframe string

	count   int
	last    domain.Bar
	hasLast bool
}

// Config holds configuration for the SQLite bar store.
type Config struct {
	DBPath    string
	Symbol    string // instrument key the bars are stored under
	Timeframe string // e.g. "1m"
	Logger    ports.Logger
}

// NewStore opens (creating if needed) the bar database and prepares the
// schema. The last stored bar for the configured symbol/timeframe is cached
// so sink lookbacks do not hit the database.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite bar store")
	}
	if cfg.Symbol == "" || cfg.Timeframe == "" {
		return nil, fmt.Errorf("%w: symbol and timeframe are required", ports.ErrConfigurationError)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/bars.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite bar store initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("%w: failed to open database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite bar store initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite bar store initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver behaves best with
	// a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, logger: cfg.Logger, symbol: cfg.Symbol, timeframe: cfg.Timeframe}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize bar schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite bar store initialization failed")
		return nil, err
	}
	if err := s.loadTail(); err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "SQLite bar store ready", map[string]interface{}{
		"path": dbPath, "symbol": cfg.Symbol, "timeframe": cfg.Timeframe, "stored": s.count,
	})
	return s, nil
}

func (s *Store) initializeSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS bars (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol        TEXT    NOT NULL,
		timeframe     TEXT    NOT NULL,
		ts            INTEGER NOT NULL,
		open          REAL    NOT NULL,
		high          REAL    NOT NULL,
		low           REAL    NOT NULL,
		close         REAL    NOT NULL,
		volume        REAL    NOT NULL,
		open_interest INTEGER NOT NULL DEFAULT 0,
		UNIQUE (symbol, timeframe, ts)
	);
	CREATE INDEX IF NOT EXISTS idx_bars_lookup ON bars (symbol, timeframe, ts);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

// loadTail primes the count and last-bar cache from what is already stored.
func (s *Store) loadTail() error {
	row := s.db.QueryRow(
		`SELECT COUNT(*) FROM bars WHERE symbol = ? AND timeframe = ?`, s.symbol, s.timeframe)
	if err := row.Scan(&s.count); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
	}
	if s.count == 0 {
		return nil
	}

	row = s.db.QueryRow(
		`SELECT ts, open, high, low, close, volume, open_interest
		 FROM bars WHERE symbol = ? AND timeframe = ?
		 ORDER BY ts DESC LIMIT 1`, s.symbol, s.timeframe)
	var ts int64
	if err := row.Scan(&ts, &s.last.Open, &s.last.High, &s.last.Low, &s.last.Close,
		&s.last.Volume, &s.last.OpenInterest); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
	}
	s.last.Time = time.Unix(0, ts).UTC()
	s.hasLast = true
	return nil
}

// Append writes one bar through to the database. A bar with a timestamp
// already stored replaces the stored row.
func (s *Store) Append(bar domain.Bar) error {
	_, err := s.db.Exec(
		`INSERT INTO bars (symbol, timeframe, ts, open, high, low, close, volume, open_interest)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (symbol, timeframe, ts) DO UPDATE SET
		   open = excluded.open, high = excluded.high, low = excluded.low,
		   close = excluded.close, volume = excluded.volume, open_interest = excluded.open_interest`,
		s.symbol, s.timeframe, bar.Time.UnixNano(),
		bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.OpenInterest)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
	}
	// Replacing the bar already in the last slot is an update, not growth.
	if !s.hasLast || !bar.Time.Equal(s.last.Time) {
		s.count++
	}
	s.last = bar
	s.hasLast = true
	return nil
}

// Last returns the most recently appended bar, or false when empty.
func (s *Store) Last() (domain.Bar, bool) {
	return s.last, s.hasLast
}

// Len returns the number of bars stored for this symbol/timeframe.
func (s *Store) Len() int { return s.count }

// Seed returns a seed feed replaying every stored bar for this
// symbol/timeframe in timestamp order. The rows are read eagerly so the
// cursor never touches the database during feed production.
func (s *Store) Seed() (*SeedCursor, error) {
	rows, err := s.db.Query(
		`SELECT ts, open, high, low, close, volume, open_interest
		 FROM bars WHERE symbol = ? AND timeframe = ?
		 ORDER BY ts ASC`, s.symbol, s.timeframe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var bar domain.Bar
		var ts int64
		if err := rows.Scan(&ts, &bar.Open, &bar.High, &bar.Low, &bar.Close,
			&bar.Volume, &bar.OpenInterest); err != nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
		}
		bar.Time = time.Unix(0, ts).UTC()
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
	}
	return &SeedCursor{bars: bars}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SeedCursor implements ports.SeedFeed over bars loaded from the store.
type SeedCursor struct {
	bars []domain.Bar
	pos  int
}

// Next returns the next stored bar, or false when exhausted.
func (c *SeedCursor) Next() (domain.Bar, bool) {
	if c.pos >= len(c.bars) {
		return domain.Bar{}, false
	}
	bar := c.bars[c.pos]
	c.pos++
	return bar, true
}

// Len returns the total number of bars the cursor replays.
func (c *SeedCursor) Len() int { return len(c.bars) }
