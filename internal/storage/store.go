package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Limits bounds a single stake and seeds new accounts.
type Limits struct {
	MinBet        int64
	MaxBet        int64
	WelcomeTokens int64
	WelcomePoints int64
}

// Store is the single source of truth for users, predictions, bets and
// referrals. One long-lived handle is passed explicitly to every component;
// all cross-request synchronization happens through it.
type Store struct {
	db     *sql.DB
	limits Limits
}

// Open opens the SQLite database at dbPath with WAL mode and runs migrations.
func Open(dbPath string, limits Limits) (*Store, error) {
	path := dbPath
	if path != ":memory:" {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, err
		}
		path = absPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; funneling everything through one pooled
	// connection turns would-be SQLITE_BUSY errors into queueing.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, limits: limits}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// DB returns the underlying connection for services that run their own
// transactions (payout engine).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Limits returns the configured stake bounds.
func (s *Store) Limits() Limits {
	return s.limits
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// runMigrations creates the necessary tables
func (s *Store) runMigrations() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER UNIQUE NOT NULL,
			username TEXT,
			first_name TEXT NOT NULL,
			wallet_address TEXT,
			balance INTEGER NOT NULL DEFAULT 0,
			points INTEGER NOT NULL DEFAULT 0,
			role INTEGER NOT NULL DEFAULT 0,
			referred_by INTEGER,
			referral_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (referred_by) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			creator_id INTEGER NOT NULL,
			question TEXT NOT NULL,
			option_a TEXT,
			option_b TEXT,
			deadline DATETIME,
			status TEXT NOT NULL DEFAULT 'DRAFT',
			outcome TEXT,
			resolved_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (creator_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS bets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			prediction_id INTEGER NOT NULL,
			choice TEXT NOT NULL,
			amount INTEGER NOT NULL,
			placed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, prediction_id),
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (prediction_id) REFERENCES predictions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS referrals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			referrer_id INTEGER NOT NULL,
			referee_id INTEGER UNIQUE NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (referrer_id) REFERENCES users(id),
			FOREIGN KEY (referee_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			tokens INTEGER NOT NULL DEFAULT 0,
			points INTEGER NOT NULL DEFAULT 0,
			source_type TEXT NOT NULL,
			description TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_prediction_id ON bets(prediction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_user_id ON bets(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_status ON predictions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
