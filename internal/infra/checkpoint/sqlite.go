package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the checkpoint in a SQLite table using modernc.org/sqlite
// (pure Go, no CGO). The record is a single row keyed by Key.
type SQLiteStore struct {
	db        *sql.DB
	tableName string
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and
// ensures the checkpoint table exists.
func NewSQLiteStore(ctx context.Context, dbPath, tableName string) (*SQLiteStore, error) {
	if !isSafeIdent(tableName) {
		return nil, errors.Newf("invalid table name: %q", tableName)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create db directory")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Single writer; one connection serializes access.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "failed to apply %s", pragma)
		}
	}

	s := &SQLiteStore{db: db, tableName: tableName}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

func (s *SQLiteStore) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key               TEXT PRIMARY KEY,
		phase_index       INTEGER NOT NULL,
		remaining_seconds INTEGER NOT NULL,
		cycle_index       INTEGER NOT NULL,
		status            TEXT NOT NULL,
		next_phase_index  INTEGER NOT NULL,
		written_at        INTEGER NOT NULL
	)`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "failed to create checkpoint table")
	}
	return nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, r Record) error {
	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s
			(key, phase_index, remaining_seconds, cycle_index, status, next_phase_index, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.tableName)

	_, err := s.db.ExecContext(ctx, query,
		Key, r.PhaseIndex, r.RemainingSeconds, r.CycleIndex, r.Status, r.NextPhaseIndex, r.WrittenAt.UnixMilli())
	if err != nil {
		return errors.Wrap(err, "failed to save checkpoint")
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (Record, error) {
	query := fmt.Sprintf(`
		SELECT phase_index, remaining_seconds, cycle_index, status, next_phase_index, written_at
		FROM %s
		WHERE key = ?
	`, s.tableName)

	var r Record
	var writtenAt int64
	err := s.db.QueryRowContext(ctx, query, Key).Scan(
		&r.PhaseIndex, &r.RemainingSeconds, &r.CycleIndex, &r.Status, &r.NextPhaseIndex, &writtenAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Wrap(err, "failed to load checkpoint")
	}
	r.WrittenAt = time.UnixMilli(writtenAt).UTC()

	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Clear implements Store.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, Key); err != nil {
		return errors.Wrap(err, "failed to clear checkpoint")
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
