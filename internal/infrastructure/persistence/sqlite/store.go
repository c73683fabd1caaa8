// Package sqlite implements the record store on a local SQLite file using
// the pure-Go modernc.org/sqlite driver. It is the default backend for the
// command-line tool.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/domain/shared"
	"github.com/alem-hub/counseling-hub/internal/domain/student"
	"github.com/alem-hub/counseling-hub/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS counseling_records (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	payload TEXT NOT NULL,
	version INTEGER NOT NULL,
	updated_at DATETIME NOT NULL
);

INSERT OR IGNORE INTO counseling_records (id, payload, version, updated_at)
VALUES (1, '[]', 0, CURRENT_TIMESTAMP);

CREATE TABLE IF NOT EXISTS allocation_cycles (
	cycle_id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	assigned INTEGER NOT NULL,
	unplaced INTEGER NOT NULL,
	overrides INTEGER NOT NULL,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_allocation_cycles_started ON allocation_cycles(started_at);
`

// Config holds SQLite settings.
type Config struct {
	// Path is the database file. ":memory:" keeps everything in memory.
	Path string

	// BusyTimeout is how long a writer waits for a locked database.
	BusyTimeout time.Duration
}

// DefaultConfig returns a file in the working directory.
func DefaultConfig() Config {
	return Config{
		Path:        "counseling.db",
		BusyTimeout: 5 * time.Second,
	}
}

// DSN returns the driver connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		c.Path, c.BusyTimeout.Milliseconds())
}

// Store is a student.Repository backed by a single SQLite row.
type Store struct {
	db          *sql.DB
	path        string
	consistency student.Consistency
	log         *logger.Logger
}

// Open opens (and creates if needed) the database and its schema.
func Open(ctx context.Context, cfg Config, consistency student.Consistency, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}
	// one writer at a time; the store is rewritten as a whole anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}

	return &Store{
		db:          db,
		path:        cfg.Path,
		consistency: consistency,
		log:         log.With(logger.Component("sqlite_store"), logger.String("path", cfg.Path)),
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping implements student.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load implements student.Repository.
func (s *Store) Load(ctx context.Context) (*student.Snapshot, error) {
	var (
		payload string
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM counseling_records WHERE id = 1`,
	).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return student.NewSnapshot(nil, 0), nil
	}
	if err != nil {
		return nil, wrapErr("Load", err)
	}

	records, err := student.DecodeRecords([]byte(payload))
	if err != nil {
		s.log.Warn("stored records are unreadable, treating store as empty", logger.Err(err))
		records = nil
	}
	return student.NewSnapshot(records, version), nil
}

// Save implements student.Repository.
func (s *Store) Save(ctx context.Context, snap *student.Snapshot) error {
	data, err := student.EncodeRecords(snap.Records)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	var row *sql.Row
	if s.consistency.IsOptimistic() {
		row = s.db.QueryRowContext(ctx, `
			UPDATE counseling_records
			SET payload = ?, version = version + 1, updated_at = ?
			WHERE id = 1 AND version = ?
			RETURNING version`, string(data), now, snap.Version)
	} else {
		row = s.db.QueryRowContext(ctx, `
			UPDATE counseling_records
			SET payload = ?, version = version + 1, updated_at = ?
			WHERE id = 1
			RETURNING version`, string(data), now)
	}

	var version int64
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shared.ErrStaleSnapshot
		}
		return wrapErr("Save", err)
	}
	snap.Version = version
	return nil
}

// RecordCycle stores the outcome of an allocation cycle.
func (s *Store) RecordCycle(ctx context.Context, res *allocation.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("sqlite: encode cycle: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO allocation_cycles (cycle_id, started_at, assigned, unplaced, overrides, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		res.CycleID, res.StartedAt,
		res.Count(allocation.ChoiceFirst)+res.Count(allocation.ChoiceSecond),
		res.Count(allocation.ChoiceNone),
		res.Count(allocation.ChoiceOverride),
		string(payload),
	)
	if err != nil {
		return wrapErr("RecordCycle", err)
	}
	return nil
}

// CycleCount returns how many allocation cycles were recorded.
func (s *Store) CycleCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM allocation_cycles`).Scan(&n); err != nil {
		return 0, wrapErr("CycleCount", err)
	}
	return n, nil
}

func wrapErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError("sqlite", op, shared.ErrServiceUnavailable, "sqlite query failed", err)
}
