package collector

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the index was written by a different version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrNotFound is returned for unknown recording ids.
var ErrNotFound = errors.New("recording not found")

// Entry is one indexed upload.
type Entry struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	IP             string    `json:"ip"`
	TimeReceivedNs int64     `json:"time_received_ns"`
	Frames         int       `json:"frames"`
	Leaves         int       `json:"leaves"`
	DurationMs     float64   `json:"duration_ms"`
	SizeBytes      int64     `json:"size_bytes"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Store indexes stored uploads in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (or creates) the index at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: index has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Insert indexes an entry.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recordings (
            id, filename, ip, time_received_ns, frames, leaves, duration_ms, size_bytes, received_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Filename, e.IP, e.TimeReceivedNs, e.Frames, e.Leaves, e.DurationMs, e.SizeBytes,
		e.ReceivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// List returns the most recent entries first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, filename, ip, time_received_ns, frames, leaves, duration_ms, size_bytes, received_at
        FROM recordings ORDER BY time_received_ns DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns one entry.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, ip, time_received_ns, frames, leaves, duration_ms, size_bytes, received_at
        FROM recordings WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Totals summarizes the index.
type Totals struct {
	Recordings int
	Frames     int
	Bytes      int64
}

// Totals returns counts over every entry.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COALESCE(SUM(frames), 0), COALESCE(SUM(size_bytes), 0) FROM recordings",
	).Scan(&t.Recordings, &t.Frames, &t.Bytes)
	if err != nil {
		return Totals{}, fmt.Errorf("count recordings: %w", err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var received string
	if err := row.Scan(&e.ID, &e.Filename, &e.IP, &e.TimeReceivedNs, &e.Frames, &e.Leaves, &e.DurationMs, &e.SizeBytes, &received); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, received)
	if err != nil {
		return Entry{}, fmt.Errorf("parse received_at %q: %w", received, err)
	}
	e.ReceivedAt = t
	return e, nil
}
