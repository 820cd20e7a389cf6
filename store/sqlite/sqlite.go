// Package sqlite implements tunacode.SnapshotStore using pure-Go SQLite.
// Zero CGO required. Message logs are stored as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	tunacode "github.com/ryumacodes/tunacode"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements tunacode.SnapshotStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ tunacode.SnapshotStore = (*Store)(nil)

// nopLogger discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// A single shared connection serializes all writers, eliminating
// SQLITE_BUSY errors from concurrent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init creates the snapshot table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			id           TEXT PRIMARY KEY,
			model        TEXT NOT NULL,
			messages     TEXT NOT NULL,
			total_tokens INTEGER NOT NULL,
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at DESC);
	`)
	return err
}

// Save inserts or replaces a snapshot.
func (s *Store) Save(ctx context.Context, snap tunacode.SessionSnapshot) error {
	payload, err := json.Marshal(snap.Messages)
	if err != nil {
		return fmt.Errorf("sqlite: marshal messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (id, model, messages, total_tokens, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Model, string(payload), snap.TotalTokens, snap.CreatedAt)
	if err == nil {
		s.logger.Debug("sqlite: snapshot saved", "id", snap.ID, "messages", len(snap.Messages))
	}
	return err
}

// Load returns the snapshot with the given id.
func (s *Store) Load(ctx context.Context, id string) (tunacode.SessionSnapshot, error) {
	var snap tunacode.SessionSnapshot
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, model, messages, total_tokens, created_at
		FROM snapshots WHERE id = ?`, id).
		Scan(&snap.ID, &snap.Model, &payload, &snap.TotalTokens, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("sqlite: snapshot %s not found", id)
	}
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal([]byte(payload), &snap.Messages); err != nil {
		return snap, fmt.Errorf("sqlite: unmarshal messages: %w", err)
	}
	return snap, nil
}

// List returns the most recent snapshots, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]tunacode.SessionSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, messages, total_tokens, created_at
		FROM snapshots ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tunacode.SessionSnapshot
	for rows.Next() {
		var snap tunacode.SessionSnapshot
		var payload string
		if err := rows.Scan(&snap.ID, &snap.Model, &payload, &snap.TotalTokens, &snap.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &snap.Messages); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal messages: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Delete removes a snapshot.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
