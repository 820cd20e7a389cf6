// Package postgres implements tunacode.SnapshotStore using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	tunacode "github.com/ryumacodes/tunacode"
)

// Store implements tunacode.SnapshotStore backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ tunacode.SnapshotStore = (*Store)(nil)

// New creates a Store using the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the snapshot table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			id           TEXT PRIMARY KEY,
			model        TEXT NOT NULL,
			messages     JSONB NOT NULL,
			total_tokens BIGINT NOT NULL,
			created_at   BIGINT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("postgres: init: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at DESC)`)
	return err
}

// Save upserts a snapshot.
func (s *Store) Save(ctx context.Context, snap tunacode.SessionSnapshot) error {
	payload, err := json.Marshal(snap.Messages)
	if err != nil {
		return fmt.Errorf("postgres: marshal messages: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO snapshots (id, model, messages, total_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			model = EXCLUDED.model,
			messages = EXCLUDED.messages,
			total_tokens = EXCLUDED.total_tokens,
			created_at = EXCLUDED.created_at`,
		snap.ID, snap.Model, payload, snap.TotalTokens, snap.CreatedAt)
	return err
}

// Load returns the snapshot with the given id.
func (s *Store) Load(ctx context.Context, id string) (tunacode.SessionSnapshot, error) {
	var snap tunacode.SessionSnapshot
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, model, messages, total_tokens, created_at
		FROM snapshots WHERE id = $1`, id).
		Scan(&snap.ID, &snap.Model, &payload, &snap.TotalTokens, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, fmt.Errorf("postgres: snapshot %s not found", id)
	}
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(payload, &snap.Messages); err != nil {
		return snap, fmt.Errorf("postgres: unmarshal messages: %w", err)
	}
	return snap, nil
}

// List returns the most recent snapshots, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]tunacode.SessionSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, model, messages, total_tokens, created_at
		FROM snapshots ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tunacode.SessionSnapshot
	for rows.Next() {
		var snap tunacode.SessionSnapshot
		var payload []byte
		if err := rows.Scan(&snap.ID, &snap.Model, &payload, &snap.TotalTokens, &snap.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &snap.Messages); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal messages: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Delete removes a snapshot.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE id = $1`, id)
	return err
}

// Close is a no-op; the pool is externally owned.
func (s *Store) Close() error { return nil }
