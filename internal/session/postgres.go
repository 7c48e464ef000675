package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/lure/internal/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS honeypot_sessions (
	session_id TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	stage      TEXT NOT NULL,
	concluded  BOOLEAN NOT NULL DEFAULT false,
	delivery   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists sessions as JSONB documents. Per-session mutual
// exclusion comes from a transaction-scoped advisory lock on the session id,
// so several lure processes can share one database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	return load(ctx, p.pool.QueryRow(ctx, `SELECT state FROM honeypot_sessions WHERE session_id = $1`, id))
}

func (p *PostgresStore) Upsert(ctx context.Context, s *Session) error {
	return p.WithLock(ctx, s.ID, func(cur *Session) error {
		version := cur.Version
		*cur = *s.Clone()
		cur.Version = version
		return nil
	})
}

func (p *PostgresStore) WithLock(ctx context.Context, id string, fn func(s *Session) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}

	s, err := load(ctx, tx.QueryRow(ctx, `SELECT state FROM honeypot_sessions WHERE session_id = $1`, id))
	switch {
	case errors.Is(err, ErrNotFound):
		s = New(id, time.Now().UTC())
	case err != nil:
		return err
	}

	if err := fn(s); err != nil {
		return err
	}

	s.ID = id
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	state, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO honeypot_sessions (session_id, state, stage, concluded, delivery, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id)
		DO UPDATE SET
			state = $2,
			stage = $3,
			concluded = $4,
			delivery = $5,
			updated_at = $7`,
		id, state, s.Stage.String(), s.Concluded, string(s.Delivery), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM honeypot_sessions
		WHERE concluded
		  AND delivery IN ('delivered', 'failed', 'skipped')
		  AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func load(_ context.Context, row pgx.Row) (*Session, error) {
	var state []byte
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(state, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.Ledger == nil {
		s.Ledger = ledger.New()
	}
	return &s, nil
}
