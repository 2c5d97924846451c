package tokenstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the pair in teamdash.tokens, one row per (profile, key).
// The pool is owned by the caller.
type PostgresStore struct {
	pool    *pgxpool.Pool
	profile string
}

// NewPostgresStore returns a store scoped to profile.
func NewPostgresStore(pool *pgxpool.Pool, profile string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrConfig)
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	return &PostgresStore{pool: pool, profile: profile}, nil
}

// EnsureSchema creates the schema and table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS teamdash;
		CREATE TABLE IF NOT EXISTS teamdash.tokens (
			profile    TEXT        NOT NULL,
			key        TEXT        NOT NULL,
			value      TEXT        NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (profile, key)
		)
	`)
	return err
}

func (s *PostgresStore) Load(ctx context.Context) (Pair, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, value
		FROM teamdash.tokens
		WHERE profile = $1 AND key IN ($2, $3)
	`, s.profile, KeyAccess, KeyRefresh)
	if err != nil {
		return Pair{}, err
	}
	defer rows.Close()

	var p Pair
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Pair{}, err
		}
		switch k {
		case KeyAccess:
			p.Access = v
		case KeyRefresh:
			p.Refresh = v
		}
	}
	return p, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, p Pair) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Empty() {
		return s.Clear(ctx)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, kv := range [...][2]string{{KeyAccess, p.Access}, {KeyRefresh, p.Refresh}} {
		if _, err := tx.Exec(ctx, `
			INSERT INTO teamdash.tokens (profile, key, value, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (profile, key)
			DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
		`, s.profile, kv[0], kv[1]); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM teamdash.tokens
		WHERE profile = $1
	`, s.profile)
	return err
}
