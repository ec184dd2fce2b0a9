// Package postgres provides a PostgreSQL-backed session store.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docintel/docintel/agent"
	"github.com/docintel/docintel/session"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements session.Store on PostgreSQL. Each session is one row
// holding the encoded state as JSONB.
type Store struct {
	pool      DBPool
	tableName string
}

// Options configures the Postgres connection.
type Options struct {
	ConnString string
	TableName  string // Default "sessions"
}

// New creates a Postgres session store.
func New(ctx context.Context, opts Options) (*Store, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewWithPool(pool, opts.TableName), nil
}

// NewWithPool creates a store over an existing pool. Useful for testing
// with mocks.
func NewWithPool(pool DBPool, tableName string) *Store {
	if tableName == "" {
		tableName = "sessions"
	}
	return &Store{pool: pool, tableName: tableName}
}

// InitSchema creates the session table if it doesn't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			state JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, sessionID string) (agent.State, error) {
	query := fmt.Sprintf("SELECT state FROM %s WHERE id = $1", s.tableName)

	var data []byte
	err := s.pool.QueryRow(ctx, query, sessionID).Scan(&data)
	if err != nil {
		if err == pgx.ErrNoRows {
			return agent.State{}, session.ErrNotFound
		}
		return agent.State{}, fmt.Errorf("failed to load session: %w", err)
	}
	return session.DecodeState(data)
}

// Save implements session.Store.
func (s *Store) Save(ctx context.Context, sessionID string, state agent.State) error {
	data, err := session.EncodeState(state)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = now()
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query, sessionID, data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
