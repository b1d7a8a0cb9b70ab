package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blackmichael/volume/internal/domain"
	_ "github.com/lib/pq"
)

// Repository implements domain.KeyValueStore using PostgreSQL. It lets
// several client processes share one preference store.
type Repository struct {
	db *sql.DB
}

var _ domain.KeyValueStore = (*Repository)(nil)

// NewRepository connects to PostgreSQL at the given URL, verifies the
// connection, creates the preferences table if needed and returns a new
// Repository. The caller should call Close when the repository is no longer
// needed.
func NewRepository(databaseURL string) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Get retrieves the value stored under key.
func (r *Repository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE key = $1`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query preference %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value stored under key.
func (r *Repository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert preference %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *Repository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete preference %q: %w", key, err)
	}
	return nil
}
