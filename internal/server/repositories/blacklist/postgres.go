// Package blacklist persists digests forbidden from re-entering storage.
package blacklist

import (
	"context"
	"fmt"

	"github.com/pagekeep/pagekeep/internal/dbx"
)

// PostgresRepository implements the blacklist over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Add inserts a blacklist entry. Adding an already-present digest is a
// deliberate no-op.
func (r *PostgresRepository) Add(ctx context.Context, digest []byte, createdBy int64) error {
	query := `
		INSERT INTO blob_blacklist (digest, created_by)
		VALUES ($1, $2)
		ON CONFLICT (digest) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, digest, createdBy); err != nil {
		return fmt.Errorf("failed to insert blacklist entry: %w", err)
	}
	return nil
}

// Remove deletes a blacklist entry. Removing an absent digest succeeds.
func (r *PostgresRepository) Remove(ctx context.Context, digest []byte) error {
	query := `DELETE FROM blob_blacklist WHERE digest=$1`
	if _, err := r.db.ExecContext(ctx, query, digest); err != nil {
		return fmt.Errorf("failed to delete blacklist entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Exists(ctx context.Context, digest []byte) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM blob_blacklist WHERE digest=$1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, digest).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists, nil
}
