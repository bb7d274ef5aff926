// Package uploads persists pending upload tickets: the bookkeeping between
// presign issuance and blob finalization.
package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pagekeep/pagekeep/internal/common"
	"github.com/pagekeep/pagekeep/internal/dbx"
	"github.com/pagekeep/pagekeep/internal/server/models"
)

// PostgresRepository implements pending upload storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, upload *models.PendingUpload) error {
	query := `
		INSERT INTO pending_uploads (ticket, temp_path, expected_length, created_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		upload.Ticket, upload.TempPath, upload.ExpectedLength, upload.CreatedBy, upload.CreatedAt, upload.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert pending upload: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByTicket(ctx context.Context, ticket string) (*models.PendingUpload, error) {
	query := `
		SELECT ticket, temp_path, expected_length, created_by, created_at, expires_at, resolved_digest
		FROM pending_uploads WHERE ticket=$1
	`
	upload := &models.PendingUpload{}
	err := r.db.QueryRowContext(ctx, query, ticket).Scan(
		&upload.Ticket, &upload.TempPath, &upload.ExpectedLength,
		&upload.CreatedBy, &upload.CreatedAt, &upload.ExpiresAt, &upload.ResolvedDigest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select pending upload: %w", err)
	}
	return upload, nil
}

// SetResolvedDigest marks the ticket as consumed: the bytes now live at the
// permanent digest key, so a repeated finalize must not touch the temporary
// location again.
func (r *PostgresRepository) SetResolvedDigest(ctx context.Context, ticket string, digest []byte) error {
	query := `UPDATE pending_uploads SET resolved_digest=$2 WHERE ticket=$1`
	result, err := r.db.ExecContext(ctx, query, ticket, digest)
	if err != nil {
		return fmt.Errorf("failed to set resolved digest: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ticket string) error {
	query := `DELETE FROM pending_uploads WHERE ticket=$1`
	if _, err := r.db.ExecContext(ctx, query, ticket); err != nil {
		return fmt.Errorf("failed to delete pending upload: %w", err)
	}
	return nil
}
