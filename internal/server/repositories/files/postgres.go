// Package files persists the logical attachment entities. Revision history
// lives in the filerevisions package; this package owns only the
// current-state projection.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pagekeep/pagekeep/internal/common"
	"github.com/pagekeep/pagekeep/internal/dbx"
	"github.com/pagekeep/pagekeep/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new file row and returns its generated id.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) (int64, error) {
	query := `
		INSERT INTO files (site_id, page_id, name)
		VALUES ($1, $2, $3)
		RETURNING file_id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, file.SiteID, file.PageID, file.Name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert file: %w", err)
	}
	return id, nil
}

// GetByID returns the file regardless of deletion state.
func (r *PostgresRepository) GetByID(ctx context.Context, fileID int64) (*models.File, error) {
	query := `
		SELECT file_id, site_id, page_id, name, created_at, updated_at, deleted_at
		FROM files WHERE file_id=$1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, fileID))
}

// FindLiveByName returns the non-deleted file with the given name on the
// page, or common.ErrNotFound.
func (r *PostgresRepository) FindLiveByName(ctx context.Context, pageID int64, name string) (*models.File, error) {
	query := `
		SELECT file_id, site_id, page_id, name, created_at, updated_at, deleted_at
		FROM files WHERE page_id=$1 AND name=$2 AND deleted_at IS NULL
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, pageID, name))
}

// ListByPage returns files on a page. With deleted nil all files are
// returned; otherwise only tombstoned (true) or live (false) ones.
func (r *PostgresRepository) ListByPage(ctx context.Context, siteID, pageID int64, deleted *bool) ([]*models.File, error) {
	query := `
		SELECT file_id, site_id, page_id, name, created_at, updated_at, deleted_at
		FROM files WHERE site_id=$1 AND page_id=$2
	`
	switch {
	case deleted == nil:
	case *deleted:
		query += ` AND deleted_at IS NOT NULL`
	default:
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY file_id`

	rows, err := r.db.QueryContext(ctx, query, siteID, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		var item models.File
		if err := rows.Scan(&item.ID, &item.SiteID, &item.PageID, &item.Name,
			&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SetName(ctx context.Context, fileID int64, name string) error {
	query := `UPDATE files SET name=$2, updated_at=now() WHERE file_id=$1`
	return r.execOne(ctx, query, fileID, name)
}

// SetPage moves the file to another page, updating its name at the same
// time (moves may rename to avoid conflicts on the destination).
func (r *PostgresRepository) SetPage(ctx context.Context, fileID, pageID int64, name string) error {
	query := `UPDATE files SET page_id=$2, name=$3, updated_at=now() WHERE file_id=$1`
	return r.execOne(ctx, query, fileID, pageID, name)
}

// SetDeletedAt sets or clears the tombstone marker.
func (r *PostgresRepository) SetDeletedAt(ctx context.Context, fileID int64, deletedAt *time.Time) error {
	query := `UPDATE files SET deleted_at=$2, updated_at=now() WHERE file_id=$1`
	return r.execOne(ctx, query, fileID, deletedAt)
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.File, error) {
	file := &models.File{}
	err := row.Scan(&file.ID, &file.SiteID, &file.PageID, &file.Name,
		&file.CreatedAt, &file.UpdatedAt, &file.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return file, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
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
