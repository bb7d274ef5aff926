// Package filerevisions persists the append-only revision history of files.
// Rows are immutable once written, except for the hidden-field redaction
// applied by hard deletion.
package filerevisions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pagekeep/pagekeep/internal/common"
	"github.com/pagekeep/pagekeep/internal/dbx"
	"github.com/pagekeep/pagekeep/internal/hashx"
	"github.com/pagekeep/pagekeep/internal/server/models"
)

const revisionColumns = `revision_id, revision_type, created_at, revision_number,
		file_id, page_id, site_id, user_id, name, digest, mime, size, comments, changes, hidden`

// PostgresRepository implements revision storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends a revision row and returns its generated id. The caller
// supplies the revision number; the unique (file_id, revision_number)
// constraint rejects concurrent appends that slipped past the latest-row
// lock, surfaced as common.ErrNotLatestRevision.
func (r *PostgresRepository) Create(ctx context.Context, rev *models.FileRevision) (int64, error) {
	changes, err := marshalFields(rev.Changes)
	if err != nil {
		return 0, err
	}
	hidden, err := marshalFields(rev.Hidden)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO file_revisions
			(revision_type, revision_number, file_id, page_id, site_id, user_id,
			 name, digest, mime, size, comments, changes, hidden)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING revision_id
	`
	var id int64
	err = r.db.QueryRowContext(ctx, query,
		string(rev.RevisionType), rev.RevisionNumber, rev.FileID, rev.PageID, rev.SiteID, rev.UserID,
		rev.Name, rev.Digest.Slice(), rev.Mime, rev.Size, rev.Comments, changes, hidden).Scan(&id)
	if err != nil {
		// A unique violation here means another transaction appended the
		// same revision number after our latest-row read: the caller's
		// token is stale.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, common.ErrNotLatestRevision
		}
		return 0, fmt.Errorf("failed to insert revision: %w", err)
	}
	return id, nil
}

// GetLatest returns the revision with the highest number for the file.
// With forUpdate the row is locked for the duration of the enclosing
// transaction, serializing concurrent appends against the same file.
func (r *PostgresRepository) GetLatest(ctx context.Context, fileID int64, forUpdate bool) (*models.FileRevision, error) {
	query := `
		SELECT ` + revisionColumns + `
		FROM file_revisions WHERE file_id=$1
		ORDER BY revision_number DESC LIMIT 1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanRevision(r.db.QueryRowContext(ctx, query, fileID))
}

func (r *PostgresRepository) GetByNumber(ctx context.Context, fileID int64, number int) (*models.FileRevision, error) {
	query := `
		SELECT ` + revisionColumns + `
		FROM file_revisions WHERE file_id=$1 AND revision_number=$2
	`
	return scanRevision(r.db.QueryRowContext(ctx, query, fileID, number))
}

// List returns all revisions of a file in ascending order.
func (r *PostgresRepository) List(ctx context.Context, fileID int64) ([]*models.FileRevision, error) {
	query := `
		SELECT ` + revisionColumns + `
		FROM file_revisions WHERE file_id=$1
		ORDER BY revision_number
	`
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select revisions: %w", err)
	}
	return scanRevisions(rows)
}

// ListLatestByDigest finds files whose current latest revision references
// the digest. These are the files hard deletion must tombstone so the
// content stops being their visible head.
func (r *PostgresRepository) ListLatestByDigest(ctx context.Context, digest []byte) ([]*LatestReference, error) {
	query := `
		SELECT r1.revision_id, r1.file_id, r1.page_id, r1.site_id
		FROM file_revisions AS r1
		LEFT OUTER JOIN file_revisions AS r2
			ON (r1.file_id = r2.file_id AND r1.revision_number < r2.revision_number)
		WHERE r2.revision_id IS NULL
		AND r1.digest = $1
	`
	rows, err := r.db.QueryContext(ctx, query, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to select latest revisions by digest: %w", err)
	}
	defer rows.Close()

	var result []*LatestReference
	for rows.Next() {
		ref := &LatestReference{}
		if err := rows.Scan(&ref.RevisionID, &ref.FileID, &ref.PageID, &ref.SiteID); err != nil {
			return nil, err
		}
		result = append(result, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListByDigest returns every revision, latest or historical, referencing
// the digest.
func (r *PostgresRepository) ListByDigest(ctx context.Context, digest []byte) ([]*models.FileRevision, error) {
	query := `
		SELECT ` + revisionColumns + `
		FROM file_revisions WHERE digest=$1
		ORDER BY revision_id
	`
	rows, err := r.db.QueryContext(ctx, query, digest)
	if err != nil {
		return nil, fmt.Errorf("failed to select revisions by digest: %w", err)
	}
	return scanRevisions(rows)
}

// Redact overwrites the stored digest and hidden list on a revision row.
// The only caller is the hard-deletion procedure.
func (r *PostgresRepository) Redact(ctx context.Context, revisionID int64, digest []byte, hidden []string) error {
	hiddenJSON, err := marshalFields(hidden)
	if err != nil {
		return err
	}

	query := `UPDATE file_revisions SET digest=$2, hidden=$3 WHERE revision_id=$1`
	result, err := r.db.ExecContext(ctx, query, revisionID, digest, hiddenJSON)
	if err != nil {
		return fmt.Errorf("failed to redact revision: %w", err)
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

func marshalFields(fields []string) ([]byte, error) {
	if fields == nil {
		fields = []string{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal field list: %w", err)
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInto(s rowScanner) (*models.FileRevision, error) {
	rev := &models.FileRevision{}
	var revType string
	var digest, changes, hidden []byte

	err := s.Scan(&rev.RevisionID, &revType, &rev.CreatedAt, &rev.RevisionNumber,
		&rev.FileID, &rev.PageID, &rev.SiteID, &rev.UserID,
		&rev.Name, &digest, &rev.Mime, &rev.Size, &rev.Comments, &changes, &hidden)
	if err != nil {
		return nil, err
	}

	rev.RevisionType = models.RevisionType(revType)
	if rev.Digest, err = hashx.FromSlice(digest); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(changes, &rev.Changes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
	}
	if err := json.Unmarshal(hidden, &rev.Hidden); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hidden: %w", err)
	}
	return rev, nil
}

func scanRevision(row *sql.Row) (*models.FileRevision, error) {
	rev, err := scanInto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to select revision: %w", err)
	}
	return rev, nil
}

func scanRevisions(rows *sql.Rows) ([]*models.FileRevision, error) {
	defer rows.Close()

	var result []*models.FileRevision
	for rows.Next() {
		rev, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
