package filerevisions

import (
	"context"

	"github.com/pagekeep/pagekeep/internal/server/models"
)

// LatestReference identifies a file whose current latest revision points at
// a particular digest, as found by the hard-deletion scan.
type LatestReference struct {
	RevisionID int64
	FileID     int64
	PageID     int64
	SiteID     int64
}

type Repository interface {
	Create(ctx context.Context, rev *models.FileRevision) (int64, error)
	GetLatest(ctx context.Context, fileID int64, forUpdate bool) (*models.FileRevision, error)
	GetByNumber(ctx context.Context, fileID int64, number int) (*models.FileRevision, error)
	List(ctx context.Context, fileID int64) ([]*models.FileRevision, error)
	ListLatestByDigest(ctx context.Context, digest []byte) ([]*LatestReference, error)
	ListByDigest(ctx context.Context, digest []byte) ([]*models.FileRevision, error)
	Redact(ctx context.Context, revisionID int64, digest []byte, hidden []string) error
}
