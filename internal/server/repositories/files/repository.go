package files

import (
	"context"
	"time"

	"github.com/pagekeep/pagekeep/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.File) (int64, error)
	GetByID(ctx context.Context, fileID int64) (*models.File, error)
	FindLiveByName(ctx context.Context, pageID int64, name string) (*models.File, error)
	ListByPage(ctx context.Context, siteID, pageID int64, deleted *bool) ([]*models.File, error)
	SetName(ctx context.Context, fileID int64, name string) error
	SetPage(ctx context.Context, fileID, pageID int64, name string) error
	SetDeletedAt(ctx context.Context, fileID int64, deletedAt *time.Time) error
}
