package uploads

import (
	"context"

	"github.com/pagekeep/pagekeep/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, upload *models.PendingUpload) error
	GetByTicket(ctx context.Context, ticket string) (*models.PendingUpload, error)
	SetResolvedDigest(ctx context.Context, ticket string, digest []byte) error
	Delete(ctx context.Context, ticket string) error
}
