package blacklist

import "context"

type Repository interface {
	Add(ctx context.Context, digest []byte, createdBy int64) error
	Remove(ctx context.Context, digest []byte) error
	Exists(ctx context.Context, digest []byte) (bool, error)
}
