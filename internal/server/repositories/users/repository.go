package users

import "context"

type Repository interface {
	SampleByAvatarDigest(ctx context.Context, digest []byte, limit int) ([]int64, error)
	CountByAvatarDigest(ctx context.Context, digest []byte) (int64, error)
	ClearAvatars(ctx context.Context, digest []byte) (int64, error)
}
