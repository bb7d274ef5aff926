// Package users exposes the slice of account data the attachment service
// needs: avatar blob references, which hard deletion scans and clears.
package users

import (
	"context"
	"fmt"

	"github.com/pagekeep/pagekeep/internal/dbx"
)

// PostgresRepository implements avatar-reference queries over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// SampleByAvatarDigest returns at most limit user ids whose avatar
// references the digest, for audit display.
func (r *PostgresRepository) SampleByAvatarDigest(ctx context.Context, digest []byte, limit int) ([]int64, error) {
	query := `SELECT user_id FROM users WHERE avatar_digest=$1 ORDER BY user_id LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, digest, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample avatar users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepository) CountByAvatarDigest(ctx context.Context, digest []byte) (int64, error) {
	query := `SELECT COUNT(*) FROM users WHERE avatar_digest=$1`
	var count int64
	if err := r.db.QueryRowContext(ctx, query, digest).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count avatar users: %w", err)
	}
	return count, nil
}

// ClearAvatars removes the digest from every profile referencing it and
// returns how many were touched.
func (r *PostgresRepository) ClearAvatars(ctx context.Context, digest []byte) (int64, error) {
	query := `UPDATE users SET avatar_digest=NULL WHERE avatar_digest=$1`
	result, err := r.db.ExecContext(ctx, query, digest)
	if err != nil {
		return 0, fmt.Errorf("failed to clear avatars: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra, nil
}
