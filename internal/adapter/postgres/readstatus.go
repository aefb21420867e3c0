package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
)

// ReadStatusRepo reports comment read markers. No row means unread.
type ReadStatusRepo struct {
	pool *pgxpool.Pool
}

var _ domain.ReadStatusProvider = (*ReadStatusRepo)(nil)

func NewReadStatusRepo(pool *pgxpool.Pool) *ReadStatusRepo {
	return &ReadStatusRepo{pool: pool}
}

func (r *ReadStatusRepo) HasUnread(ctx context.Context, userID, messageID int64) (bool, error) {
	var hasUnread bool
	err := r.pool.QueryRow(ctx,
		`SELECT has_unread_comments FROM message_reads
		 WHERE user_id = $1 AND message_id = $2`,
		userID, messageID).Scan(&hasUnread)

	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read message read status: %w", err)
	}
	return hasUnread, nil
}
