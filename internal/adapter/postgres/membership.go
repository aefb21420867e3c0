package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
)

// MembershipRepo projects family membership for recipient enumeration.
type MembershipRepo struct {
	pool *pgxpool.Pool
}

var _ domain.MembershipProvider = (*MembershipRepo)(nil)

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) MembersOf(ctx context.Context, familyID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM family_members WHERE family_id = $1`, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query family members: %w", err)
	}

	members, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to collect family members: %w", err)
	}
	return members, nil
}
