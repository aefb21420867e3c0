package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
)

// PreferenceRepo reads the three mute-preference layers. Absence of a record
// is reported as ok=false; errors mean the store is unreachable and the
// resolver fails open.
type PreferenceRepo struct {
	pool *pgxpool.Pool
}

var _ domain.PreferenceStore = (*PreferenceRepo)(nil)

func NewPreferenceRepo(pool *pgxpool.Pool) *PreferenceRepo {
	return &PreferenceRepo{pool: pool}
}

// MemberLevel looks up the (recipient, family, sender) mute. A zero familyID
// widens the lookup to every family the pair shares, used for DMs where the
// conversation is not scoped to one family: the sender is muted if any
// member-level record mutes them.
func (r *PreferenceRepo) MemberLevel(ctx context.Context, userID, familyID, memberID int64) (bool, bool, error) {
	var (
		receive *bool
		err     error
	)
	if familyID == 0 {
		// bool_and over zero rows is NULL, reported as no record.
		err = r.pool.QueryRow(ctx,
			`SELECT bool_and(receive_messages) FROM member_message_settings
			 WHERE user_id = $1 AND member_user_id = $2`,
			userID, memberID).Scan(&receive)
	} else {
		err = r.pool.QueryRow(ctx,
			`SELECT receive_messages FROM member_message_settings
			 WHERE user_id = $1 AND family_id = $2 AND member_user_id = $3`,
			userID, familyID, memberID).Scan(&receive)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read member-level setting: %w", err)
	}
	if receive == nil {
		return false, false, nil
	}
	return *receive, true, nil
}

func (r *PreferenceRepo) FamilyLevel(ctx context.Context, userID, familyID int64) (bool, bool, error) {
	var receive bool
	err := r.pool.QueryRow(ctx,
		`SELECT receive_messages FROM user_family_message_settings
		 WHERE user_id = $1 AND family_id = $2`,
		userID, familyID).Scan(&receive)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read family-level setting: %w", err)
	}
	return receive, true, nil
}

func (r *PreferenceRepo) MatrixLevel(ctx context.Context, userID, familyID int64, channel domain.Channel) (bool, bool, error) {
	var column string
	switch channel {
	case domain.ChannelComments:
		column = "comments_enabled"
	case domain.ChannelReactions:
		column = "reactions_enabled"
	default:
		// The matrix has no column for the main message feed.
		return false, false, nil
	}

	var enabled bool
	err := r.pool.QueryRow(ctx,
		// column is from the closed switch above, never caller input.
		fmt.Sprintf(`SELECT %s FROM user_notification_matrix WHERE user_id = $1 AND family_id = $2`, column),
		userID, familyID).Scan(&enabled)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read matrix setting: %w", err)
	}
	return enabled, true, nil
}
