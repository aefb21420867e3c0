package domain

import "context"

// Channel identifies the notification channel a preference applies to.
type Channel int

const (
	ChannelMessages Channel = iota
	ChannelComments
	ChannelReactions
)

func (c Channel) String() string {
	switch c {
	case ChannelMessages:
		return "messages"
	case ChannelComments:
		return "comments"
	case ChannelReactions:
		return "reactions"
	default:
		return "unknown"
	}
}

// PreferenceStore exposes the three layers of mute settings. Lookups return
// (value, ok, err): absence of a record is a normal outcome reported as
// ok=false, never an error. A non-nil error means the store itself is
// unavailable; callers apply the fail-open policy.
type PreferenceStore interface {
	// MemberLevel is the (recipient, family, sender) mute - most specific.
	MemberLevel(ctx context.Context, userID, familyID, memberID int64) (receive bool, ok bool, err error)

	// FamilyLevel is the whole-family opt-out for the main message feed.
	FamilyLevel(ctx context.Context, userID, familyID int64) (receive bool, ok bool, err error)

	// MatrixLevel is the per-channel whole-family opt-out (comments, reactions).
	MatrixLevel(ctx context.Context, userID, familyID int64, channel Channel) (enabled bool, ok bool, err error)
}

// MembershipProvider is a read-only projection of family membership,
// queried once per broadcast.
type MembershipProvider interface {
	MembersOf(ctx context.Context, familyID int64) ([]int64, error)
}

// ReadStatusProvider reports whether a user still has unread comments on a
// message. Absence of a record means unread.
type ReadStatusProvider interface {
	HasUnread(ctx context.Context, userID, messageID int64) (bool, error)
}
