package domain

import "fmt"

// EventKind is the closed set of realtime event types pushed to clients.
type EventKind int

const (
	KindNewMessage EventKind = iota
	KindFamilyMessage
	KindComment
	KindReaction
	KindCommentCount
	KindDMMessage
	KindInvitation
)

func (k EventKind) String() string {
	switch k {
	case KindNewMessage:
		return "new_message"
	case KindFamilyMessage:
		return "family_message"
	case KindComment:
		return "comment"
	case KindReaction:
		return "reaction"
	case KindCommentCount:
		return "comment_count"
	case KindDMMessage:
		return "dm_message"
	case KindInvitation:
		return "invitation"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Envelope is one realtime event as raised by a domain service. It is created
// by the caller, immutable, and consumed exactly once per broadcast.
//
// FamilyID is zero for DM and invitation events; RecipientID is only set for
// single-recipient kinds (DM, invitation). MessageID carries the parent message
// for comment, reaction and comment-count events.
type Envelope struct {
	Kind          EventKind
	SenderID      int64
	FamilyID      int64
	RecipientID   int64
	MessageID     int64
	CommentCount  int
	ExcludeUserID int64
	Payload       any
}
