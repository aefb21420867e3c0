// Package fanout turns one domain event into a set of independent unicast
// sends, one per eligible recipient, after filtering through mute preferences.
package fanout

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
	"github.com/anthonypate54/familynest-backend-sub002/internal/platform/correlation"
)

// suppressionPolicy decides per recipient whether an event is muted.
// Implemented by prefs.Resolver.
type suppressionPolicy interface {
	Suppressed(ctx context.Context, recipientID, senderID, familyID int64, channel domain.Channel) bool
	SuppressedBySender(ctx context.Context, recipientID, senderID int64) bool
}

// Broadcaster fans events out to per-recipient destinations. Sends within one
// broadcast run sequentially and are individually fault-isolated: a failing
// recipient reduces the delivered count and nothing else. Broadcast methods
// never return an error; the caller's transaction must not fail because a
// push did.
type Broadcaster struct {
	membership domain.MembershipProvider
	policy     suppressionPolicy
	readStatus domain.ReadStatusProvider
	pusher     domain.Pusher
	clock      clockwork.Clock
}

func NewBroadcaster(
	membership domain.MembershipProvider,
	policy suppressionPolicy,
	readStatus domain.ReadStatusProvider,
	pusher domain.Pusher,
	clock clockwork.Clock,
) *Broadcaster {
	return &Broadcaster{
		membership: membership,
		policy:     policy,
		readStatus: readStatus,
		pusher:     pusher,
		clock:      clock,
	}
}

// Dispatch routes an envelope to the broadcast method for its kind and
// returns the delivered count.
func (b *Broadcaster) Dispatch(ctx context.Context, env domain.Envelope) int {
	switch env.Kind {
	case domain.KindFamilyMessage:
		return b.BroadcastFamilyMessage(ctx, env.SenderID, env.FamilyID, env.Payload)
	case domain.KindNewMessage:
		return b.BroadcastNewMessage(ctx, env.SenderID, env.FamilyID, env.Payload)
	case domain.KindComment:
		return b.BroadcastComment(ctx, env.SenderID, env.FamilyID, env.MessageID, env.Payload)
	case domain.KindReaction:
		return b.BroadcastReaction(ctx, env.SenderID, env.FamilyID, env.Payload)
	case domain.KindCommentCount:
		return b.BroadcastCommentCount(ctx, env.FamilyID, env.MessageID, env.CommentCount, env.ExcludeUserID)
	case domain.KindDMMessage:
		return b.BroadcastDMMessage(ctx, env.SenderID, env.RecipientID, env.Payload)
	case domain.KindInvitation:
		return b.BroadcastInvitation(ctx, env.RecipientID, env.Payload)
	default:
		slog.WarnContext(ctx, "Unknown event kind, dropping", "kind", env.Kind)
		return 0
	}
}

// BroadcastFamilyMessage pushes a family-feed message to every non-muted
// member and, best effort, once to the legacy shared family destination.
func (b *Broadcaster) BroadcastFamilyMessage(ctx context.Context, senderID, familyID int64, payload any) int {
	ctx, finish := b.begin(ctx, domain.KindFamilyMessage)
	defer finish()

	recipients, err := b.membersOf(ctx, familyID, domain.KindFamilyMessage)
	if err != nil {
		return 0
	}

	delivered := 0
	for _, recipientID := range recipients {
		if b.policy.Suppressed(ctx, recipientID, senderID, familyID, domain.ChannelMessages) {
			b.suppressed(ctx, domain.KindFamilyMessage, recipientID)
			continue
		}
		if b.send(ctx, domain.KindFamilyMessage, recipientID, domain.UserFamilyDest(recipientID), payload) {
			delivered++
		}
	}

	// Legacy shared destination: exactly one publish regardless of
	// per-recipient suppression. Older clients still subscribe to it.
	if err := b.pusher.Publish(ctx, domain.FamilyDest(familyID), payload); err != nil {
		slog.WarnContext(ctx, "Legacy family broadcast failed", "family_id", familyID, "error", err)
	}

	slog.InfoContext(ctx, "Family message fan-out complete",
		"family_id", familyID, "recipients", len(recipients), "delivered", delivered)
	return delivered
}

// BroadcastNewMessage pushes to the per-user message feed. Same recipient
// enumeration and channel as the family feed, no legacy destination.
func (b *Broadcaster) BroadcastNewMessage(ctx context.Context, senderID, familyID int64, payload any) int {
	ctx, finish := b.begin(ctx, domain.KindNewMessage)
	defer finish()

	recipients, err := b.membersOf(ctx, familyID, domain.KindNewMessage)
	if err != nil {
		return 0
	}

	delivered := 0
	for _, recipientID := range recipients {
		if b.policy.Suppressed(ctx, recipientID, senderID, familyID, domain.ChannelMessages) {
			b.suppressed(ctx, domain.KindNewMessage, recipientID)
			continue
		}
		if b.send(ctx, domain.KindNewMessage, recipientID, domain.UserMessagesDest(recipientID), payload) {
			delivered++
		}
	}
	return delivered
}

// BroadcastComment pushes a comment to the members of the parent message's
// family, filtered on the comments channel.
func (b *Broadcaster) BroadcastComment(ctx context.Context, senderID, familyID, parentMessageID int64, payload any) int {
	ctx, finish := b.begin(ctx, domain.KindComment)
	defer finish()

	recipients, err := b.membersOf(ctx, familyID, domain.KindComment)
	if err != nil {
		return 0
	}

	delivered := 0
	for _, recipientID := range recipients {
		if b.policy.Suppressed(ctx, recipientID, senderID, familyID, domain.ChannelComments) {
			b.suppressed(ctx, domain.KindComment, recipientID)
			continue
		}
		if b.send(ctx, domain.KindComment, recipientID, domain.UserCommentsDest(recipientID, parentMessageID), payload) {
			delivered++
		}
	}
	return delivered
}

// BroadcastReaction pushes a reaction to family members, filtered on the
// reactions channel.
func (b *Broadcaster) BroadcastReaction(ctx context.Context, senderID, familyID int64, payload any) int {
	ctx, finish := b.begin(ctx, domain.KindReaction)
	defer finish()

	recipients, err := b.membersOf(ctx, familyID, domain.KindReaction)
	if err != nil {
		return 0
	}

	delivered := 0
	for _, recipientID := range recipients {
		if b.policy.Suppressed(ctx, recipientID, senderID, familyID, domain.ChannelReactions) {
			b.suppressed(ctx, domain.KindReaction, recipientID)
			continue
		}
		if b.send(ctx, domain.KindReaction, recipientID, domain.UserReactionsDest(recipientID), payload) {
			delivered++
		}
	}
	return delivered
}

// commentCountPayload is the wire body for comment-count updates. The unread
// flag is resolved per recipient, so each recipient gets its own payload.
type commentCountPayload struct {
	MessageID         int64 `json:"messageId"`
	CommentCount      int   `json:"commentCount"`
	HasUnreadComments bool  `json:"hasUnreadComments"`
}

// BroadcastCommentCount pushes an updated comment count to family members,
// skipping excludeUserID (usually the comment author). The per-recipient
// unread flag defaults to true when the read-status store has no record or
// fails.
func (b *Broadcaster) BroadcastCommentCount(ctx context.Context, familyID, messageID int64, count int, excludeUserID int64) int {
	ctx, finish := b.begin(ctx, domain.KindCommentCount)
	defer finish()

	recipients, err := b.membersOf(ctx, familyID, domain.KindCommentCount)
	if err != nil {
		return 0
	}

	delivered := 0
	for _, recipientID := range recipients {
		if recipientID == excludeUserID {
			continue
		}
		if b.policy.Suppressed(ctx, recipientID, 0, familyID, domain.ChannelComments) {
			b.suppressed(ctx, domain.KindCommentCount, recipientID)
			continue
		}

		payload := commentCountPayload{
			MessageID:         messageID,
			CommentCount:      count,
			HasUnreadComments: b.hasUnread(ctx, recipientID, messageID),
		}
		if b.send(ctx, domain.KindCommentCount, recipientID, domain.UserCommentCountsDest(recipientID), payload) {
			delivered++
		}
	}
	return delivered
}

// BroadcastDMMessage pushes a direct message to its single recipient over the
// dm-list and dm-thread destinations. Only a member-level mute of the sender
// suppresses DMs; family and matrix settings never apply.
func (b *Broadcaster) BroadcastDMMessage(ctx context.Context, senderID, recipientID int64, payload any) int {
	ctx, finish := b.begin(ctx, domain.KindDMMessage)
	defer finish()

	if b.policy.SuppressedBySender(ctx, recipientID, senderID) {
		b.suppressed(ctx, domain.KindDMMessage, recipientID)
		return 0
	}

	delivered := 0
	for _, dest := range []string{domain.DMListDest(recipientID), domain.DMThreadDest(recipientID)} {
		if err := b.pusher.Publish(ctx, dest, payload); err != nil {
			metrics.FanoutSendFailuresTotal.WithLabelValues(domain.KindDMMessage.String()).Inc()
			slog.ErrorContext(ctx, "DM publish failed", "recipient_id", recipientID, "destination", dest, "error", err)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		metrics.FanoutDeliveredTotal.WithLabelValues(domain.KindDMMessage.String()).Inc()
	}
	return delivered
}

// BroadcastInvitation pushes a family invitation to its recipient. No
// suppression: the invitee has no preference records for a family they are
// not in yet.
func (b *Broadcaster) BroadcastInvitation(ctx context.Context, userID int64, payload any) int {
	ctx, finish := b.begin(ctx, domain.KindInvitation)
	defer finish()

	if b.send(ctx, domain.KindInvitation, userID, domain.UserInvitationsDest(userID), payload) {
		return 1
	}
	return 0
}

// begin stamps the context with a correlation ID and starts the duration
// observation for one broadcast.
func (b *Broadcaster) begin(ctx context.Context, kind domain.EventKind) (context.Context, func()) {
	ctx = correlation.Ensure(ctx)
	start := b.clock.Now()
	return ctx, func() {
		metrics.FanoutDuration.WithLabelValues(kind.String()).Observe(b.clock.Since(start).Seconds())
	}
}

// hasUnread defaults to true when the read-status store fails, matching the
// no-record default: an unknown state is presented as unread.
func (b *Broadcaster) hasUnread(ctx context.Context, userID, messageID int64) bool {
	unread, err := b.readStatus.HasUnread(ctx, userID, messageID)
	if err != nil {
		slog.WarnContext(ctx, "Read-status lookup failed, defaulting to unread",
			"user_id", userID, "message_id", messageID, "error", err)
		return true
	}
	return unread
}

func (b *Broadcaster) membersOf(ctx context.Context, familyID int64, kind domain.EventKind) ([]int64, error) {
	recipients, err := b.membership.MembersOf(ctx, familyID)
	if err != nil {
		slog.ErrorContext(ctx, "Membership lookup failed, dropping broadcast",
			"family_id", familyID, "kind", kind.String(), "error", err)
		return nil, err
	}
	return recipients, nil
}

// send performs one isolated unicast. An offline recipient is a normal
// outcome, not a failure.
func (b *Broadcaster) send(ctx context.Context, kind domain.EventKind, recipientID int64, destination string, payload any) bool {
	err := b.pusher.SendToUser(ctx, recipientID, destination, payload)
	if err == nil {
		metrics.FanoutDeliveredTotal.WithLabelValues(kind.String()).Inc()
		return true
	}
	if errors.Is(err, domain.ErrNoRecipient) {
		slog.DebugContext(ctx, "Recipient offline, skipping", "recipient_id", recipientID, "destination", destination)
		return false
	}
	metrics.FanoutSendFailuresTotal.WithLabelValues(kind.String()).Inc()
	slog.ErrorContext(ctx, "Send failed for recipient",
		"recipient_id", recipientID, "destination", destination, "kind", kind.String(), "error", err)
	return false
}

func (b *Broadcaster) suppressed(ctx context.Context, kind domain.EventKind, recipientID int64) {
	metrics.FanoutSuppressedTotal.WithLabelValues(kind.String()).Inc()
	slog.DebugContext(ctx, "Recipient muted, suppressing", "recipient_id", recipientID, "kind", kind.String())
}
