// Package prefs decides, per recipient, whether an event is delivered or
// suppressed under the layered mute model.
package prefs

import (
	"context"
	"log/slog"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
)

// Resolver applies mute settings with a fixed precedence:
// member > family > matrix > default (deliver).
//
// Absence of a record at every level means deliver; the model is opt-out.
// A store error fails open: over-delivery is recoverable by the user muting
// the source, silent under-delivery is not.
type Resolver struct {
	store domain.PreferenceStore
}

func NewResolver(store domain.PreferenceStore) *Resolver {
	return &Resolver{store: store}
}

// Suppressed reports whether recipient has muted sender for the given channel
// within a family.
func (r *Resolver) Suppressed(ctx context.Context, recipientID, senderID, familyID int64, channel domain.Channel) bool {
	receive, ok, err := r.store.MemberLevel(ctx, recipientID, familyID, senderID)
	if err != nil {
		r.failOpen(ctx, "member", err)
		return false
	}
	if ok {
		// Most specific record is authoritative, regardless of channel.
		return !receive
	}

	receive, ok, err = r.store.FamilyLevel(ctx, recipientID, familyID)
	if err != nil {
		r.failOpen(ctx, "family", err)
		return false
	}
	if ok && !receive {
		return true
	}

	if channel == domain.ChannelComments || channel == domain.ChannelReactions {
		enabled, ok, err := r.store.MatrixLevel(ctx, recipientID, familyID, channel)
		if err != nil {
			r.failOpen(ctx, "matrix", err)
			return false
		}
		if ok && !enabled {
			return true
		}
	}

	return false
}

// SuppressedBySender reports whether recipient has a member-level mute of
// sender. Used for DMs, which carry no family scope: familyID zero means the
// store checks across all shared families.
func (r *Resolver) SuppressedBySender(ctx context.Context, recipientID, senderID int64) bool {
	receive, ok, err := r.store.MemberLevel(ctx, recipientID, 0, senderID)
	if err != nil {
		r.failOpen(ctx, "member", err)
		return false
	}
	return ok && !receive
}

func (r *Resolver) failOpen(ctx context.Context, level string, err error) {
	metrics.PreferenceLookupFailures.Inc()
	slog.WarnContext(ctx, "Preference lookup failed, delivering anyway", "level", level, "error", err)
}
