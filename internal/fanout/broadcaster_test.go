package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
)

type fakeMembership struct {
	families map[int64][]int64
	err      error
}

func (f *fakeMembership) MembersOf(_ context.Context, familyID int64) ([]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.families[familyID], nil
}

type fakePolicy struct {
	// muted holds "recipient:sender:family:channel" keys
	muted map[string]bool
	// dmMuted holds "recipient:sender" keys
	dmMuted map[string]bool
}

func (f *fakePolicy) Suppressed(_ context.Context, recipientID, senderID, familyID int64, channel domain.Channel) bool {
	return f.muted[fmt.Sprintf("%d:%d:%d:%s", recipientID, senderID, familyID, channel)]
}

func (f *fakePolicy) SuppressedBySender(_ context.Context, recipientID, senderID int64) bool {
	return f.dmMuted[fmt.Sprintf("%d:%d", recipientID, senderID)]
}

type sentRecord struct {
	userID      int64
	destination string
	payload     any
}

type fakePusher struct {
	mu        sync.Mutex
	sent      []sentRecord
	published []sentRecord
	offline   map[int64]bool
	failFor   map[int64]error
}

func (f *fakePusher) SendToUser(_ context.Context, userID int64, destination string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline[userID] {
		return domain.ErrNoRecipient
	}
	if err := f.failFor[userID]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentRecord{userID, destination, payload})
	return nil
}

func (f *fakePusher) Publish(_ context.Context, destination string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, sentRecord{0, destination, payload})
	return nil
}

func (f *fakePusher) sentTo(userID int64) []sentRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentRecord
	for _, rec := range f.sent {
		if rec.userID == userID {
			out = append(out, rec)
		}
	}
	return out
}

type fakeReadStatus struct {
	unread map[int64]bool // keyed by userID
	err    error
}

func (f *fakeReadStatus) HasUnread(_ context.Context, userID, _ int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	v, ok := f.unread[userID]
	if !ok {
		return true, nil
	}
	return v, nil
}

func newTestBroadcaster(members *fakeMembership, policy *fakePolicy, reads *fakeReadStatus, pusher *fakePusher) *Broadcaster {
	if policy.muted == nil {
		policy.muted = map[string]bool{}
	}
	if policy.dmMuted == nil {
		policy.dmMuted = map[string]bool{}
	}
	return NewBroadcaster(members, policy, reads, pusher, clockwork.NewFakeClock())
}

func TestBroadcastFamilyMessage_MemberMuteSuppressesOnlyThatRecipient(t *testing.T) {
	// Family 10 = {1, 2, 3}; user 1 sends; user 2 has a member-level mute of 1.
	members := &fakeMembership{families: map[int64][]int64{10: {1, 2, 3}}}
	policy := &fakePolicy{muted: map[string]bool{"2:1:10:messages": true}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, policy, &fakeReadStatus{}, pusher)

	delivered := b.BroadcastFamilyMessage(context.Background(), 1, 10, "dinner at 6")

	assert.Equal(t, 2, delivered)
	assert.Empty(t, pusher.sentTo(2))
	require.Len(t, pusher.sentTo(3), 1)
	assert.Equal(t, "/user/3/family", pusher.sentTo(3)[0].destination)

	// Legacy destination receives exactly one publish regardless of suppression.
	require.Len(t, pusher.published, 1)
	assert.Equal(t, "/family/10", pusher.published[0].destination)
}

func TestBroadcastFamilyMessage_MembershipFailureDropsBroadcast(t *testing.T) {
	members := &fakeMembership{err: errors.New("db down")}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, &fakePolicy{}, &fakeReadStatus{}, pusher)

	assert.Zero(t, b.BroadcastFamilyMessage(context.Background(), 1, 10, "x"))
	assert.Empty(t, pusher.sent)
}

func TestBroadcastNewMessage_NoLegacyDestination(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {1, 2}}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, &fakePolicy{}, &fakeReadStatus{}, pusher)

	delivered := b.BroadcastNewMessage(context.Background(), 1, 10, "hi")

	assert.Equal(t, 2, delivered)
	assert.Empty(t, pusher.published)
	assert.Equal(t, "/user/2/messages", pusher.sentTo(2)[0].destination)
}

func TestBroadcast_SendFailureIsolatedPerRecipient(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {1, 2, 3}}}
	pusher := &fakePusher{failFor: map[int64]error{2: errors.New("write timeout")}}
	b := newTestBroadcaster(members, &fakePolicy{}, &fakeReadStatus{}, pusher)

	delivered := b.BroadcastNewMessage(context.Background(), 9, 10, "hi")

	assert.Equal(t, 2, delivered)
	assert.Len(t, pusher.sentTo(1), 1)
	assert.Len(t, pusher.sentTo(3), 1)
}

func TestBroadcast_OfflineRecipientReducesDeliveredCount(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {1, 2}}}
	pusher := &fakePusher{offline: map[int64]bool{2: true}}
	b := newTestBroadcaster(members, &fakePolicy{}, &fakeReadStatus{}, pusher)

	assert.Equal(t, 1, b.BroadcastNewMessage(context.Background(), 9, 10, "hi"))
}

func TestBroadcast_NonMembersNeverReceive(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {1, 2}}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, &fakePolicy{}, &fakeReadStatus{}, pusher)

	b.BroadcastFamilyMessage(context.Background(), 1, 10, "hi")

	assert.Empty(t, pusher.sentTo(99))
}

func TestBroadcastComment_DestinationCarriesParentMessage(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {5}}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, &fakePolicy{}, &fakeReadStatus{}, pusher)

	delivered := b.BroadcastComment(context.Background(), 1, 10, 77, "nice photo")

	assert.Equal(t, 1, delivered)
	assert.Equal(t, "/user/5/comments/77", pusher.sentTo(5)[0].destination)
}

func TestBroadcastComment_MatrixMuteSuppresses(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {5}}}
	policy := &fakePolicy{muted: map[string]bool{"5:1:10:comments": true}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, policy, &fakeReadStatus{}, pusher)

	assert.Zero(t, b.BroadcastComment(context.Background(), 1, 10, 77, "x"))
	assert.Empty(t, pusher.sent)
}

func TestBroadcastReaction_Delivers(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {4}}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, &fakePolicy{}, &fakeReadStatus{}, pusher)

	assert.Equal(t, 1, b.BroadcastReaction(context.Background(), 1, 10, "thumbsup"))
	assert.Equal(t, "/user/4/reactions", pusher.sentTo(4)[0].destination)
}

func TestBroadcastCommentCount_ExcludedUserNeverReceives(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {1, 2, 3}}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, &fakePolicy{}, &fakeReadStatus{}, pusher)

	delivered := b.BroadcastCommentCount(context.Background(), 10, 77, 4, 2)

	assert.Equal(t, 2, delivered)
	assert.Empty(t, pusher.sentTo(2))
	assert.Len(t, pusher.sentTo(1), 1)
	assert.Len(t, pusher.sentTo(3), 1)
}

func TestBroadcastCommentCount_PerRecipientUnreadFlag(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {1, 2, 3}}}
	// 1 has read the comments, 2 has not, 3 has no record.
	reads := &fakeReadStatus{unread: map[int64]bool{1: false, 2: true}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, &fakePolicy{}, reads, pusher)

	b.BroadcastCommentCount(context.Background(), 10, 77, 4, 0)

	get := func(userID int64) commentCountPayload {
		recs := pusher.sentTo(userID)
		require.Len(t, recs, 1)
		return recs[0].payload.(commentCountPayload)
	}
	assert.False(t, get(1).HasUnreadComments)
	assert.True(t, get(2).HasUnreadComments)
	assert.True(t, get(3).HasUnreadComments, "missing record defaults to unread")
	assert.Equal(t, 4, get(1).CommentCount)
	assert.Equal(t, int64(77), get(1).MessageID)
}

func TestBroadcastCommentCount_ReadStatusFailureDefaultsToUnread(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {1}}}
	reads := &fakeReadStatus{err: errors.New("db down")}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, &fakePolicy{}, reads, pusher)

	b.BroadcastCommentCount(context.Background(), 10, 77, 1, 0)

	require.Len(t, pusher.sentTo(1), 1)
	assert.True(t, pusher.sentTo(1)[0].payload.(commentCountPayload).HasUnreadComments)
}

func TestBroadcastDMMessage_PublishesBothTopics(t *testing.T) {
	pusher := &fakePusher{}
	b := newTestBroadcaster(&fakeMembership{}, &fakePolicy{}, &fakeReadStatus{}, pusher)

	delivered := b.BroadcastDMMessage(context.Background(), 1, 2, "hey")

	assert.Equal(t, 2, delivered)
	require.Len(t, pusher.published, 2)
	assert.Equal(t, "/topic/dm-list/2", pusher.published[0].destination)
	assert.Equal(t, "/topic/dm-thread/2", pusher.published[1].destination)
}

func TestBroadcastDMMessage_SenderMuteSuppresses(t *testing.T) {
	policy := &fakePolicy{dmMuted: map[string]bool{"2:1": true}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(&fakeMembership{}, policy, &fakeReadStatus{}, pusher)

	assert.Zero(t, b.BroadcastDMMessage(context.Background(), 1, 2, "hey"))
	assert.Empty(t, pusher.published)
}

func TestBroadcastInvitation_Unconditional(t *testing.T) {
	// Even a recipient who mutes everything still gets invitations.
	policy := &fakePolicy{
		muted:   map[string]bool{"7:0:0:messages": true},
		dmMuted: map[string]bool{"7:0": true},
	}
	pusher := &fakePusher{}
	b := newTestBroadcaster(&fakeMembership{}, policy, &fakeReadStatus{}, pusher)

	assert.Equal(t, 1, b.BroadcastInvitation(context.Background(), 7, "join us"))
	assert.Equal(t, "/user/7/invitations", pusher.sentTo(7)[0].destination)
}

func TestDispatch_RoutesByKind(t *testing.T) {
	members := &fakeMembership{families: map[int64][]int64{10: {1}}}
	pusher := &fakePusher{}
	b := newTestBroadcaster(members, &fakePolicy{}, &fakeReadStatus{}, pusher)

	cases := []struct {
		env      domain.Envelope
		wantDest string
	}{
		{domain.Envelope{Kind: domain.KindFamilyMessage, SenderID: 9, FamilyID: 10, Payload: "a"}, "/user/1/family"},
		{domain.Envelope{Kind: domain.KindNewMessage, SenderID: 9, FamilyID: 10, Payload: "b"}, "/user/1/messages"},
		{domain.Envelope{Kind: domain.KindComment, SenderID: 9, FamilyID: 10, MessageID: 5, Payload: "c"}, "/user/1/comments/5"},
		{domain.Envelope{Kind: domain.KindReaction, SenderID: 9, FamilyID: 10, Payload: "d"}, "/user/1/reactions"},
		{domain.Envelope{Kind: domain.KindCommentCount, FamilyID: 10, MessageID: 5, CommentCount: 2}, "/user/1/comment-counts"},
		{domain.Envelope{Kind: domain.KindInvitation, RecipientID: 1, Payload: "g"}, "/user/1/invitations"},
	}

	for _, tc := range cases {
		t.Run(tc.env.Kind.String(), func(t *testing.T) {
			before := len(pusher.sentTo(1))
			delivered := b.Dispatch(context.Background(), tc.env)
			require.Equal(t, 1, delivered)
			recs := pusher.sentTo(1)
			require.Len(t, recs, before+1)
			assert.Equal(t, tc.wantDest, recs[len(recs)-1].destination)
		})
	}
}

func TestDispatch_DMEnvelope(t *testing.T) {
	pusher := &fakePusher{}
	b := newTestBroadcaster(&fakeMembership{}, &fakePolicy{}, &fakeReadStatus{}, pusher)

	env := domain.Envelope{Kind: domain.KindDMMessage, SenderID: 1, RecipientID: 2, Payload: "hey"}
	assert.Equal(t, 2, b.Dispatch(context.Background(), env))
}

func TestDispatch_UnknownKindDropped(t *testing.T) {
	pusher := &fakePusher{}
	b := newTestBroadcaster(&fakeMembership{}, &fakePolicy{}, &fakeReadStatus{}, pusher)

	assert.Zero(t, b.Dispatch(context.Background(), domain.Envelope{Kind: domain.EventKind(99)}))
	assert.Empty(t, pusher.sent)
}
