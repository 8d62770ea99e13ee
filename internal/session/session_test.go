package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeToCurrentMemberships_SeedsInterestFromStoreRows(t *testing.T) {
	deps := newTestDeps(t)
	alice := mustUser(t, deps.Store, "alice")
	bob := mustUser(t, deps.Store, "bob")
	mustFriend(t, deps.Store, alice, bob)
	convID, _, err := deps.Store.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)

	sBob := newTestSession(deps, bob)
	deps.Presence.Register(sBob)

	// Before seeding, bob's connection has no recorded interest in
	// convID even though the membership row already exists.
	handles := deps.Presence.ConnectionsForConversation(convID)
	assert.Empty(t, handles)

	sBob.subscribeToCurrentMemberships(context.Background())

	handles = deps.Presence.ConnectionsForConversation(convID)
	require.Len(t, handles, 1)
	assert.Equal(t, sBob.ID(), handles[0].ID())
}

func TestSubscribeToCurrentMemberships_NoMembershipsIsNoop(t *testing.T) {
	deps := newTestDeps(t)
	alice := mustUser(t, deps.Store, "alice")

	s := newTestSession(deps, alice)
	deps.Presence.Register(s)

	assert.NotPanics(t, func() {
		s.subscribeToCurrentMemberships(context.Background())
	})
}
