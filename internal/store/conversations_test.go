package store

import (
	"context"
	"testing"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteMembers_CreatesConversationAndRequiresFriendship(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")

	_, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.Error(t, err, "invitees must already be friends")
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	mustFriend(t, st, alice, bob)
	convID, added, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)
	assert.NotZero(t, convID)
	assert.Equal(t, []int64{bob}, added)
}

func TestInviteMembers_IdempotentAgainstExistingMember(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	mustFriend(t, st, alice, bob)

	convID, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)

	_, added, err := st.InviteMembers(context.Background(), &convID, alice, []int64{bob})
	require.NoError(t, err)
	assert.Empty(t, added, "re-inviting an existing member should add nobody")
}

func TestInviteMembers_RejectsNonMemberInviter(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	stranger := mustUser(t, st, "stranger")
	mustFriend(t, st, alice, bob)
	mustFriend(t, st, alice, stranger)

	convID, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)

	_, _, err = st.InviteMembers(context.Background(), &convID, stranger, []int64{alice})
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestInviteMembers_RequiresNonEmptyInvitees(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")

	_, _, err := st.InviteMembers(context.Background(), nil, alice, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestLeaveConversation_GarbageCollectsWhenLastMemberLeaves(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	mustFriend(t, st, alice, bob)
	convID, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)

	require.NoError(t, st.LeaveConversation(context.Background(), convID, alice))
	// conversation should still exist for bob
	_, err = st.Conversation(context.Background(), convID, bob)
	require.NoError(t, err)

	require.NoError(t, st.LeaveConversation(context.Background(), convID, bob))
	_, err = st.Conversation(context.Background(), convID, bob)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err), "conversation row is gone, so even membership lookup fails closed")
}

func TestLeaveConversation_RejectsNonMember(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	stranger := mustUser(t, st, "stranger")
	mustFriend(t, st, alice, bob)
	convID, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)

	err = st.LeaveConversation(context.Background(), convID, stranger)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestRenameConversation_RequiresMembership(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	stranger := mustUser(t, st, "stranger")
	mustFriend(t, st, alice, bob)
	convID, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)

	err = st.RenameConversation(context.Background(), convID, stranger, "new name")
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))

	require.NoError(t, st.RenameConversation(context.Background(), convID, alice, "new name"))
	c, err := st.Conversation(context.Background(), convID, alice)
	require.NoError(t, err)
	assert.Equal(t, "new name", c.Title)
}

func TestConversations_OrderedByLastMessageAtDescending(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	carol := mustUser(t, st, "carol")
	mustFriend(t, st, alice, bob)
	mustFriend(t, st, alice, carol)

	convA, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)
	convB, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{carol})
	require.NoError(t, err)

	// Touch convA last so it should sort first.
	_, err = st.CreateMessage(context.Background(), convA, NewHumanAuthor(alice), "hi", nil)
	require.NoError(t, err)

	convs, err := st.Conversations(context.Background(), alice, 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, convA, convs[0].ID)
	assert.Equal(t, convB, convs[1].ID)
}

func TestMemberIDs_ReturnsAllCurrentMembers(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	mustFriend(t, st, alice, bob)
	convID, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)

	ids, err := st.MemberIDs(context.Background(), convID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{alice, bob}, ids)
}

func TestConversationIDsForUser_ReturnsEveryMembership(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	carol := mustUser(t, st, "carol")
	mustFriend(t, st, alice, bob)
	mustFriend(t, st, alice, carol)

	convAB, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)
	convAC, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{carol})
	require.NoError(t, err)

	ids, err := st.ConversationIDsForUser(context.Background(), alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{convAB, convAC}, ids)

	ids, err = st.ConversationIDsForUser(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, []int64{convAB}, ids)
}
