package store

import (
	"context"
	"testing"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupConversation(t *testing.T, st *Store, members ...int64) int64 {
	t.Helper()
	for _, m := range members[1:] {
		mustFriend(t, st, members[0], m)
	}
	convID, _, err := st.InviteMembers(context.Background(), nil, members[0], members[1:])
	require.NoError(t, err)
	return convID
}

func TestCreateMessage_RequiresExactlyOneAuthor(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	convID := setupConversation(t, st, alice, bob)

	_, err := st.CreateMessage(context.Background(), convID, AuthorRef{}, "hi", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = st.CreateMessage(context.Background(), convID, AuthorRef{UserID: &alice, AIModelID: &alice}, "hi", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestCreateMessage_RejectsNonMemberSender(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	stranger := mustUser(t, st, "stranger")
	convID := setupConversation(t, st, alice, bob)

	_, err := st.CreateMessage(context.Background(), convID, NewHumanAuthor(stranger), "hi", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestCreateMessage_StemsBodyAndAdvancesTimestamps(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	convID := setupConversation(t, st, alice, bob)

	before, err := st.Conversation(context.Background(), convID, alice)
	require.NoError(t, err)

	msg, err := st.CreateMessage(context.Background(), convID, NewHumanAuthor(alice), "Running errands today", nil)
	require.NoError(t, err)
	assert.Equal(t, "Running errands today", msg.Body)
	assert.Contains(t, msg.StemmedBody, "runn")
	assert.NotZero(t, msg.ID)

	after, err := st.Conversation(context.Background(), convID, alice)
	require.NoError(t, err)
	assert.True(t, !after.LastMessageAt.Before(before.LastMessageAt))
}

func TestCreateMessage_FileRefRequiresFileName(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	convID := setupConversation(t, st, alice, bob)

	_, err := st.CreateMessage(context.Background(), convID, NewHumanAuthor(alice), "hi", &FileRef{})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestListMessages_CursorPagination(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	convID := setupConversation(t, st, alice, bob)

	for i := 0; i < 5; i++ {
		_, err := st.CreateMessage(context.Background(), convID, NewHumanAuthor(alice), "msg", nil)
		require.NoError(t, err)
	}

	page1, err := st.ListMessages(context.Background(), convID, alice, 0, 2)
	require.NoError(t, err)
	require.Len(t, page1.Messages, 2)
	assert.Equal(t, page1.Messages[1].ID, page1.NextCursor)

	page2, err := st.ListMessages(context.Background(), convID, alice, page1.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Messages, 2)
	assert.True(t, page2.Messages[0].ID > page1.Messages[len(page1.Messages)-1].ID)
}

func TestListMessages_RejectsNonMember(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	stranger := mustUser(t, st, "stranger")
	convID := setupConversation(t, st, alice, bob)

	_, err := st.ListMessages(context.Background(), convID, stranger, 0, 10)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestListMessagesForContext_StopsAtBudget(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	convID := setupConversation(t, st, alice, bob)

	bodies := []string{"aaaaaaaaaa", "bbbbbbbbbb", "cccccccccc"}
	for _, b := range bodies {
		_, err := st.CreateMessage(context.Background(), convID, NewHumanAuthor(alice), b, nil)
		require.NoError(t, err)
	}

	entries, err := st.ListMessagesForContext(context.Background(), convID, 15)
	require.NoError(t, err)
	require.Len(t, entries, 1, "budget of 15 chars should admit only the single most recent 10-char message before the next would exceed it")
	assert.Equal(t, "cccccccccc", entries[0].Body)
}

func TestListMessagesForContext_ReturnsChronologicalOrder(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	convID := setupConversation(t, st, alice, bob)

	for _, b := range []string{"first", "second", "third"} {
		_, err := st.CreateMessage(context.Background(), convID, NewHumanAuthor(alice), b, nil)
		require.NoError(t, err)
	}

	entries, err := st.ListMessagesForContext(context.Background(), convID, 5000)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{entries[0].Body, entries[1].Body, entries[2].Body})
}
