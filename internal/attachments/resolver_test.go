package attachments

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "chatcore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func mustUser(t *testing.T, st *store.Store, username string) int64 {
	t.Helper()
	res, err := st.DB().ExecContext(context.Background(),
		`INSERT INTO users (username, email, password_hash) VALUES (?, ?, 'x')`, username, username+"@example.com")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func mustFile(t *testing.T, st *store.Store, path, mime string) int64 {
	t.Helper()
	res, err := st.DB().ExecContext(context.Background(), `INSERT INTO files (path, mime) VALUES (?, ?)`, path, mime)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func mustUpload(t *testing.T, st *store.Store, userID, fileID int64) {
	t.Helper()
	_, err := st.DB().ExecContext(context.Background(),
		`INSERT INTO user_file_uploads (user_id, file_id) VALUES (?, ?)`, userID, fileID)
	require.NoError(t, err)
}

func TestResolve_MissingFile(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	r := New(st)

	_, err := r.Resolve(context.Background(), alice, 999, "name.png")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestResolve_EligibleWhenSenderUploadedIt(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	fileID := mustFile(t, st, "/uploads/a.png", "image/png")
	mustUpload(t, st, alice, fileID)

	r := New(st)
	ref, err := r.Resolve(context.Background(), alice, fileID, "renamed.png")
	require.NoError(t, err)
	assert.Equal(t, fileID, ref.FileID)
	assert.Equal(t, "renamed.png", ref.FileName, "the quoted name is cosmetic and need not match the stored path")
}

func TestResolve_ForbiddenWhenNeitherOwnedNorVisible(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	fileID := mustFile(t, st, "/uploads/a.png", "image/png")

	r := New(st)
	_, err := r.Resolve(context.Background(), alice, fileID, "name.png")
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestResolve_EligibleWhenVisibleInSharedConversation(t *testing.T) {
	st := newTestStore(t)
	alice := mustUser(t, st, "alice")
	bob := mustUser(t, st, "bob")
	_, err := st.DB().ExecContext(context.Background(), `INSERT INTO friendships (user_low, user_high) VALUES (?, ?)`, alice, bob)
	require.NoError(t, err)

	convID, _, err := st.InviteMembers(context.Background(), nil, alice, []int64{bob})
	require.NoError(t, err)

	fileID := mustFile(t, st, "/uploads/shared.png", "image/png")
	mustUpload(t, st, alice, fileID)
	_, err = st.CreateMessage(context.Background(), convID, store.NewHumanAuthor(alice), "see attached", &store.FileRef{FileID: fileID, FileName: "shared.png"})
	require.NoError(t, err)

	r := New(st)
	ref, err := r.Resolve(context.Background(), bob, fileID, "forwarded.png")
	require.NoError(t, err)
	assert.Equal(t, fileID, ref.FileID)
}
