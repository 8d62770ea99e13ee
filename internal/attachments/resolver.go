// Package attachments implements C6: given the {id, name} pair a
// sender quotes on SendMessage, validate that the file exists and is
// eligible, and hand back the FileRef the store needs to link it to
// the new message row. The quoted name is cosmetic only — it never
// renames the underlying file (§4.6).
package attachments

import (
	"context"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/store"
)

// Resolver validates attachment eligibility against the store.
type Resolver struct {
	store *store.Store
}

// New builds a Resolver over the given store.
func New(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve validates that fileID exists and is eligible for senderID —
// either senderID uploaded it, or it is already attached to a message
// in a conversation senderID belongs to (e.g. forwarding an attachment
// a peer sent) — and returns the FileRef to pass to CreateMessage.
func (r *Resolver) Resolve(ctx context.Context, senderID, fileID int64, quotedName string) (store.FileRef, error) {
	if _, err := r.store.File(ctx, fileID); err != nil {
		return store.FileRef{}, err
	}

	uploaded, err := r.store.UserUploadedFile(ctx, senderID, fileID)
	if err != nil {
		return store.FileRef{}, err
	}
	if uploaded {
		return store.FileRef{FileID: fileID, FileName: quotedName}, nil
	}

	visible, err := r.store.FileVisibleInConversation(ctx, senderID, fileID)
	if err != nil {
		return store.FileRef{}, err
	}
	if !visible {
		return store.FileRef{}, apperr.New(apperr.Forbidden, "attachment is not owned by or visible to sender")
	}
	return store.FileRef{FileID: fileID, FileName: quotedName}, nil
}
