package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/domain"
)

// InviteMembers implements §4.1 inviteMembers. When conversationID is
// nil a new Conversation is created in the same transaction; otherwise
// the inviter must already be a member of it. In both cases the inviter
// must be friends with every invitee; each invitee receives exactly one
// Membership row, idempotently.
func (s *Store) InviteMembers(ctx context.Context, conversationID *int64, inviterID int64, invitees []int64) (int64, []int64, error) {
	if len(invitees) == 0 {
		return 0, nil, apperr.New(apperr.Validation, "invitees must be non-empty")
	}

	var convID int64
	var added []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		if conversationID == nil {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO conversations (title, created_at, last_message_at) VALUES ('', ?, ?)`, now, now)
			if err != nil {
				return apperr.Wrap(apperr.Internal, "create conversation", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return apperr.Wrap(apperr.Internal, "read new conversation id", err)
			}
			convID = id
			if err := addMembershipLocked(ctx, tx, convID, inviterID, now); err != nil {
				return err
			}
		} else {
			convID = *conversationID
			member, err := isMember(ctx, tx, inviterID, convID)
			if err != nil {
				return apperr.Wrap(apperr.Internal, "check inviter membership", err)
			}
			if !member {
				return apperr.New(apperr.Forbidden, "inviter is not a member of this conversation")
			}
		}

		for _, invitee := range invitees {
			if invitee == inviterID {
				continue
			}
			friend, err := isFriend(ctx, tx, inviterID, invitee)
			if err != nil {
				return apperr.Wrap(apperr.Internal, "check friendship", err)
			}
			if !friend {
				return apperr.New(apperr.Forbidden, "inviter is not friends with invitee")
			}
			alreadyMember, err := isMember(ctx, tx, invitee, convID)
			if err != nil {
				return apperr.Wrap(apperr.Internal, "check invitee membership", err)
			}
			if alreadyMember {
				continue
			}
			if err := addMembershipLocked(ctx, tx, convID, invitee, now); err != nil {
				return err
			}
			added = append(added, invitee)
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return convID, added, nil
}

func addMembershipLocked(ctx context.Context, tx *sql.Tx, conversationID, userID int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (user_id, conversation_id, joined_at, last_message_at, last_read_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, conversation_id) DO NOTHING`,
		userID, conversationID, now, now, now)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert membership", err)
	}
	return nil
}

// LeaveConversation removes userID's membership; if that was the last
// membership the conversation (and its messages, by FK cascade) is
// garbage-collected.
func (s *Store) LeaveConversation(ctx context.Context, conversationID, userID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		member, err := isMember(ctx, tx, userID, conversationID)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "check membership", err)
		}
		if !member {
			return apperr.New(apperr.NotFound, "not a member of this conversation")
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM memberships WHERE user_id = ? AND conversation_id = ?`, userID, conversationID); err != nil {
			return apperr.Wrap(apperr.Internal, "delete membership", err)
		}

		var remaining int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memberships WHERE conversation_id = ?`, conversationID).Scan(&remaining); err != nil {
			return apperr.Wrap(apperr.Internal, "count remaining members", err)
		}
		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
				return apperr.Wrap(apperr.Internal, "garbage collect conversation", err)
			}
		}
		return nil
	})
}

// RenameConversation requires the caller to be a member.
func (s *Store) RenameConversation(ctx context.Context, conversationID, userID int64, name string) error {
	member, err := isMember(ctx, s.db, userID, conversationID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "check membership", err)
	}
	if !member {
		return apperr.New(apperr.Forbidden, "not a member of this conversation")
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ? WHERE id = ?`, name, conversationID); err != nil {
		return apperr.Wrap(apperr.Internal, "rename conversation", err)
	}
	return nil
}

// Conversations returns the caller's memberships as Conversation rows,
// most-recently-active first, up to limit, for RequestConversations.
func (s *Store) Conversations(ctx context.Context, userID int64, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.last_message_at
		FROM conversations c
		JOIN memberships m ON m.conversation_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.last_message_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list conversations", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.LastMessageAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan conversation", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Conversation returns a single conversation if userID is a member.
func (s *Store) Conversation(ctx context.Context, conversationID, userID int64) (domain.Conversation, error) {
	member, err := isMember(ctx, s.db, userID, conversationID)
	if err != nil {
		return domain.Conversation{}, apperr.Wrap(apperr.Internal, "check membership", err)
	}
	if !member {
		return domain.Conversation{}, apperr.New(apperr.Forbidden, "not a member of this conversation")
	}
	var c domain.Conversation
	err = s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, last_message_at FROM conversations WHERE id = ?`, conversationID).
		Scan(&c.ID, &c.Title, &c.CreatedAt, &c.LastMessageAt)
	if err == sql.ErrNoRows {
		return domain.Conversation{}, apperr.New(apperr.NotFound, "conversation not found")
	}
	if err != nil {
		return domain.Conversation{}, apperr.Wrap(apperr.Internal, "load conversation", err)
	}
	return c, nil
}

// MemberIDs returns every current member of a conversation (used by
// the session's cache invalidation and tests).
func (s *Store) MemberIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM memberships WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list members", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan member", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ConversationIDsForUser returns every conversation userID currently
// belongs to, unpaged — used to seed presence interest when a
// connection registers, so audience addressing reflects live
// membership rather than only the conversations a connection has
// happened to touch since connecting.
func (s *Store) ConversationIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT conversation_id FROM memberships WHERE user_id = ?`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list caller memberships", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan membership", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
