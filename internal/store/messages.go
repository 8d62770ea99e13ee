package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/domain"
	"github.com/shopmindai/chatcore/internal/metrics"
	"github.com/shopmindai/chatcore/internal/stem"
)

// AuthorRef names exactly one of a human sender or an AI model per
// invariant (ii); construct with NewHumanAuthor or NewAIAuthor.
type AuthorRef struct {
	UserID    *int64
	AIModelID *int64
}

func NewHumanAuthor(userID int64) AuthorRef { return AuthorRef{UserID: &userID} }
func NewAIAuthor(aiModelID int64) AuthorRef { return AuthorRef{AIModelID: &aiModelID} }

// FileRef is the optional attachment quoted on a message.
type FileRef struct {
	FileID   int64
	FileName string
}

// CreateMessage persists a message, advances last_message_at on the
// conversation and (for a human sender) the sender's membership row,
// and lets the messages_ai trigger keep the FTS shadow current — all
// inside one transaction (§4.1). Fails with Forbidden if a human sender
// is not a member of the conversation.
func (s *Store) CreateMessage(ctx context.Context, conversationID int64, author AuthorRef, body string, file *FileRef) (domain.Message, error) {
	if author.UserID == nil && author.AIModelID == nil {
		return domain.Message{}, apperr.New(apperr.Validation, "message must have a sender or an AI model")
	}
	if author.UserID != nil && author.AIModelID != nil {
		return domain.Message{}, apperr.New(apperr.Validation, "message cannot have both a sender and an AI model")
	}
	if file != nil && file.FileName == "" {
		return domain.Message{}, apperr.New(apperr.Validation, "a file reference requires a file_name")
	}

	var msg domain.Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if author.UserID != nil {
			member, err := isMember(ctx, tx, *author.UserID, conversationID)
			if err != nil {
				return apperr.Wrap(apperr.Internal, "check membership", err)
			}
			if !member {
				return apperr.New(apperr.Forbidden, "sender is not a member of this conversation")
			}
		}

		now := time.Now()
		stemmed := stem.Text(body)

		var fileID sql.NullInt64
		var fileName sql.NullString
		if file != nil {
			fileID = sql.NullInt64{Int64: file.FileID, Valid: true}
			fileName = sql.NullString{String: file.FileName, Valid: true}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (conversation_id, sender_user_id, ai_model_id, body, stemmed_body, file_id, file_name, created_at, modified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conversationID, nullableInt64(author.UserID), nullableInt64(author.AIModelID), body, stemmed, fileID, fileName, now, now)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "insert message", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return apperr.Wrap(apperr.Internal, "read inserted message id", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET last_message_at = ? WHERE id = ?`, now, conversationID); err != nil {
			return apperr.Wrap(apperr.Internal, "advance conversation last_message_at", err)
		}
		if author.UserID != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE memberships SET last_message_at = ? WHERE user_id = ? AND conversation_id = ?`,
				now, *author.UserID, conversationID); err != nil {
				return apperr.Wrap(apperr.Internal, "advance membership last_message_at", err)
			}
		}

		msg = domain.Message{
			ID:             id,
			ConversationID: conversationID,
			SenderUserID:   author.UserID,
			AIModelID:      author.AIModelID,
			Body:           body,
			StemmedBody:    stemmed,
			CreatedAt:      now,
			ModifiedAt:     now,
		}
		if file != nil {
			msg.FileID = &file.FileID
			msg.FileName = &file.FileName
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	authorLabel := "ai"
	if author.UserID != nil {
		authorLabel = "human"
	}
	metrics.MessagesCreatedTotal.WithLabelValues(authorLabel).Inc()
	return msg, nil
}

// MessagePage is one page of ascending-order messages plus the cursor
// to pass back in for the next page (the id of the last message
// returned, or 0 if the page is empty).
type MessagePage struct {
	Messages   []domain.Message
	NextCursor int64
}

const defaultMessageLimit = 50

// ListMessages returns messages with id > cursor, ascending, for
// RequestMessages. Caller must already be a member.
func (s *Store) ListMessages(ctx context.Context, conversationID, requesterID, cursor int64, limit int) (MessagePage, error) {
	member, err := isMember(ctx, s.db, requesterID, conversationID)
	if err != nil {
		return MessagePage{}, apperr.Wrap(apperr.Internal, "check membership", err)
	}
	if !member {
		return MessagePage{}, apperr.New(apperr.Forbidden, "not a member of this conversation")
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_user_id, ai_model_id, body, stemmed_body, file_id, file_name, created_at, modified_at
		FROM messages
		WHERE conversation_id = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?`, conversationID, cursor, limit)
	if err != nil {
		return MessagePage{}, apperr.Wrap(apperr.Internal, "list messages", err)
	}
	defer rows.Close()

	var page MessagePage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return MessagePage{}, apperr.Wrap(apperr.Internal, "scan message", err)
		}
		page.Messages = append(page.Messages, m)
		page.NextCursor = m.ID
	}
	if err := rows.Err(); err != nil {
		return MessagePage{}, apperr.Wrap(apperr.Internal, "iterate messages", err)
	}
	return page, nil
}

// ContextEntry is one turn handed to the AI orchestrator for prompt
// assembly (§4.5 step 1).
type ContextEntry struct {
	Role   string // "user" or "assistant"
	Author string
	Body   string
}

// ListMessagesForContext walks created_at descending from the most
// recent message and stops once the cumulative body length would
// exceed budget characters, then reverses the result back into
// chronological order. This is the "dedicated variant" named in §4.1,
// distinct from ListMessages's ascending cursor paging.
func (s *Store) ListMessagesForContext(ctx context.Context, conversationID int64, budget int) ([]ContextEntry, error) {
	if budget <= 0 {
		budget = 5000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_user_id, ai_model_id, body
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC`, conversationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list context messages", err)
	}
	defer rows.Close()

	var collected []ContextEntry
	total := 0
	for rows.Next() {
		var senderID, aiModelID sql.NullInt64
		var body string
		if err := rows.Scan(&senderID, &aiModelID, &body); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan context message", err)
		}
		if total+len(body) > budget && len(collected) > 0 {
			break
		}
		entry := ContextEntry{Body: body}
		if senderID.Valid {
			entry.Role = "user"
			entry.Author = "user"
		} else {
			entry.Role = "assistant"
			entry.Author = "assistant"
		}
		collected = append(collected, entry)
		total += len(body)
		if total >= budget {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "iterate context messages", err)
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

func scanMessage(rows *sql.Rows) (domain.Message, error) {
	var m domain.Message
	var senderID, aiModelID, fileID sql.NullInt64
	var fileName sql.NullString
	if err := rows.Scan(&m.ID, &m.ConversationID, &senderID, &aiModelID, &m.Body, &m.StemmedBody, &fileID, &fileName, &m.CreatedAt, &m.ModifiedAt); err != nil {
		return domain.Message{}, err
	}
	if senderID.Valid {
		m.SenderUserID = &senderID.Int64
	}
	if aiModelID.Valid {
		m.AIModelID = &aiModelID.Int64
	}
	if fileID.Valid {
		m.FileID = &fileID.Int64
	}
	if fileName.Valid {
		m.FileName = &fileName.String
	}
	return m, nil
}

func nullableInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
