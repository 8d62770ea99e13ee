package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/domain"
)

// SendFriendRequest creates a Pending request from sender to receiver,
// or — if accept is requested on an existing Pending request in either
// direction — resolves it via SetRequestState. A pair may have at most
// one Pending request (PK is (sender, receiver), and this method also
// checks the reverse direction before inserting).
func (s *Store) SendFriendRequest(ctx context.Context, senderID, receiverID int64, accept bool) (domain.FriendRequestStatus, error) {
	if senderID == receiverID {
		return "", apperr.ErrSelfFriendship
	}

	var status domain.FriendRequestStatus
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, dir, err := findPendingLocked(ctx, tx, senderID, receiverID)
		if err != nil {
			return err
		}
		if existing {
			return resolveRequestLocked(ctx, tx, dir.sender, dir.receiver, accept, &status)
		}
		if !accept {
			return apperr.New(apperr.Validation, "no pending request to reject")
		}

		already, err := isFriend(ctx, tx, senderID, receiverID)
		if err != nil {
			return apperr.Wrap(apperr.Internal, "check existing friendship", err)
		}
		if already {
			return apperr.New(apperr.Conflict, "already friends")
		}

		now := time.Now()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO friend_requests (sender_id, receiver_id, status, created_at) VALUES (?, ?, 'Pending', ?)`,
			senderID, receiverID, now)
		if isUniqueViolation(err) {
			return apperr.New(apperr.Conflict, "a request between these users already exists")
		}
		if err != nil {
			return apperr.Wrap(apperr.Internal, "insert friend request", err)
		}
		status = domain.FriendRequestPending
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

type requestDirection struct{ sender, receiver int64 }

func findPendingLocked(ctx context.Context, tx *sql.Tx, a, b int64) (bool, requestDirection, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM friend_requests WHERE sender_id = ? AND receiver_id = ? AND status = 'Pending'`, a, b).Scan(&one)
	if err == nil {
		return true, requestDirection{a, b}, nil
	}
	if err != sql.ErrNoRows {
		return false, requestDirection{}, apperr.Wrap(apperr.Internal, "look up friend request", err)
	}
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM friend_requests WHERE sender_id = ? AND receiver_id = ? AND status = 'Pending'`, b, a).Scan(&one)
	if err == nil {
		return true, requestDirection{b, a}, nil
	}
	if err != sql.ErrNoRows {
		return false, requestDirection{}, apperr.Wrap(apperr.Internal, "look up reverse friend request", err)
	}
	return false, requestDirection{}, nil
}

// resolveRequestLocked implements setRequestState: accepting atomically
// removes the request row and inserts a canonical Friendship;
// rejecting just removes the row.
func resolveRequestLocked(ctx context.Context, tx *sql.Tx, sender, receiver int64, accept bool, status *domain.FriendRequestStatus) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM friend_requests WHERE sender_id = ? AND receiver_id = ?`, sender, receiver); err != nil {
		return apperr.Wrap(apperr.Internal, "remove resolved friend request", err)
	}
	if !accept {
		*status = domain.FriendRequestRejected
		return nil
	}
	fs, err := domain.NewFriendship(sender, receiver)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO friendships (user_low, user_high, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_low, user_high) DO NOTHING`,
		fs.UserLow, fs.UserHigh, fs.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert friendship", err)
	}
	*status = domain.FriendRequestAccepted
	return nil
}

// Friends returns every user the given user has a materialized
// Friendship with.
func (s *Store) Friends(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CASE WHEN user_low = ? THEN user_high ELSE user_low END
		FROM friendships WHERE user_low = ? OR user_high = ?`, userID, userID, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list friends", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan friend", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// FriendRequests returns every Pending request where userID is the
// receiver.
func (s *Store) FriendRequests(ctx context.Context, userID int64) ([]domain.FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, receiver_id, status, created_at FROM friend_requests
		WHERE receiver_id = ? AND status = 'Pending'`, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list friend requests", err)
	}
	defer rows.Close()
	var out []domain.FriendRequest
	for rows.Next() {
		var fr domain.FriendRequest
		if err := rows.Scan(&fr.SenderID, &fr.ReceiverID, &fr.Status, &fr.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "scan friend request", err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
