// Package domain holds the entities of §3 of the specification: users,
// friendships, conversations, memberships, messages, files, AI models and
// per-user settings. These are plain structs with no ORM tags — the store
// package maps them to and from SQLite rows by hand, since the full-text
// triggers and cursor queries need raw SQL anyway.
package domain

import (
	"time"

	"github.com/shopmindai/chatcore/internal/apperr"
)

// User is created by the external HTTP registration endpoint; the core
// only ever reads it.
type User struct {
	ID           int64
	Username     string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Friendship is the symmetric, materialized relationship between two
// users. UserLow is always the smaller of the two ids.
type Friendship struct {
	UserLow   int64
	UserHigh  int64
	CreatedAt time.Time
}

// NewFriendship canonicalizes the pair ordering required by invariant (v).
func NewFriendship(a, b int64) (Friendship, error) {
	if a == b {
		return Friendship{}, apperr.ErrSelfFriendship
	}
	if a > b {
		a, b = b, a
	}
	return Friendship{UserLow: a, UserHigh: b, CreatedAt: time.Now()}, nil
}

// FriendRequestStatus enumerates the lifecycle of a FriendRequest.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "Pending"
	FriendRequestAccepted FriendRequestStatus = "Accepted"
	FriendRequestRejected FriendRequestStatus = "Rejected"
)

// FriendRequest is a directed, at-most-one-pending-per-pair relationship.
type FriendRequest struct {
	SenderID   int64
	ReceiverID int64
	Status     FriendRequestStatus
	CreatedAt  time.Time
}

// Conversation is a durable thread with 1..N members.
type Conversation struct {
	ID            int64
	Title         string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Membership is a (user, conversation) row.
type Membership struct {
	UserID         int64
	ConversationID int64
	JoinedAt       time.Time
	LastMessageAt  time.Time
	LastReadAt     time.Time
}

// Message is either human- or AI-authored, never both, never neither
// (invariant ii).
type Message struct {
	ID             int64
	ConversationID int64
	SenderUserID   *int64
	AIModelID      *int64
	Body           string
	StemmedBody    string
	FileID         *int64
	FileName       *string
	CreatedAt      time.Time
	ModifiedAt     time.Time
}

// IsFromHuman reports whether the message originated from a person.
func (m Message) IsFromHuman() bool { return m.SenderUserID != nil }

// IsFromAI reports whether the message originated from a model.
func (m Message) IsFromAI() bool { return m.AIModelID != nil }

// File is a stored upload, deduplicated by (path, mime).
type File struct {
	ID            int64
	Path          string
	Mime          string
	IsProfileImg  bool
	CreatedAt     time.Time
}

// AIModel is the identifier passed through to the external provider.
type AIModel struct {
	ID   int64
	Name string
}

// Theme is the set of UI themes a user may select; the core never
// interprets the value, it only stores and echoes it.
type Theme string

// UserSettings is a single per-user row.
type UserSettings struct {
	UserID     int64
	AIModelID  *int64
	AIEnabled  bool
	Theme      Theme
	ModifiedAt time.Time
}
