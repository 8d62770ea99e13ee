// Package protocol defines the wire-level command/event sum types of
// spec §6. Every frame is a single JSON object discriminated by a "type"
// tag; field names are camelCase on the wire. Inbound and outbound frames
// are kept as separate Go types (never one shared struct) so that an
// unknown outbound tag is impossible by construction, per §9.
package protocol

import "encoding/json"

// Inbound command type tags.
const (
	TypeSendMessage            = "SendMessage"
	TypeRequestConversations   = "RequestConversations"
	TypeRequestConversation    = "RequestConversation"
	TypeRequestMessages        = "RequestMessages"
	TypeInviteUsers            = "InviteUsers"
	TypeLeaveConversation      = "LeaveConversation"
	TypeRenameConversation     = "RenameConversation"
	TypeSendFriendRequest      = "SendFriendRequest"
	TypeRequestFriends         = "RequestFriends"
	TypeRequestFriendRequests  = "RequestFriendRequests"
	TypeCancelGeneration       = "CancelGeneration"
	TypeRequestSearch          = "RequestSearch"
)

// Outbound event type tags.
const (
	TypeMessage            = "Message"
	TypeStreamData         = "StreamData"
	TypeConversation       = "Conversation"
	TypeInvite             = "Invite"
	TypeLeaveEvent         = "LeaveEvent"
	TypeRenameEvent        = "RenameEvent"
	TypeFriendRequestEvent = "FriendRequest"
	TypeFriendData         = "FriendData"
	TypeCanceledGeneration = "CanceledGeneration"
	TypeError              = "Error"
	TypeGeneric            = "Generic"
	TypeSearchResults      = "SearchResults"
)

// Envelope is the outer shape of every frame: only the discriminator is
// guaranteed, the rest is decoded based on it.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// Attachment is the {id, name} pair a sender may quote on SendMessage.
type Attachment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// --- Inbound commands ---

type SendMessage struct {
	Body           *string     `json:"body,omitempty"`
	ConversationID *int64      `json:"conversationId,omitempty"`
	AIModelID      *int64      `json:"aiModelId,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
}

type RequestConversations struct {
	MessageNum *int `json:"messageNum,omitempty"`
}

type RequestConversation struct {
	ID int64 `json:"id"`
}

type RequestMessages struct {
	ConversationID int64  `json:"conversationId"`
	Cursor         *int64 `json:"cursor,omitempty"`
	Limit          *int   `json:"limit,omitempty"`
}

type InviteUsers struct {
	ConversationID *int64  `json:"conversationId,omitempty"`
	Invitees       []int64 `json:"invitees"`
}

type LeaveConversation struct {
	ConversationID int64 `json:"conversationId"`
}

type RenameConversation struct {
	ConversationID int64   `json:"conversationId"`
	Name           *string `json:"name,omitempty"`
}

type SendFriendRequest struct {
	OtherUserID int64 `json:"otherUserId"`
	Accept      bool  `json:"accept"`
}

type RequestFriends struct{}

type RequestFriendRequests struct{}

type CancelGeneration struct {
	ConversationID int64 `json:"conversationId"`
}

// RequestSearch is the wire command for §4.7 search, supplementing the
// protocol tag enumeration (see SPEC_FULL.md) so the §8 scenario 6
// ("Bob searches 'hello' in K") has a command to express it with.
type RequestSearch struct {
	Q              string `json:"q"`
	ConversationID *int64 `json:"conversationId,omitempty"`
	SenderID       *int64 `json:"senderId,omitempty"`
	CreatedAfter   *int64 `json:"createdAfter,omitempty"`
	CreatedBefore  *int64 `json:"createdBefore,omitempty"`
	Sort           string `json:"sort,omitempty"` // "rank" (default) or "recency"
	Cursor         *SearchCursor `json:"cursor,omitempty"`
	Limit          *int   `json:"limit,omitempty"`
}

// SearchCursor round-trips search.Cursor across the wire.
type SearchCursor struct {
	Rank      float64 `json:"rank"`
	CreatedAt int64   `json:"createdAt"`
	MessageID int64   `json:"messageId"`
}

// --- Outbound events ---

type MessageEvent struct {
	Type           string  `json:"type"`
	ID             int64   `json:"id"`
	ConversationID int64   `json:"conversationId"`
	UserID         *int64  `json:"userId"`
	AIModelID      *int64  `json:"aiModelId"`
	Body           string  `json:"body"`
	FileID         *int64  `json:"fileId,omitempty"`
	FileName       *string `json:"fileName,omitempty"`
	CreatedAt      int64   `json:"createdAt"`
}

func NewMessageEvent() MessageEvent { return MessageEvent{Type: TypeMessage} }

type StreamDataEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	QuerierID      int64  `json:"querierId"`
	Message        string `json:"message"`
}

func NewStreamDataEvent() StreamDataEvent { return StreamDataEvent{Type: TypeStreamData} }

type ConversationEvent struct {
	Type          string `json:"type"`
	ID            int64  `json:"id"`
	Title         string `json:"title,omitempty"`
	LastMessageAt int64  `json:"lastMessageAt"`
}

func NewConversationEvent() ConversationEvent { return ConversationEvent{Type: TypeConversation} }

type InviteEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	Inviter        int64  `json:"inviter"`
}

func NewInviteEvent() InviteEvent { return InviteEvent{Type: TypeInvite} }

type LeaveEventMsg struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	UserID         int64  `json:"userId"`
}

func NewLeaveEvent() LeaveEventMsg { return LeaveEventMsg{Type: TypeLeaveEvent} }

type RenameEventMsg struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	Name           string `json:"name"`
}

func NewRenameEvent() RenameEventMsg { return RenameEventMsg{Type: TypeRenameEvent} }

type FriendRequestEvent struct {
	Type       string `json:"type"`
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Status     string `json:"status"`
}

func NewFriendRequestEvent() FriendRequestEvent {
	return FriendRequestEvent{Type: TypeFriendRequestEvent}
}

type FriendDataEvent struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

func NewFriendDataEvent() FriendDataEvent { return FriendDataEvent{Type: TypeFriendData} }

type CanceledGenerationEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	QuerierID      int64  `json:"querierId"`
}

func NewCanceledGenerationEvent() CanceledGenerationEvent {
	return CanceledGenerationEvent{Type: TypeCanceledGeneration}
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewErrorEvent() ErrorEvent { return ErrorEvent{Type: TypeError} }

type GenericEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewGenericEvent() GenericEvent { return GenericEvent{Type: TypeGeneric} }

// SearchResult mirrors search.Result at the wire level.
type SearchResult struct {
	MessageID      int64   `json:"messageId"`
	ConversationID int64   `json:"conversationId"`
	Snippet        string  `json:"snippet"`
	Rank           float64 `json:"rank"`
	CreatedAt      int64   `json:"createdAt"`
}

type SearchResultsEvent struct {
	Type       string       `json:"type"`
	Results    []SearchResult `json:"results"`
	NextCursor SearchCursor `json:"nextCursor"`
	HasMore    bool         `json:"hasMore"`
}

func NewSearchResultsEvent() SearchResultsEvent { return SearchResultsEvent{Type: TypeSearchResults} }
