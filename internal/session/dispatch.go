package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopmindai/chatcore/internal/activity"
	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/cache"
	"github.com/shopmindai/chatcore/internal/domain"
	"github.com/shopmindai/chatcore/internal/protocol"
	"github.com/shopmindai/chatcore/internal/search"
	"github.com/shopmindai/chatcore/internal/store"
)

const (
	conversationsCacheTTL = 30 * time.Second
	searchCacheTTL        = 15 * time.Second
)

// dispatch decodes env.Raw per env.Type and runs the matching command.
// Any command received outside stateReady (besides the implicit
// handshake, which never reaches here) is a policy violation, but
// readLoop already filters on state, so dispatch only ever sees
// Ready-state traffic.
func (s *Session) dispatch(ctx context.Context, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeSendMessage:
		s.handleSendMessage(ctx, env.Raw)
	case protocol.TypeRequestConversations:
		s.handleRequestConversations(ctx, env.Raw)
	case protocol.TypeRequestConversation:
		s.handleRequestConversation(ctx, env.Raw)
	case protocol.TypeRequestMessages:
		s.handleRequestMessages(ctx, env.Raw)
	case protocol.TypeInviteUsers:
		s.handleInviteUsers(ctx, env.Raw)
	case protocol.TypeLeaveConversation:
		s.handleLeaveConversation(ctx, env.Raw)
	case protocol.TypeRenameConversation:
		s.handleRenameConversation(ctx, env.Raw)
	case protocol.TypeSendFriendRequest:
		s.handleSendFriendRequest(ctx, env.Raw)
	case protocol.TypeRequestFriends:
		s.handleRequestFriends(ctx)
	case protocol.TypeRequestFriendRequests:
		s.handleRequestFriendRequests(ctx)
	case protocol.TypeCancelGeneration:
		s.handleCancelGeneration(env.Raw)
	case protocol.TypeRequestSearch:
		s.handleRequestSearch(ctx, env.Raw)
	default:
		s.emitError(apperr.New(apperr.Validation, "unknown command type: "+env.Type))
	}
}

func (s *Session) decode(raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		s.emitError(apperr.New(apperr.Validation, "malformed command body"))
		return false
	}
	return true
}

func (s *Session) handleSendMessage(ctx context.Context, raw json.RawMessage) {
	var cmd protocol.SendMessage
	if !s.decode(raw, &cmd) {
		return
	}
	bodyEmpty := cmd.Body == nil || strings.TrimSpace(*cmd.Body) == ""
	if bodyEmpty && cmd.Attachment == nil {
		s.emitError(apperr.New(apperr.Validation, "message requires a body or an attachment"))
		return
	}

	var conversationID int64
	switch {
	case cmd.ConversationID != nil:
		conversationID = *cmd.ConversationID
	case cmd.AIModelID != nil:
		id, _, err := s.deps.Store.InviteMembers(ctx, nil, s.userID, []int64{s.userID})
		if err != nil {
			s.emitError(err)
			return
		}
		conversationID = id
	default:
		s.emitError(apperr.New(apperr.Validation, "sendMessage requires conversationId or aiModelId"))
		return
	}
	s.deps.Presence.Subscribe(s, conversationID)

	var fileRef *store.FileRef
	if cmd.Attachment != nil {
		ref, err := s.deps.Attachments.Resolve(ctx, s.userID, cmd.Attachment.ID, cmd.Attachment.Name)
		if err != nil {
			s.emitError(err)
			return
		}
		fileRef = &ref
	}

	body := ""
	if cmd.Body != nil {
		body = *cmd.Body
	}

	msg, err := s.deps.Store.CreateMessage(ctx, conversationID, store.NewHumanAuthor(s.userID), body, fileRef)
	if err != nil {
		s.emitError(err)
		return
	}

	evt := protocol.NewMessageEvent()
	evt.ID = msg.ID
	evt.ConversationID = msg.ConversationID
	evt.UserID = msg.SenderUserID
	evt.Body = msg.Body
	evt.FileID = msg.FileID
	evt.FileName = msg.FileName
	evt.CreatedAt = msg.CreatedAt.Unix()
	s.deps.Bus.ToConversation(conversationID, evt)
	s.invalidateConversationsFor(ctx, conversationID)
	s.deps.Activity.Publish(activity.KindMessageCreated, evt)

	if cmd.AIModelID != nil {
		model, err := s.deps.Store.AIModel(ctx, *cmd.AIModelID)
		if err != nil {
			s.emitError(err)
			return
		}
		go s.deps.AI.Generate(context.Background(), conversationID, s.userID, model.ID, model.Name)
	}
}

func (s *Session) handleRequestConversations(ctx context.Context, raw json.RawMessage) {
	var cmd protocol.RequestConversations
	if !s.decode(raw, &cmd) {
		return
	}
	limit := 50
	if cmd.MessageNum != nil {
		limit = *cmd.MessageNum
	}

	var convs []domain.Conversation
	cacheErr := s.deps.Cache.GetOrSet(ctx, cache.ConversationsKey(s.userID), &convs, conversationsCacheTTL, func() (any, error) {
		return s.deps.Store.Conversations(ctx, s.userID, limit)
	})
	if cacheErr != nil {
		s.emitError(cacheErr)
		return
	}
	for _, c := range convs {
		s.deps.Presence.Subscribe(s, c.ID)
		s.Send(conversationEvent(c))
	}
}

func (s *Session) handleRequestConversation(ctx context.Context, raw json.RawMessage) {
	var cmd protocol.RequestConversation
	if !s.decode(raw, &cmd) {
		return
	}
	c, err := s.deps.Store.Conversation(ctx, cmd.ID, s.userID)
	if err != nil {
		s.emitError(err)
		return
	}
	s.deps.Presence.Subscribe(s, c.ID)
	s.Send(conversationEvent(c))
}

func (s *Session) handleRequestMessages(ctx context.Context, raw json.RawMessage) {
	var cmd protocol.RequestMessages
	if !s.decode(raw, &cmd) {
		return
	}
	var cursor int64
	if cmd.Cursor != nil {
		cursor = *cmd.Cursor
	}
	limit := 0
	if cmd.Limit != nil {
		limit = *cmd.Limit
	}
	page, err := s.deps.Store.ListMessages(ctx, cmd.ConversationID, s.userID, cursor, limit)
	if err != nil {
		s.emitError(err)
		return
	}
	for _, m := range page.Messages {
		evt := protocol.NewMessageEvent()
		evt.ID = m.ID
		evt.ConversationID = m.ConversationID
		evt.UserID = m.SenderUserID
		evt.AIModelID = m.AIModelID
		evt.Body = m.Body
		evt.FileID = m.FileID
		evt.FileName = m.FileName
		evt.CreatedAt = m.CreatedAt.Unix()
		s.Send(evt)
	}
}

func (s *Session) handleInviteUsers(ctx context.Context, raw json.RawMessage) {
	var cmd protocol.InviteUsers
	if !s.decode(raw, &cmd) {
		return
	}
	if len(cmd.Invitees) == 0 {
		s.emitError(apperr.New(apperr.Validation, "invitees must be non-empty"))
		return
	}
	convID, added, err := s.deps.Store.InviteMembers(ctx, cmd.ConversationID, s.userID, cmd.Invitees)
	if err != nil {
		s.emitError(err)
		return
	}
	s.deps.Presence.Subscribe(s, convID)

	evt := protocol.NewInviteEvent()
	evt.ConversationID = convID
	evt.Inviter = s.userID
	s.deps.Bus.ToConversation(convID, evt, added...)
	s.invalidateConversations(ctx, append(added, s.userID))
	s.deps.Activity.Publish(activity.KindConversationCreated, evt)

	for _, uid := range added {
		for _, h := range s.deps.Presence.ConnectionsForUser(uid) {
			s.deps.Presence.Subscribe(h, convID)
		}
	}
}

func (s *Session) handleLeaveConversation(ctx context.Context, raw json.RawMessage) {
	var cmd protocol.LeaveConversation
	if !s.decode(raw, &cmd) {
		return
	}
	evt := protocol.NewLeaveEvent()
	evt.ConversationID = cmd.ConversationID
	evt.UserID = s.userID
	// Published before the membership row is removed so audience
	// addressing can still find every current member (§4.4 item 6).
	s.deps.Bus.ToConversation(cmd.ConversationID, evt)

	if err := s.deps.Store.LeaveConversation(ctx, cmd.ConversationID, s.userID); err != nil {
		s.emitError(err)
		return
	}
	s.invalidateConversations(ctx, []int64{s.userID})
	for _, h := range s.deps.Presence.ConnectionsForUser(s.userID) {
		s.deps.Presence.Unsubscribe(h, cmd.ConversationID)
	}
}

func (s *Session) handleRenameConversation(ctx context.Context, raw json.RawMessage) {
	var cmd protocol.RenameConversation
	if !s.decode(raw, &cmd) {
		return
	}
	name := ""
	if cmd.Name != nil {
		name = *cmd.Name
	}
	if err := s.deps.Store.RenameConversation(ctx, cmd.ConversationID, s.userID, name); err != nil {
		s.emitError(err)
		return
	}
	evt := protocol.NewRenameEvent()
	evt.ConversationID = cmd.ConversationID
	evt.Name = name
	s.deps.Bus.ToConversation(cmd.ConversationID, evt)
	s.invalidateConversationsFor(ctx, cmd.ConversationID)
}

func (s *Session) handleSendFriendRequest(ctx context.Context, raw json.RawMessage) {
	var cmd protocol.SendFriendRequest
	if !s.decode(raw, &cmd) {
		return
	}
	status, err := s.deps.Store.SendFriendRequest(ctx, s.userID, cmd.OtherUserID, cmd.Accept)
	if err != nil {
		s.emitError(err)
		return
	}

	evt := protocol.NewFriendRequestEvent()
	evt.SenderID = s.userID
	evt.ReceiverID = cmd.OtherUserID
	evt.Status = string(status)
	s.deps.Bus.ToUsers(evt, s.userID, cmd.OtherUserID)
	s.deps.Activity.Publish(activity.KindFriendRequestChanged, evt)

	if status == domain.FriendRequestAccepted {
		for _, uid := range []int64{s.userID, cmd.OtherUserID} {
			fd := protocol.NewFriendDataEvent()
			fd.ID = otherOf(uid, s.userID, cmd.OtherUserID)
			s.deps.Bus.ToUsers(fd, uid)
		}
	}
}

func otherOf(self, a, b int64) int64 {
	if self == a {
		return b
	}
	return a
}

func (s *Session) handleRequestFriends(ctx context.Context) {
	ids, err := s.deps.Store.Friends(ctx, s.userID)
	if err != nil {
		s.emitError(err)
		return
	}
	for _, id := range ids {
		evt := protocol.NewFriendDataEvent()
		evt.ID = id
		s.Send(evt)
	}
}

func (s *Session) handleRequestFriendRequests(ctx context.Context) {
	reqs, err := s.deps.Store.FriendRequests(ctx, s.userID)
	if err != nil {
		s.emitError(err)
		return
	}
	for _, fr := range reqs {
		evt := protocol.NewFriendRequestEvent()
		evt.SenderID = fr.SenderID
		evt.ReceiverID = fr.ReceiverID
		evt.Status = string(fr.Status)
		s.Send(evt)
	}
}

func (s *Session) handleCancelGeneration(raw json.RawMessage) {
	var cmd protocol.CancelGeneration
	if !s.decode(raw, &cmd) {
		return
	}
	s.deps.AI.Registry().Cancel(s.userID, cmd.ConversationID)
}

func (s *Session) handleRequestSearch(ctx context.Context, raw json.RawMessage) {
	var cmd protocol.RequestSearch
	if !s.decode(raw, &cmd) {
		return
	}

	f := search.Filters{SenderID: cmd.SenderID, CreatedAfter: cmd.CreatedAfter, CreatedBefore: cmd.CreatedBefore}
	if cmd.ConversationID != nil {
		f.ConversationIDs = []int64{*cmd.ConversationID}
	}
	if cmd.Sort == "recency" {
		f.Sort = search.SortRecency
	}

	var cursor search.Cursor
	if cmd.Cursor != nil {
		cursor = search.Cursor{Rank: cmd.Cursor.Rank, CreatedAt: cmd.Cursor.CreatedAt, MessageID: cmd.Cursor.MessageID}
	}
	limit := 0
	if cmd.Limit != nil {
		limit = *cmd.Limit
	}

	// Only the plain first page (no cursor, no extra filters, rank order)
	// is cacheable under a single q-keyed entry; anything more specific
	// goes straight to the searcher so a cache hit never serves a
	// mismatched filter set.
	cacheable := cursor == (search.Cursor{}) && f.SenderID == nil && f.CreatedAfter == nil && f.CreatedBefore == nil && cmd.ConversationID == nil && f.Sort == search.SortRank

	var page search.Page
	var err error
	if cacheable {
		err = s.deps.Cache.GetOrSet(ctx, cache.SearchKey(s.userID, cmd.Q), &page, searchCacheTTL, func() (any, error) {
			return s.deps.Search.Search(ctx, s.userID, cmd.Q, f, cursor, limit)
		})
	} else {
		page, err = s.deps.Search.Search(ctx, s.userID, cmd.Q, f, cursor, limit)
	}
	if err != nil {
		s.emitError(err)
		return
	}

	evt := protocol.NewSearchResultsEvent()
	evt.HasMore = page.HasMore
	evt.NextCursor = protocol.SearchCursor{Rank: page.NextCursor.Rank, CreatedAt: page.NextCursor.CreatedAt, MessageID: page.NextCursor.MessageID}
	for _, r := range page.Results {
		evt.Results = append(evt.Results, protocol.SearchResult{
			MessageID:      r.MessageID,
			ConversationID: r.ConversationID,
			Snippet:        r.Snippet,
			Rank:           r.Rank,
			CreatedAt:      r.CreatedAt,
		})
	}
	s.Send(evt)
}

// invalidateConversationsFor drops the cached conversation list for every
// current member of conversationID, since a new message moves it to the
// top of each member's list.
func (s *Session) invalidateConversationsFor(ctx context.Context, conversationID int64) {
	members, err := s.deps.Store.MemberIDs(ctx, conversationID)
	if err != nil {
		s.deps.Log.WithError(err).Warn("session: failed to look up members for cache invalidation")
		return
	}
	s.invalidateConversations(ctx, members)
}

func (s *Session) invalidateConversations(ctx context.Context, userIDs []int64) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, cache.ConversationsKey(id))
	}
	if err := s.deps.Cache.Delete(ctx, keys...); err != nil {
		s.deps.Log.WithError(err).Warn("session: cache invalidation failed")
	}
}

func conversationEvent(c domain.Conversation) protocol.ConversationEvent {
	evt := protocol.NewConversationEvent()
	evt.ID = c.ID
	evt.Title = c.Title
	evt.LastMessageAt = c.LastMessageAt.Unix()
	return evt
}
