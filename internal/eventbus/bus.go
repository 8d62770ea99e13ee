// Package eventbus implements C3: publish(event) with audience selection
// baked into the event's own addressing, at-most-once-per-connection,
// per-connection-FIFO delivery, and no persistence. It generalizes the
// teacher's Hub.broadcast (which only ever addressed "every client with
// this UserID") into the full audience table of spec §4.3, delegating
// the actual audience lookup to the presence registry's subscription
// index (conversation-scoped events) or direct user lookups
// (friend/conversation-snapshot events).
package eventbus

import (
	"github.com/sirupsen/logrus"

	"github.com/shopmindai/chatcore/internal/metrics"
	"github.com/shopmindai/chatcore/internal/presence"
	"github.com/shopmindai/chatcore/internal/protocol"
)

// Bus is the C3 Event Bus. It holds no persisted state; it is purely an
// addressing and delivery layer over the presence registry.
type Bus struct {
	reg *presence.Registry
	log *logrus.Logger
}

// New builds a Bus over the given presence registry.
func New(reg *presence.Registry, log *logrus.Logger) *Bus {
	return &Bus{reg: reg, log: log}
}

// ToConversation publishes payload to every online connection of every
// current member of conversationID — the audience for Message,
// StreamData, CanceledGeneration, LeaveEvent, RenameEvent and Invite
// (Invite additionally targets the invitee directly before their
// membership/subscription exists; callers pass that user id too).
func (b *Bus) ToConversation(conversationID int64, payload any, extraUserIDs ...int64) {
	handles := b.reg.ConnectionsForConversation(conversationID)
	if len(extraUserIDs) > 0 {
		handles = append(handles, b.reg.ConnectionsForUsers(extraUserIDs...)...)
	}
	b.deliver(handles, payload)
}

// ToUsers publishes payload to every online connection of the named
// users — the audience for FriendRequest and FriendData.
func (b *Bus) ToUsers(payload any, userIDs ...int64) {
	b.deliver(b.reg.ConnectionsForUsers(userIDs...), payload)
}

// ToUser publishes payload to every online connection of a single user —
// the audience for a Conversation membership snapshot.
func (b *Bus) ToUser(userID int64, payload any) {
	b.deliver(b.reg.ConnectionsForUser(userID), payload)
}

// ToConnection publishes payload to the originating connection only —
// the audience for Error and Generic.
func (b *Bus) ToConnection(h presence.Handle, payload any) {
	b.deliver([]presence.Handle{h}, payload)
}

// deliver is a no-op for an empty audience (§4.3: "a publish that finds
// no online audience is a no-op, never an error"). A connection whose
// Send reports it must be torn down is closed with reason "overrun";
// backpressure/coalescing policy for what "saturated" means lives on the
// Handle implementation (the connection session), which is the only
// component that knows its own queue depth and per-frame kind.
func (b *Bus) deliver(handles []presence.Handle, payload any) {
	metrics.EventsPublishedTotal.WithLabelValues(eventType(payload)).Add(float64(len(handles)))
	for _, h := range handles {
		if !h.Send(payload) {
			b.log.WithFields(logrus.Fields{"conn_id": h.ID(), "user_id": h.UserID()}).
				Warn("eventbus: connection overrun, closing")
			h.Close(presence.ReasonOverrun)
		}
	}
}

// eventType extracts the wire discriminator for metrics labeling without
// re-marshaling the event.
func eventType(payload any) string {
	switch payload.(type) {
	case protocol.MessageEvent:
		return protocol.TypeMessage
	case protocol.StreamDataEvent:
		return protocol.TypeStreamData
	case protocol.ConversationEvent:
		return protocol.TypeConversation
	case protocol.InviteEvent:
		return protocol.TypeInvite
	case protocol.LeaveEventMsg:
		return protocol.TypeLeaveEvent
	case protocol.RenameEventMsg:
		return protocol.TypeRenameEvent
	case protocol.FriendRequestEvent:
		return protocol.TypeFriendRequestEvent
	case protocol.FriendDataEvent:
		return protocol.TypeFriendData
	case protocol.CanceledGenerationEvent:
		return protocol.TypeCanceledGeneration
	case protocol.ErrorEvent:
		return protocol.TypeError
	case protocol.SearchResultsEvent:
		return protocol.TypeSearchResults
	default:
		return protocol.TypeGeneric
	}
}
