// Package presence implements C2: the process-wide mapping from user
// identity to the set of live connections and their per-conversation
// interest. It is the single process-wide piece of mutable liveness
// state (§9 "Global state") and is the only component allowed to write
// it, mirroring the teacher's Hub (map[string]*Client guarded by a
// sync.RWMutex) generalized with a conversation-interest reverse index
// and a per-user connection cap instead of the teacher's unbounded map.
package presence

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// CloseReason values reported to Handle.Close.
const (
	ReasonOverCap    = "connection_limit"
	ReasonOverrun    = "overrun"
	ReasonUnauthorized = "unauthorized"
	ReasonShutdown   = "shutdown"
)

// Handle is the transport-side object the registry holds a weak
// reference to. The connection session implements it.
type Handle interface {
	ID() string
	UserID() int64
	// Send attempts a non-blocking delivery; returns false if the
	// connection's outbound queue is saturated.
	Send(event any) bool
	Close(reason string)
}

type entry struct {
	handle   Handle
	interest map[int64]struct{}
	seq      uint64
}

// Registry is the C2 Presence Registry. Zero value is not usable; use
// New.
type Registry struct {
	mu             sync.RWMutex
	byUser         map[int64]map[string]*entry
	byConversation map[int64]map[string]*entry
	maxPerUser     int
	nextSeq        uint64
	log            *logrus.Logger
}

// New builds a Registry with the given per-user connection soft cap
// (§4.2, default 8).
func New(maxPerUser int, log *logrus.Logger) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = 8
	}
	return &Registry{
		byUser:         make(map[int64]map[string]*entry),
		byConversation: make(map[int64]map[string]*entry),
		maxPerUser:     maxPerUser,
		log:            log,
	}
}

// Register adds a handle to the registry. If the user is already at the
// soft cap, the oldest connection for that user is closed with
// ReasonOverCap before the new one is admitted.
func (r *Registry) Register(h Handle) {
	r.mu.Lock()
	conns := r.byUser[h.UserID()]
	if conns == nil {
		conns = make(map[string]*entry)
		r.byUser[h.UserID()] = conns
	}

	var evicted Handle
	if len(conns) >= r.maxPerUser {
		var oldest *entry
		for _, e := range conns {
			if oldest == nil || e.seq < oldest.seq {
				oldest = e
			}
		}
		if oldest != nil {
			evicted = oldest.handle
			r.removeLocked(evicted)
		}
	}

	r.nextSeq++
	conns[h.ID()] = &entry{handle: h, interest: make(map[int64]struct{}), seq: r.nextSeq}
	r.byUser[h.UserID()] = conns
	r.mu.Unlock()

	if evicted != nil {
		evicted.Close(ReasonOverCap)
		r.log.WithFields(logrus.Fields{"user_id": h.UserID(), "evicted": evicted.ID()}).
			Warn("presence: connection cap exceeded, closed oldest connection")
	}
	r.log.WithFields(logrus.Fields{"user_id": h.UserID(), "conn_id": h.ID()}).Debug("presence: registered")
}

// Unregister removes a handle and all of its conversation interest.
// Safe to call multiple times.
func (r *Registry) Unregister(h Handle) {
	r.mu.Lock()
	r.removeLocked(h)
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{"user_id": h.UserID(), "conn_id": h.ID()}).Debug("presence: unregistered")
}

// removeLocked must be called with mu held for writing.
func (r *Registry) removeLocked(h Handle) {
	if conns, ok := r.byUser[h.UserID()]; ok {
		if e, ok := conns[h.ID()]; ok {
			for convID := range e.interest {
				if byConv, ok := r.byConversation[convID]; ok {
					delete(byConv, h.ID())
					if len(byConv) == 0 {
						delete(r.byConversation, convID)
					}
				}
			}
		}
		delete(conns, h.ID())
		if len(conns) == 0 {
			delete(r.byUser, h.UserID())
		}
	}
}

// Subscribe records that h is interested in events for conversationID
// (the connection's user currently has a membership row there).
func (r *Registry) Subscribe(h Handle, conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.byUser[h.UserID()]
	if !ok {
		return
	}
	e, ok := conns[h.ID()]
	if !ok {
		return
	}
	e.interest[conversationID] = struct{}{}
	byConv := r.byConversation[conversationID]
	if byConv == nil {
		byConv = make(map[string]*entry)
		r.byConversation[conversationID] = byConv
	}
	byConv[h.ID()] = e
}

// Unsubscribe reverses Subscribe, used on LeaveConversation.
func (r *Registry) Unsubscribe(h Handle, conversationID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conns, ok := r.byUser[h.UserID()]; ok {
		if e, ok := conns[h.ID()]; ok {
			delete(e.interest, conversationID)
		}
	}
	if byConv, ok := r.byConversation[conversationID]; ok {
		delete(byConv, h.ID())
		if len(byConv) == 0 {
			delete(r.byConversation, conversationID)
		}
	}
}

// ConnectionsForConversation returns every live connection currently
// interested in conversationID. The returned slice is a snapshot; the
// caller must not hold it across further registry mutations.
func (r *Registry) ConnectionsForConversation(conversationID int64) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byConv, ok := r.byConversation[conversationID]
	if !ok {
		return nil
	}
	out := make([]Handle, 0, len(byConv))
	for _, e := range byConv {
		out = append(out, e.handle)
	}
	return out
}

// ConnectionsForUser returns every live connection of a single user.
func (r *Registry) ConnectionsForUser(userID int64) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]Handle, 0, len(conns))
	for _, e := range conns {
		out = append(out, e.handle)
	}
	return out
}

// ConnectionsForUsers is a convenience batching of ConnectionsForUser
// across several users (used to address FriendData/FriendRequest events).
func (r *Registry) ConnectionsForUsers(userIDs ...int64) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Handle
	for _, uid := range userIDs {
		if conns, ok := r.byUser[uid]; ok {
			for _, e := range conns {
				out = append(out, e.handle)
			}
		}
	}
	return out
}

// CountForUser reports the live connection count for a user (used by
// tests).
func (r *Registry) CountForUser(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}
