// Package session implements C4: one Session per live duplex
// connection. It authenticates on handshake, decodes inbound commands,
// drives the command state machine of spec §4.4, and serialises
// outbound events — generalizing the teacher's Hub/Client pair
// (readPump/writePump joined by a buffered channel, one frame per
// WriteJSON, ping/pong keepalive) from a single echo-broadcast handler
// into the full command dispatch table, with the teacher's single
// global rate.Limiter replaced by internal/ratelimit's per-kind
// buckets.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/shopmindai/chatcore/internal/activity"
	"github.com/shopmindai/chatcore/internal/ai"
	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/attachments"
	"github.com/shopmindai/chatcore/internal/cache"
	"github.com/shopmindai/chatcore/internal/eventbus"
	"github.com/shopmindai/chatcore/internal/metrics"
	"github.com/shopmindai/chatcore/internal/presence"
	"github.com/shopmindai/chatcore/internal/protocol"
	"github.com/shopmindai/chatcore/internal/ratelimit"
	"github.com/shopmindai/chatcore/internal/search"
	"github.com/shopmindai/chatcore/internal/store"
)

const (
	maxMessageSize = 64 * 1024
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	sendBuffer     = 256
)

// state is the §4.4 lifecycle: Handshaking -> Ready -> Closing -> Closed.
type state int32

const (
	stateHandshaking state = iota
	stateReady
	stateClosing
	stateClosed
)

// Deps bundles every collaborator a Session dispatches commands into.
type Deps struct {
	Store       *store.Store
	Bus         *eventbus.Bus
	Presence    *presence.Registry
	AI          *ai.Orchestrator
	Attachments *attachments.Resolver
	Search      *search.Searcher
	Cache       *cache.Manager
	Activity    *activity.Publisher
	Limiter     *ratelimit.Limiter
	JWTKey      string
	ContextBudget int
	Log         *logrus.Logger
}

// Session is one live connection; it implements presence.Handle.
type Session struct {
	id     string
	userID int64
	conn   *websocket.Conn
	send   chan []byte
	state  atomic.Int32
	deps   *Deps

	closeOnce sync.Once
}

// Upgrader builds an http.Handler that upgrades to a websocket and
// serves a Session, the equivalent of the teacher's
// ChatHandler.HandleWebSocket.
func Upgrader(deps *Deps) http.HandlerFunc {
	up := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
		Subprotocols:    nil,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		protocols := protocolsFromRequest(r)
		token, ok := extractToken(protocols)
		if !ok {
			http.Error(w, "missing bearer subprotocol", http.StatusUnauthorized)
			return
		}
		userID, err := verifyToken(token, deps.JWTKey)
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}

		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			deps.Log.WithError(err).Warn("session: websocket upgrade failed")
			return
		}

		s := &Session{
			id:     uuid.NewString(),
			userID: userID,
			conn:   conn,
			send:   make(chan []byte, sendBuffer),
			deps:   deps,
		}
		s.state.Store(int32(stateHandshaking))
		s.run(r.Context())
	}
}

// ID implements presence.Handle.
func (s *Session) ID() string { return s.id }

// UserID implements presence.Handle.
func (s *Session) UserID() int64 { return s.userID }

// Send implements presence.Handle: a non-blocking attempt to enqueue
// event for the writer goroutine. Returns false if the outbound queue
// is saturated, signalling the event bus to close this connection with
// reason "overrun".
func (s *Session) Send(event any) bool {
	if state(s.state.Load()) >= stateClosing {
		return false
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.deps.Log.WithError(err).Error("session: failed to marshal outbound event")
		return true // not the connection's fault; don't punish it
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Close implements presence.Handle. Safe to call more than once and
// from any goroutine.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(stateClosed))
		s.deps.AI.Registry().CancelAllFor(s.userID)
		s.deps.Presence.Unregister(s)
		s.deps.Limiter.ForgetConnection(s.id)
		metrics.ConnectionsOpen.Dec()
		metrics.ConnectionsClosedTotal.WithLabelValues(reason).Inc()
		close(s.send)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(writeWait))
		s.conn.Close()
	})
}

func (s *Session) run(ctx context.Context) {
	s.deps.Presence.Register(s)
	s.subscribeToCurrentMemberships(ctx)
	s.state.Store(int32(stateReady))
	metrics.ConnectionsOpen.Inc()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.writeLoop() }()
	go func() { defer wg.Done(); s.readLoop() }()
	wg.Wait()
}

// subscribeToCurrentMemberships seeds presence interest from the
// store's membership rows, so P1 holds from the moment a connection
// comes online rather than only once it has issued a command that
// happens to touch a given conversation.
func (s *Session) subscribeToCurrentMemberships(ctx context.Context) {
	convIDs, err := s.deps.Store.ConversationIDsForUser(ctx, s.userID)
	if err != nil {
		s.deps.Log.WithError(err).Warn("session: failed to seed conversation interest")
		return
	}
	for _, convID := range convIDs {
		s.deps.Presence.Subscribe(s, convID)
	}
}

func (s *Session) readLoop() {
	defer s.Close(presence.ReasonShutdown)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if state(s.state.Load()) != stateReady {
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.emitError(apperr.New(apperr.Validation, "malformed frame"))
			continue
		}
		env.Raw = raw

		if !s.deps.Limiter.Allow(s.id, s.userID, env.Type) {
			metrics.RateLimitedTotal.WithLabelValues(env.Type).Inc()
			s.emitError(apperr.New(apperr.RateLimited, "rate limit exceeded for "+env.Type))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		s.dispatch(ctx, env)
		cancel()
	}
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) emitError(err error) {
	evt := protocol.NewErrorEvent()
	evt.Kind = string(apperr.KindOf(err))
	evt.Message = err.Error()
	s.Send(evt)
	if !apperr.Recoverable(apperr.KindOf(err)) {
		s.Close(presence.ReasonUnauthorized)
	}
}
