package presence

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle is a minimal Handle used by the presence tests (the eventbus
// tests define their own), mirroring the teacher's hand-rolled *Client
// test fixtures.
type fakeHandle struct {
	id       string
	userID   int64
	sent     []any
	closed   string
	rejectOn int // Send returns false starting at this call count, 0 disables
	calls    int
}

func newFakeHandle(id string, userID int64) *fakeHandle {
	return &fakeHandle{id: id, userID: userID}
}

func (h *fakeHandle) ID() string     { return h.id }
func (h *fakeHandle) UserID() int64  { return h.userID }
func (h *fakeHandle) Close(reason string) { h.closed = reason }
func (h *fakeHandle) Send(event any) bool {
	h.calls++
	if h.rejectOn != 0 && h.calls >= h.rejectOn {
		return false
	}
	h.sent = append(h.sent, event)
	return true
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	r := New(8, testLogger())
	h := newFakeHandle("c1", 1)

	r.Register(h)
	assert.Equal(t, 1, r.CountForUser(1))

	r.Unregister(h)
	assert.Equal(t, 0, r.CountForUser(1))
}

func TestRegistry_OverCapEvictsOldest(t *testing.T) {
	r := New(2, testLogger())
	h1 := newFakeHandle("c1", 1)
	h2 := newFakeHandle("c2", 1)
	h3 := newFakeHandle("c3", 1)

	r.Register(h1)
	r.Register(h2)
	require.Equal(t, 2, r.CountForUser(1))

	r.Register(h3)
	assert.Equal(t, 2, r.CountForUser(1), "cap must stay at 2 after eviction")

	evictedCount := 0
	for _, h := range []*fakeHandle{h1, h2, h3} {
		if h.closed == ReasonOverCap {
			evictedCount++
		}
	}
	assert.Equal(t, 1, evictedCount, "exactly one connection should have been evicted")
	assert.Equal(t, ReasonOverCap, h1.closed, "the first-registered connection is the oldest and must be the one evicted")
}

func TestRegistry_SubscribeUnsubscribe(t *testing.T) {
	r := New(8, testLogger())
	h := newFakeHandle("c1", 1)
	r.Register(h)

	r.Subscribe(h, 100)
	assert.Len(t, r.ConnectionsForConversation(100), 1)

	r.Unsubscribe(h, 100)
	assert.Len(t, r.ConnectionsForConversation(100), 0)
}

func TestRegistry_UnregisterClearsInterest(t *testing.T) {
	r := New(8, testLogger())
	h := newFakeHandle("c1", 1)
	r.Register(h)
	r.Subscribe(h, 100)

	r.Unregister(h)
	assert.Len(t, r.ConnectionsForConversation(100), 0)
}

func TestRegistry_ConnectionsForUsers(t *testing.T) {
	r := New(8, testLogger())
	a := newFakeHandle("a", 1)
	b := newFakeHandle("b", 2)
	c := newFakeHandle("c", 3)
	r.Register(a)
	r.Register(b)
	r.Register(c)

	handles := r.ConnectionsForUsers(1, 2)
	assert.Len(t, handles, 2)
}

func TestRegistry_SubscribeOnUnknownConnectionIsNoop(t *testing.T) {
	r := New(8, testLogger())
	h := newFakeHandle("ghost", 1)
	r.Subscribe(h, 100) // never registered
	assert.Len(t, r.ConnectionsForConversation(100), 0)
}
