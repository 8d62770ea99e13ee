// Package ratelimit implements the per-connection and per-user token
// buckets of §4.4, generalizing the teacher's single
// rate.NewLimiter(rate.Limit(maxMessageRate), maxMessageRate*2) per
// client into one bucket per command kind, so a flood of SendMessage
// cannot starve RequestConversations on the same connection.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limits configures the rate (per second) and burst for one command
// kind. Both connection- and user-scoped buckets use the same limits;
// the user-scoped bucket exists to stop one user flooding from many
// connections at once.
type Limits struct {
	Rate  float64
	Burst int
}

// DefaultLimits are conservative per-command defaults; SendMessage and
// CancelGeneration are the ones most likely to be abused.
var DefaultLimits = map[string]Limits{
	"SendMessage":           {Rate: 2, Burst: 5},
	"CancelGeneration":      {Rate: 2, Burst: 4},
	"InviteUsers":           {Rate: 1, Burst: 5},
	"SendFriendRequest":     {Rate: 1, Burst: 5},
	"RenameConversation":    {Rate: 1, Burst: 5},
	"LeaveConversation":     {Rate: 1, Burst: 5},
	"RequestConversations":  {Rate: 5, Burst: 10},
	"RequestConversation":   {Rate: 5, Burst: 10},
	"RequestMessages":       {Rate: 5, Burst: 10},
	"RequestFriends":        {Rate: 2, Burst: 5},
	"RequestFriendRequests": {Rate: 2, Burst: 5},
}

const defaultRate = 3
const defaultBurst = 6

func limitsFor(kind string) Limits {
	if l, ok := DefaultLimits[kind]; ok {
		return l
	}
	return Limits{Rate: defaultRate, Burst: defaultBurst}
}

type bucketSet struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newBucketSet() *bucketSet {
	return &bucketSet{buckets: make(map[string]*rate.Limiter)}
}

func (s *bucketSet) allow(kind string) bool {
	s.mu.Lock()
	l, ok := s.buckets[kind]
	if !ok {
		lim := limitsFor(kind)
		l = rate.NewLimiter(rate.Limit(lim.Rate), lim.Burst)
		s.buckets[kind] = l
	}
	s.mu.Unlock()
	return l.Allow()
}

// Limiter tracks per-connection and per-user token buckets keyed by
// command kind.
type Limiter struct {
	mu         sync.Mutex
	perConn    map[string]*bucketSet
	perUser    map[int64]*bucketSet
}

// New builds an empty Limiter.
func New() *Limiter {
	return &Limiter{
		perConn: make(map[string]*bucketSet),
		perUser: make(map[int64]*bucketSet),
	}
}

// Allow reports whether a command of the given kind from connID/userID
// may proceed, consuming a token from both the connection- and
// user-scoped buckets. Both must have capacity; exceeding either yields
// false.
func (l *Limiter) Allow(connID string, userID int64, kind string) bool {
	connSet := l.connSet(connID)
	userSet := l.userSet(userID)

	connOK := connSet.allow(kind)
	userOK := userSet.allow(kind)
	return connOK && userOK
}

// ForgetConnection releases a closed connection's buckets.
func (l *Limiter) ForgetConnection(connID string) {
	l.mu.Lock()
	delete(l.perConn, connID)
	l.mu.Unlock()
}

func (l *Limiter) connSet(connID string) *bucketSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.perConn[connID]
	if !ok {
		s = newBucketSet()
		l.perConn[connID] = s
	}
	return s
}

func (l *Limiter) userSet(userID int64) *bucketSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.perUser[userID]
	if !ok {
		s = newBucketSet()
		l.perUser[userID] = s
	}
	return s
}
