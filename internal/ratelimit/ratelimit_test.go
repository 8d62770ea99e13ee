package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenExhausted(t *testing.T) {
	l := New()
	limit := DefaultLimits["SendMessage"]

	allowed := 0
	for i := 0; i < limit.Burst+2; i++ {
		if l.Allow("conn-1", 1, "SendMessage") {
			allowed++
		}
	}
	assert.Equal(t, limit.Burst, allowed, "only the burst size should be admitted before refill")
}

func TestLimiter_PerKindBucketsAreIndependent(t *testing.T) {
	l := New()
	limit := DefaultLimits["SendMessage"]
	for i := 0; i < limit.Burst; i++ {
		l.Allow("conn-1", 1, "SendMessage")
	}
	assert.False(t, l.Allow("conn-1", 1, "SendMessage"), "SendMessage bucket should be exhausted")
	assert.True(t, l.Allow("conn-1", 1, "RequestConversations"), "a different command kind must have its own bucket")
}

func TestLimiter_PerConnectionBucketsAreIndependent(t *testing.T) {
	l := New()
	limit := DefaultLimits["SendMessage"]
	for i := 0; i < limit.Burst; i++ {
		l.Allow("conn-1", 1, "SendMessage")
	}
	assert.False(t, l.Allow("conn-1", 1, "SendMessage"))
	assert.True(t, l.Allow("conn-2", 2, "SendMessage"), "a different connection (of a different user, so the user bucket is fresh too) has its own bucket")
}

func TestLimiter_PerUserCapStarvesFloodAcrossConnections(t *testing.T) {
	l := New()
	limit := DefaultLimits["SendMessage"]
	// Exhaust the user-scoped bucket by flooding from many connections.
	for i := 0; i < limit.Burst; i++ {
		l.Allow("conn-flood", 1, "SendMessage")
	}
	assert.False(t, l.Allow("conn-fresh", 1, "SendMessage"), "user-scoped bucket must still cap a flood spread across connections")
}

func TestLimiter_UnknownKindGetsDefaultBucket(t *testing.T) {
	l := New()
	allowed := 0
	for i := 0; i < defaultBurst+1; i++ {
		if l.Allow("conn-1", 1, "SomeFutureCommand") {
			allowed++
		}
	}
	assert.Equal(t, defaultBurst, allowed)
}

func TestLimiter_ForgetConnectionResetsItsBuckets(t *testing.T) {
	l := New()
	limit := DefaultLimits["SendMessage"]
	for i := 0; i < limit.Burst; i++ {
		l.Allow("conn-1", 1, "SendMessage")
	}
	assert.False(t, l.Allow("conn-1", 1, "SendMessage"))

	l.ForgetConnection("conn-1")
	assert.True(t, l.Allow("conn-1", 2, "SendMessage"), "a fresh connection id for a different user should get a clean bucket")
}
