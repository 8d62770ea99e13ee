package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestManager spins up an in-process miniredis server so the cache
// layer is exercised against real Redis wire behavior rather than a
// hand-rolled fake.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(client, log)
}

type payload struct {
	Name string `json:"name"`
}

func TestGet_MissReturnsErrCacheMiss(t *testing.T) {
	m := newTestManager(t)
	var dest payload
	err := m.Get(context.Background(), "missing", &dest)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestSetThenGet_RoundTrips(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Set(context.Background(), "k", payload{Name: "alice"}, time.Minute))

	var dest payload
	require.NoError(t, m.Get(context.Background(), "k", &dest))
	assert.Equal(t, "alice", dest.Name)
}

func TestGetOrSet_CallsLoaderOnlyOnMiss(t *testing.T) {
	m := newTestManager(t)
	calls := 0
	loader := func() (any, error) {
		calls++
		return payload{Name: "loaded"}, nil
	}

	var dest payload
	require.NoError(t, m.GetOrSet(context.Background(), "k", &dest, time.Minute, loader))
	assert.Equal(t, "loaded", dest.Name)
	assert.Equal(t, 1, calls)

	var dest2 payload
	require.NoError(t, m.GetOrSet(context.Background(), "k", &dest2, time.Minute, loader))
	assert.Equal(t, "loaded", dest2.Name)
	assert.Equal(t, 1, calls, "a cache hit must not invoke the loader again")
}

func TestGetOrSet_PropagatesLoaderError(t *testing.T) {
	m := newTestManager(t)
	wantErr := errors.New("boom")
	var dest payload
	err := m.GetOrSet(context.Background(), "k", &dest, time.Minute, func() (any, error) {
		return nil, wantErr
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, wantErr))
}

func TestDelete_RemovesKeys(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Set(context.Background(), "a", payload{Name: "x"}, time.Minute))
	require.NoError(t, m.Set(context.Background(), "b", payload{Name: "y"}, time.Minute))

	require.NoError(t, m.Delete(context.Background(), "a", "b"))

	var dest payload
	err := m.Get(context.Background(), "a", &dest)
	assert.True(t, errors.Is(err, ErrCacheMiss))
	err = m.Get(context.Background(), "b", &dest)
	assert.True(t, errors.Is(err, ErrCacheMiss))
}

func TestDelete_EmptyKeysIsNoop(t *testing.T) {
	m := newTestManager(t)
	assert.NoError(t, m.Delete(context.Background()))
}

func TestConversationsKeyAndSearchKey_AreStable(t *testing.T) {
	assert.Equal(t, "conversations:42", ConversationsKey(42))
	assert.Equal(t, "search:7:hello", SearchKey(7, "hello"))
}
