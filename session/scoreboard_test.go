package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is a minimal stand-in for *redis.Client satisfying redisClient,
// avoiding a dependency on a live redis server for these tests.
type fakeRedis struct {
	store map[string][]byte
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{store: map[string][]byte{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	v, ok := f.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key)
	switch v := value.(type) {
	case []byte:
		f.store[key] = v
	case string:
		f.store[key] = []byte(v)
	}
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "del", keys)
	var n int64
	for _, k := range keys {
		if _, ok := f.store[k]; ok {
			delete(f.store, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func TestScoreboardPutThenGetRoundTrips(t *testing.T) {
	fake := newFakeRedis()
	s := &Scoreboard{client: fake, ttl: time.Minute}
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []byte{0x01, 0x02}, []byte("mid-auth")))
	got, err := s.Get(ctx, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, "mid-auth", string(got))
}

func TestScoreboardGetMissingEntryReturnsNotFound(t *testing.T) {
	s := &Scoreboard{client: newFakeRedis(), ttl: time.Minute}
	_, err := s.Get(context.Background(), []byte("absent"))
	require.Error(t, err)
}

func TestScoreboardZeroiseRemovesEntry(t *testing.T) {
	fake := newFakeRedis()
	s := &Scoreboard{client: fake, ttl: time.Minute}
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []byte("txn"), []byte("data")))
	require.NoError(t, s.Zeroise(ctx, []byte("txn")))
	_, err := s.Get(ctx, []byte("txn"))
	require.Error(t, err)
}
