package session

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/aox/pkicore/berrors"
	"github.com/redis/go-redis/v9"
)

// redisClient is the narrow slice of *redis.Client's method set the
// scoreboard needs, so tests can substitute a fake instead of dialling a
// live server.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Scoreboard is the redis-backed session cache from spec §9's Global State
// discussion: "the random pool, the scoreboard for session caching, and the
// configuration table each have a clear lifecycle (init -> use -> zeroise ->
// teardown)". It holds small opaque snapshots keyed by transaction ID -- a
// note that a transaction is mid-authorisation, say -- not live Session
// objects, since a Session owns transport and crypto state that cannot
// survive a round trip through redis.
type Scoreboard struct {
	client redisClient
	ttl    time.Duration
}

// NewScoreboard wraps an already-connected redis client. ttl bounds how
// long an entry survives unattended, so an abandoned transaction does not
// linger forever.
func NewScoreboard(client *redis.Client, ttl time.Duration) *Scoreboard {
	return &Scoreboard{client: client, ttl: ttl}
}

// Put records snapshot under transactionID, replacing any prior entry.
func (s *Scoreboard) Put(ctx context.Context, transactionID []byte, snapshot []byte) error {
	if err := s.client.Set(ctx, scoreboardKey(transactionID), snapshot, s.ttl).Err(); err != nil {
		return berrors.New(berrors.Write, "writing session scoreboard entry: %v", err)
	}
	return nil
}

// Get returns the snapshot stored for transactionID, or NotFound.
func (s *Scoreboard) Get(ctx context.Context, transactionID []byte) ([]byte, error) {
	val, err := s.client.Get(ctx, scoreboardKey(transactionID)).Bytes()
	if err == redis.Nil {
		return nil, berrors.New(berrors.NotFound, "no scoreboard entry for transaction")
	}
	if err != nil {
		return nil, berrors.New(berrors.Read, "reading session scoreboard entry: %v", err)
	}
	return val, nil
}

// Zeroise removes transactionID's entry, the scoreboard's half of the
// init -> use -> zeroise -> teardown lifecycle spec §9 calls for.
func (s *Scoreboard) Zeroise(ctx context.Context, transactionID []byte) error {
	if err := s.client.Del(ctx, scoreboardKey(transactionID)).Err(); err != nil {
		return berrors.New(berrors.Write, "deleting session scoreboard entry: %v", err)
	}
	return nil
}

func scoreboardKey(transactionID []byte) string {
	return "pkicore:session:" + hex.EncodeToString(transactionID)
}
