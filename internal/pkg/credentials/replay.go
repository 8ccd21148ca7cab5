package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "oauth:state:"

// ReplayGuard lets each OAuth state be consumed once.
type ReplayGuard interface {
	// Consume returns false when the state was already used.
	Consume(ctx context.Context, state string, ttl time.Duration) (bool, error)
}

type redisReplayGuard struct {
	client *redis.Client
}

// NewRedisReplayGuard marks used states with SETNX; the key expires with the state.
func NewRedisReplayGuard(client *redis.Client) ReplayGuard {
	return &redisReplayGuard{client: client}
}

func (g *redisReplayGuard) Consume(ctx context.Context, state string, ttl time.Duration) (bool, error) {
	sum := sha256.Sum256([]byte(state))
	return g.client.SetNX(ctx, replayKeyPrefix+hex.EncodeToString(sum[:]), 1, ttl).Result()
}

type noopReplayGuard struct{}

// NoopReplayGuard accepts every state.
func NoopReplayGuard() ReplayGuard { return noopReplayGuard{} }

func (noopReplayGuard) Consume(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
