package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/risk"
)

const (
	riskStateKey = "paper:risk_state"
	stateTTL     = 24 * time.Hour
)

// StateCache keeps a hot copy of the risk state in Redis so dashboards
// and other processes can read it without touching Postgres. It degrades
// gracefully: cache failures are logged, never propagated.
type StateCache struct {
	client *redis.Client
}

// NewStateCache connects to Redis. A nil return with error means Redis is
// unreachable; callers are expected to run without the cache.
func NewStateCache(ctx context.Context, addr, password string, db, poolSize int) (*StateCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log := logging.Component("cache")

	log.Info().Str("addr", addr).Msg("redis connected")
	return &StateCache{client: client}, nil
}

// PublishState writes the current risk state for external readers.
func (c *StateCache) PublishState(ctx context.Context, state risk.State) {
	if c == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, riskStateKey, payload, stateTTL).Err(); err != nil {
		log := logging.Component("cache")
		log.Debug().Err(err).Msg("publishing risk state failed")
	}
}

// ReadState returns the cached risk state, or nil when absent/unreadable.
func (c *StateCache) ReadState(ctx context.Context) *risk.State {
	if c == nil {
		return nil
	}
	payload, err := c.client.Get(ctx, riskStateKey).Bytes()
	if err != nil {
		return nil
	}
	var state risk.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil
	}
	return &state
}

func (c *StateCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
