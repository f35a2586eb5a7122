package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leaseth/leaseth/pkg/engine"
)

// Redis is the shared DecisionCache for deployments running more than
// one scoring instance.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the given redis address and verifies it with a
// ping before returning. A zero ttl means entries never expire.
func NewRedis(ctx context.Context, addr string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// Get implements DecisionCache.
func (r *Redis) Get(ctx context.Context, key string) (*engine.Result, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cached decision: %w", err)
	}

	var res engine.Result
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("decoding cached decision: %w", err)
	}
	return &res, nil
}

// Set implements DecisionCache.
func (r *Redis) Set(ctx context.Context, key string, res *engine.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding decision for cache: %w", err)
	}
	if err := r.client.Set(ctx, key, b, r.ttl).Err(); err != nil {
		return fmt.Errorf("writing cached decision: %w", err)
	}
	return nil
}

// Close implements DecisionCache.
func (r *Redis) Close() error {
	return r.client.Close()
}
