package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRetrievalCache promotes the retrieval cache from session-local
// to process-wide, exactly the "straightforward later change" §3/§9
// anticipate: same RetrievalCache interface, no change to observable
// turn behavior.
type redisRetrievalCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisRetrievalCache wraps an existing redis client. The caller
// owns the client's lifecycle (dialing, closing).
func NewRedisRetrievalCache(client *redis.Client, ttl time.Duration) RetrievalCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &redisRetrievalCache{client: client, ttl: ttl, prefix: "turnengine:retrieval:"}
}

func (c *redisRetrievalCache) Get(key string) ([]RetrievalContext, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	var out []RetrievalContext
	if err := json.Unmarshal(val, &out); err != nil {
		return nil, false
	}
	return out, true
}

func (c *redisRetrievalCache) Set(key string, contexts []RetrievalContext) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	data, err := json.Marshal(contexts)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.prefix+key, data, c.ttl)
}
