package store

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tiergate/internal/models"
)

const PolicyInvalidateChannel = "tiergate:policy:invalidate"

// SystemPolicySource loads the system policy record.
type SystemPolicySource interface {
	GetSystemPolicy(ctx context.Context) (*models.SystemPolicy, error)
}

// PolicyCache holds the system policy after the first load until it is
// invalidated. With Redis configured, invalidation fans out to every instance.
// A load that started before an invalidation is never stored.
type PolicyCache struct {
	Source SystemPolicySource
	Redis  *redis.Client
	Logger *zap.Logger

	mu    sync.Mutex
	gen   uint64
	cur   *models.SystemPolicy
	loads singleflight.Group
}

func NewPolicyCache(src SystemPolicySource, redisClient *redis.Client, logger *zap.Logger) *PolicyCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyCache{Source: src, Redis: redisClient, Logger: logger}
}

// GetSystemPolicy returns the cached policy, loading it on a miss. Concurrent
// misses of the same generation share one load. Callers must not mutate the
// result.
func (c *PolicyCache) GetSystemPolicy(ctx context.Context) (*models.SystemPolicy, error) {
	c.mu.Lock()
	p, gen := c.cur, c.gen
	c.mu.Unlock()
	if p != nil {
		return p, nil
	}

	v, err, _ := c.loads.Do(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		p, err := c.Source.GetSystemPolicy(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.cur = p
		}
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SystemPolicy), nil
}

func (c *PolicyCache) drop() {
	c.mu.Lock()
	c.gen++
	c.cur = nil
	c.mu.Unlock()
}

// Invalidate drops the local copy and tells other instances to do the same.
func (c *PolicyCache) Invalidate(ctx context.Context) {
	c.drop()
	if c.Redis == nil {
		return
	}
	if err := c.Redis.Publish(ctx, PolicyInvalidateChannel, "system").Err(); err != nil {
		c.Logger.Warn("policy invalidate publish failed", zap.Error(err))
	}
}

// Listen drops the local copy on every broadcast until ctx is done.
func (c *PolicyCache) Listen(ctx context.Context) {
	if c.Redis == nil {
		return
	}
	sub := c.Redis.Subscribe(ctx, PolicyInvalidateChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			c.drop()
		}
	}
}
