package usage

import (
	"context"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"tiergate/internal/models"
)

const globalUser = "-"

// RedisStore keeps each rollup row in a hash. Increments run as HINCRBY inside
// a MULTI/EXEC pipeline so concurrent reservations never lose updates.
type RedisStore struct {
	Redis  redis.Cmdable
	Prefix string
}

var _ CounterStore = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tiergate:usage:"
	}
	return &RedisStore{Redis: client, Prefix: prefix}
}

func (s *RedisStore) key(k Key) string {
	user := k.UserID
	if user == "" {
		user = globalUser
	}
	return s.Prefix + strings.Join([]string{string(k.PeriodType), k.Period, string(k.Scope), user, string(k.Tier)}, ":")
}

func (s *RedisStore) pattern(f Filter) string {
	part := func(v string) string {
		if v == "" {
			return "*"
		}
		return escapeGlob(v)
	}
	user := part(f.UserID)
	if f.Scope == models.ScopeGlobal && f.UserID == "" {
		user = globalUser
	}
	return escapeGlob(s.Prefix) + strings.Join([]string{
		part(string(f.PeriodType)), part(f.Period), part(string(f.Scope)), user, part(string(f.Tier)),
	}, ":")
}

func (s *RedisStore) Increment(ctx context.Context, k Key, delta models.Counter) error {
	key := s.key(k)
	pipe := s.Redis.TxPipeline()
	pipe.HSet(ctx, key, "period_type", string(k.PeriodType), "period", k.Period, "scope", string(k.Scope), "user_id", k.UserID, "tier", string(k.Tier))
	if delta.Requests != 0 {
		pipe.HIncrBy(ctx, key, "requests", delta.Requests)
	}
	if delta.PromptTokens != 0 {
		pipe.HIncrBy(ctx, key, "prompt_tokens", delta.PromptTokens)
	}
	if delta.CompletionTokens != 0 {
		pipe.HIncrBy(ctx, key, "completion_tokens", delta.CompletionTokens)
	}
	if delta.TotalTokens != 0 {
		pipe.HIncrBy(ctx, key, "total_tokens", delta.TotalTokens)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, k Key) (models.Counter, error) {
	vals, err := s.Redis.HMGet(ctx, s.key(k), "requests", "prompt_tokens", "completion_tokens", "total_tokens").Result()
	if err != nil {
		return models.Counter{}, err
	}
	return models.Counter{
		Requests:         toInt64(vals[0]),
		PromptTokens:     toInt64(vals[1]),
		CompletionTokens: toInt64(vals[2]),
		TotalTokens:      toInt64(vals[3]),
	}, nil
}

func (s *RedisStore) List(ctx context.Context, f Filter) ([]models.UsageRollup, error) {
	var out []models.UsageRollup
	iter := s.Redis.Scan(ctx, 0, s.pattern(f), 200).Iterator()
	for iter.Next(ctx) {
		h, err := s.Redis.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, err
		}
		if len(h) == 0 {
			continue
		}
		out = append(out, models.UsageRollup{
			PeriodType: models.PeriodType(h["period_type"]),
			Period:     h["period"],
			Scope:      models.Scope(h["scope"]),
			UserID:     h["user_id"],
			Tier:       models.Tier(h["tier"]),
			Counter: models.Counter{
				Requests:         toInt64(h["requests"]),
				PromptTokens:     toInt64(h["prompt_tokens"]),
				CompletionTokens: toInt64(h["completion_tokens"]),
				TotalTokens:      toInt64(h["total_tokens"]),
			},
		})
	}
	return out, iter.Err()
}

func (s *RedisStore) Reset(ctx context.Context, f Filter) (int64, error) {
	var n int64
	iter := s.Redis.Scan(ctx, 0, s.pattern(f), 200).Iterator()
	for iter.Next(ctx) {
		deleted, err := s.Redis.Del(ctx, iter.Val()).Result()
		if err != nil {
			return n, err
		}
		n += deleted
	}
	return n, iter.Err()
}

func toInt64(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
