package coverage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKey = "audit:coverage"

	fieldTotal   = "total"
	fieldAudited = "audited"
)

// RedisTracker keeps the counts in one Redis hash so every instance of a
// collaborator reports into the same tally. Per-operation counts live in the
// same hash as "<operation>:total" and "<operation>:audited".
type RedisTracker struct {
	client redis.UniversalClient
	key    string
}

// NewRedisTracker creates a tracker on client. An empty key uses "audit:coverage".
func NewRedisTracker(client redis.UniversalClient, key string) *RedisTracker {
	if key == "" {
		key = defaultKey
	}
	return &RedisTracker{client: client, key: key}
}

func (t *RedisTracker) Record(ctx context.Context, operation string, audited bool) error {
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, t.key, fieldTotal, 1)
		if operation != "" {
			pipe.HIncrBy(ctx, t.key, operation+":"+fieldTotal, 1)
		}
		if audited {
			pipe.HIncrBy(ctx, t.key, fieldAudited, 1)
			if operation != "" {
				pipe.HIncrBy(ctx, t.key, operation+":"+fieldAudited, 1)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record coverage: %w", err)
	}
	return nil
}

func (t *RedisTracker) Coverage(ctx context.Context) (float64, error) {
	vals, err := t.client.HMGet(ctx, t.key, fieldTotal, fieldAudited).Result()
	if err != nil {
		return 0, fmt.Errorf("read coverage: %w", err)
	}
	return Counts{Total: asInt(vals[0]), Audited: asInt(vals[1])}.Ratio(), nil
}

// Operations returns the per-operation counts.
func (t *RedisTracker) Operations(ctx context.Context) (map[string]Counts, error) {
	all, err := t.client.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read coverage: %w", err)
	}

	out := make(map[string]Counts)
	for field, raw := range all {
		op, kind, ok := cutLast(field, ":")
		if !ok {
			continue
		}
		n, _ := strconv.ParseInt(raw, 10, 64)
		c := out[op]
		switch kind {
		case fieldTotal:
			c.Total = n
		case fieldAudited:
			c.Audited = n
		default:
			continue
		}
		out[op] = c
	}
	return out, nil
}

func asInt(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
