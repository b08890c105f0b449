package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps the offline queue in a Redis list so queued messages
// survive a process restart. Several bridges must use distinct keys.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisQueue creates a queue stored under key
func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, env Envelope) error {
	data, err := sonic.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis queue: encode: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis queue: push: %w", err)
	}
	return nil
}

// PushFront prepends envs keeping their order. LPUSH inserts each value at
// the head, so values are sent last to first.
func (q *RedisQueue) PushFront(ctx context.Context, envs ...Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(envs))
	for i := len(envs) - 1; i >= 0; i-- {
		data, err := sonic.Marshal(envs[i])
		if err != nil {
			return fmt.Errorf("redis queue: encode: %w", err)
		}
		values = append(values, data)
	}
	if err := q.client.LPush(ctx, q.key, values...).Err(); err != nil {
		return fmt.Errorf("redis queue: push front: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (Envelope, bool, error) {
	data, err := q.client.LPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Envelope{}, false, nil
	}
	if err != nil {
		return Envelope{}, false, fmt.Errorf("redis queue: pop: %w", err)
	}

	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return Envelope{}, false, fmt.Errorf("redis queue: decode: %w", err)
	}
	return env, true, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis queue: len: %w", err)
	}
	return int(n), nil
}

// Remove scans the list for the requeued envelope and deletes that exact
// value with LREM.
func (q *RedisQueue) Remove(ctx context.Context, spanID string) (bool, error) {
	values, err := q.client.LRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("redis queue: range: %w", err)
	}
	for _, raw := range values {
		var env Envelope
		if err := sonic.UnmarshalString(raw, &env); err != nil {
			continue
		}
		if !env.Requeued || env.Message.SpanID != spanID {
			continue
		}
		n, err := q.client.LRem(ctx, q.key, 1, raw).Result()
		if err != nil {
			return false, fmt.Errorf("redis queue: remove: %w", err)
		}
		return n > 0, nil
	}
	return false, nil
}
