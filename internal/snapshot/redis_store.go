package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the snapshot as one JSON value in Redis, for deployments
// where the coordinator host itself has no durable disk.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (r *RedisStore) Save(s SessionSnapshot) error {
	b, err := json.Marshal(&s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Set(ctx, r.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Load() (SessionSnapshot, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return SessionSnapshot{}, false, nil
	}
	if err != nil {
		return SessionSnapshot{}, false, fmt.Errorf("redis get: %w", err)
	}
	var s SessionSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return SessionSnapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return s, true, nil
}
