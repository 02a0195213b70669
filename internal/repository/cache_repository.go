package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss ключа нет в кэше
var ErrCacheMiss = errors.New("cache miss")

// CacheRepository кэш целей редиректа. Ключ: вид сущности + id или slug.
type CacheRepository interface {
	Get(ctx context.Context, kind models.EntityKind, key string) (*models.Target, error)
	Set(ctx context.Context, kind models.EntityKind, key string, target *models.Target, ttl time.Duration) error
	Delete(ctx context.Context, kind models.EntityKind, key string) error
}

type cacheRepository struct {
	redis *RedisDB
}

func NewCacheRepository(redis *RedisDB) CacheRepository {
	return &cacheRepository{redis: redis}
}

func (r *cacheRepository) Get(ctx context.Context, kind models.EntityKind, key string) (*models.Target, error) {
	data, err := r.redis.Client.Get(ctx, r.key(kind, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var target models.Target
	if err := json.Unmarshal(data, &target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target: %w", err)
	}

	return &target, nil
}

func (r *cacheRepository) Set(ctx context.Context, kind models.EntityKind, key string, target *models.Target, ttl time.Duration) error {
	data, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to marshal target: %w", err)
	}

	return r.redis.Client.Set(ctx, r.key(kind, key), data, ttl).Err()
}

func (r *cacheRepository) Delete(ctx context.Context, kind models.EntityKind, key string) error {
	return r.redis.Client.Del(ctx, r.key(kind, key)).Err()
}

func (r *cacheRepository) key(kind models.EntityKind, key string) string {
	return "target:" + string(kind) + ":" + key
}
