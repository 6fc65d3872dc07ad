package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"rotcunit/internal/metrics"
)

const (
	redisEntryPrefix = "rc:entry:"
	redisTagPrefix   = "rc:tag:"
	redisKeyTags     = "rc:keytags:"
	redisKeySet      = "rc:keys"
)

// RedisStore is a Store backed by a shared Redis instance, for deployments
// where several scanning stations share one cache.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, namespace, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, redisEntryPrefix+fullKey(namespace, key)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues(namespace).Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		// A corrupt entry behaves like a miss; the next Put repairs it.
		metrics.CacheMisses.WithLabelValues(namespace).Inc()
		return nil, nil
	}
	metrics.CacheHits.WithLabelValues(namespace).Inc()
	return &e, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, namespace, key string, data any, tags ...string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(Entry{Data: raw, Timestamp: s.now()})
	if err != nil {
		return err
	}
	fk := fullKey(namespace, key)

	if err := s.unlink(ctx, fk); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisEntryPrefix+fk, envelope, 0)
	pipe.SAdd(ctx, redisKeySet, fk)
	for _, tag := range tags {
		pipe.SAdd(ctx, redisTagPrefix+tag, fk)
		pipe.SAdd(ctx, redisKeyTags+fk, tag)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Invalidate implements Store.
func (s *RedisStore) Invalidate(ctx context.Context, namespace, key string) error {
	return s.drop(ctx, fullKey(namespace, key))
}

// InvalidateTag implements Store.
func (s *RedisStore) InvalidateTag(ctx context.Context, tag string) error {
	members, err := s.client.SMembers(ctx, redisTagPrefix+tag).Result()
	if err != nil {
		return err
	}
	for _, fk := range members {
		if err := s.drop(ctx, fk); err != nil {
			return err
		}
	}
	return nil
}

// Clear implements Store.
func (s *RedisStore) Clear(ctx context.Context) error {
	members, err := s.client.SMembers(ctx, redisKeySet).Result()
	if err != nil {
		return err
	}
	for _, fk := range members {
		if err := s.drop(ctx, fk); err != nil {
			return err
		}
	}
	return s.client.Del(ctx, redisKeySet).Err()
}

func (s *RedisStore) drop(ctx context.Context, fk string) error {
	if err := s.unlink(ctx, fk); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisEntryPrefix+fk)
	pipe.SRem(ctx, redisKeySet, fk)
	_, err := pipe.Exec(ctx)
	return err
}

// unlink detaches fk from every tag set it belongs to.
func (s *RedisStore) unlink(ctx context.Context, fk string) error {
	tags, err := s.client.SMembers(ctx, redisKeyTags+fk).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, tag := range tags {
		pipe.SRem(ctx, redisTagPrefix+tag, fk)
	}
	pipe.Del(ctx, redisKeyTags+fk)
	_, err = pipe.Exec(ctx)
	return err
}
