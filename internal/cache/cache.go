// cache — разделяемый стор отозванных токенов поверх Redis.
//
// Процессный blacklist в service достаточен для single-instance
// развёртывания; Redis подключается, когда инстансов несколько и отзыв
// должен быть виден всем.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore — минимальный контракт стора отозванных токенов.
type RevocationStore interface {
	// Add помечает токен отозванным на срок ttl (обычно exp-now).
	Add(ctx context.Context, token string, ttl time.Duration) error
	// Contains сообщает, отозван ли токен.
	Contains(ctx context.Context, token string) (bool, error)
	// Close закрывает клиент Redis.
	Close() error
}

type redisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "auth:revoked:".
func NewRedisStore(redisURL, prefix string) (RevocationStore, error) {
	if prefix == "" {
		prefix = "auth:revoked:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &redisStore{rdb: rdb, prefix: prefix}, nil
}

// В Redis попадает хэш токена, не сам токен.
func (c *redisStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + base64.RawURLEncoding.EncodeToString(sum[:])
}

func (c *redisStore) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}

	return c.rdb.Set(ctx, c.key(token), "1", ttl).Err()
}

func (c *redisStore) Contains(ctx context.Context, token string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(token)).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (c *redisStore) Close() error { return c.rdb.Close() }
