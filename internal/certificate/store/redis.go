package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"registrar/internal/certificate/models"
)

const keyPrefix = "registrar:certificate:"

// RedisCache shares cached certificate records across replicas.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func key(certificateID string) string {
	return keyPrefix + certificateID
}

func (c *RedisCache) Get(ctx context.Context, certificateID string) (*models.Certificate, error) {
	raw, err := c.client.Get(ctx, key(certificateID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", certificateID, err)
	}
	var cert models.Certificate
	if err := json.Unmarshal(raw, &cert); err != nil {
		// A corrupt entry is treated as absent and overwritten on the next Set.
		return nil, ErrCacheMiss
	}
	return &cert, nil
}

func (c *RedisCache) Set(ctx context.Context, cert *models.Certificate) error {
	raw, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("encode certificate: %w", err)
	}
	if err := c.client.Set(ctx, key(cert.CertificateID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", cert.CertificateID, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, certificateID string) error {
	if err := c.client.Del(ctx, key(certificateID)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", certificateID, err)
	}
	return nil
}
