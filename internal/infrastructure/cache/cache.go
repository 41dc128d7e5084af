// Package cache provides the result cache backends: an in-process TTL map
// and Redis.
package cache

import (
	"context"
	"fmt"
	"io"

	"github.com/pricematch/backend/internal/domain"
)

// Backend types
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

// Store is a cache repository that owns resources
type Store interface {
	domain.CacheRepository
	io.Closer
}

// New builds the backend named by cacheType
func New(ctx context.Context, cacheType, redisURL string) (Store, error) {
	switch cacheType {
	case TypeMemory, "":
		return NewMemoryCache(), nil
	case TypeRedis:
		redisCache, err := NewRedisCache(ctx, redisURL, "")
		if err != nil {
			return nil, err
		}
		return redisCache, nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cacheType)
	}
}
