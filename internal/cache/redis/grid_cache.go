package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// GridCache implements domain.GridCache using Redis hashes holding the
// JSON-serialized cells of one sweep.
//
// Key schema:
//
//	grid:{fingerprint} - hash with field "data" containing JSON
type GridCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewGridCache creates a GridCache whose entries expire after ttl. A zero
// ttl keeps entries until evicted.
func NewGridCache(c *Client, ttl time.Duration) *GridCache {
	return &GridCache{rdb: c.Underlying(), ttl: ttl}
}

func gridKey(fingerprint string) string { return "grid:" + fingerprint }

// Set stores the cells of one sweep.
func (gc *GridCache) Set(ctx context.Context, fingerprint string, cells []domain.GridCell) error {
	data, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("redis: marshal grid %s: %w", fingerprint, err)
	}

	key := gridKey(fingerprint)
	pipe := gc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	if gc.ttl > 0 {
		pipe.Expire(ctx, key, gc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set grid %s: %w", fingerprint, err)
	}
	return nil
}

// Get returns the cached cells or domain.ErrNotFound.
func (gc *GridCache) Get(ctx context.Context, fingerprint string) ([]domain.GridCell, error) {
	data, err := gc.rdb.HGet(ctx, gridKey(fingerprint), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get grid %s: %w", fingerprint, err)
	}

	var cells []domain.GridCell
	if err := json.Unmarshal(data, &cells); err != nil {
		return nil, fmt.Errorf("redis: unmarshal grid %s: %w", fingerprint, err)
	}
	return cells, nil
}

// Compile-time interface check.
var _ domain.GridCache = (*GridCache)(nil)
