package domain

import (
	"context"
	"time"
)

// GridCache memoises stress-grid sweeps by input fingerprint.
type GridCache interface {
	Get(ctx context.Context, fingerprint string) ([]GridCell, error)
	Set(ctx context.Context, fingerprint string, cells []GridCell) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and the durable run event stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	// PublishEvent publishes ev on the channel named by ev.Type and records
	// it in the durable event stream.
	PublishEvent(ctx context.Context, ev RunEvent) error
}
