// Package redis backs the stress-grid cache, structure finalise locks, the
// run event bus and the API rate limiter with go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// clientName tags every connection in CLIENT LIST.
const clientName = "creditpool"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	// URL is a redis:// or rediss:// URL. When set it replaces Addr,
	// Password, DB and TLSEnabled.
	URL        string
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client is the shared connection pool handed to the cache, lock, bus and
// limiter constructors.
type Client struct {
	rdb *redis.Client
}

// options translates cfg into go-redis options. PoolSize and MaxRetries
// apply on top of a URL as well.
func options(cfg ClientConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
		if cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MaxRetries != 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	opts.ClientName = clientName
	return opts, nil
}

// New connects and pings. A server that does not answer is an error so
// server mode fails at startup rather than on the first finalise.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping backs the "redis" entry of the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the driver client for the cache, lock, bus and limiter.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
