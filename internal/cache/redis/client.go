// Package redis backs the price cache, event bus, open lock and API rate
// limiter with go-redis/v9. Every key and channel lives under the client's
// namespace so several bots can share one server.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// defaultNamespace prefixes keys when ClientConfig.Namespace is empty.
const defaultNamespace = "solbot"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	Namespace  string
}

// Client owns the go-redis connection pool and the key namespace.
type Client struct {
	rdb *redis.Client
	ns  string
}

// New connects to Redis and pings it.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	ns := strings.Trim(strings.TrimSpace(cfg.Namespace), ":")
	if ns == "" {
		ns = defaultNamespace
	}
	return &Client{rdb: rdb, ns: ns}, nil
}

// Key joins parts under the namespace: Key("price", mint) is
// "solbot:price:<mint>".
func (c *Client) Key(parts ...string) string {
	return c.ns + ":" + strings.Join(parts, ":")
}

// Namespace returns the key prefix without the trailing separator.
func (c *Client) Namespace() string {
	return c.ns
}

// Ping is the health probe.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
