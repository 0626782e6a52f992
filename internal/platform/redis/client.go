package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"nucleus/internal/platform/config"
)

// Client is the shared go-redis client of a node.
type Client struct {
	*redis.Client
}

// New connects to cfg.URL, tagging the connection with clientName so operators
// can tell nodes apart in CLIENT LIST. Zero pool and timeout settings keep the
// go-redis defaults. It returns nil when no URL is configured.
func New(ctx context.Context, cfg config.Redis, clientName string) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if clientName != "" {
		opts.ClientName = clientName
	}
	for _, o := range []struct {
		dst *int
		val int
	}{
		{&opts.PoolSize, cfg.PoolSize},
		{&opts.MinIdleConns, cfg.MinIdleConns},
	} {
		if o.val > 0 {
			*o.dst = o.val
		}
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{Client: client}, nil
}

// Health pings the server; the node's readiness check uses it.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
