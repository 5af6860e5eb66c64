// Package redisclient is the concrete, Redis-backed implementation of
// pkg/publisher.Publisher. It mirrors the teacher's thin wrapper over
// go-redis/v9 (pkg/redis/client.go) rather than reaching for a
// higher-level ORM the pack doesn't otherwise use.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a small wrapper over go-redis, exposing only the
// operations the Publisher adapter and its command watcher need.
type Client struct {
	client *redis.Client
	ctx    context.Context
}

// New connects to addr and verifies the connection with a Ping,
// exactly as the teacher's redis.New does.
func New(addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisclient: failed to connect to redis at %s: %w", addr, err)
	}

	return &Client{client: client, ctx: ctx}, nil
}

// WriteAndPublishString writes field=value into the hash at key and
// publishes the change as "field:value" on a channel of the same name.
func (c *Client) WriteAndPublishString(key, field, value string) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, fmt.Sprintf("%s:%s", field, value))
	_, err := pipe.Exec(c.ctx)
	return err
}

// WriteAndPublishInt is the integer counterpart of WriteAndPublishString.
func (c *Client) WriteAndPublishInt(key, field string, value int) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, fmt.Sprintf("%s:%d", field, value))
	_, err := pipe.Exec(c.ctx)
	return err
}

// WriteAndPublishBytes stores raw bytes (a CBOR-encoded payload) in
// the hash at key/field and publishes the bare field name, so
// subscribers know to re-read the hash rather than parse the
// notification payload itself.
func (c *Client) WriteAndPublishBytes(key, field string, value []byte) error {
	pipe := c.client.Pipeline()
	pipe.HSet(c.ctx, key, field, value)
	pipe.Publish(c.ctx, key, field)
	_, err := pipe.Exec(c.ctx)
	return err
}

// HDel removes field from the hash at key, used when a sensor detaches.
func (c *Client) HDel(key, field string) error {
	return c.client.HDel(c.ctx, key, field).Err()
}

// BRPop blocks up to timeout (0 = forever) popping the tail of the
// list at key, mirroring the teacher's BRPop wrapper.
func (c *Client) BRPop(timeout time.Duration, key string) ([]string, error) {
	result, err := c.client.BRPop(c.ctx, timeout, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redisclient: brpop on %s: %w", key, err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("redisclient: unexpected brpop result on %s: %v", key, result)
	}
	return result, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.client.Close()
}
