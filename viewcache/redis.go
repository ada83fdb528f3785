// Package viewcache keeps the last computed views in Redis so a restarted
// process has something to serve before its first snapshots arrive.
package viewcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"taskadmin/config"
	"taskadmin/report"
)

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient builds a client from config without connecting.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func New(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "taskadmin"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) viewsKey() string { return c.prefix + ":views" }
func (c *RedisCache) sectionKey(s string) string { return c.prefix + ":view:" + s }

// Save writes the full views blob plus the dashboard and task report on
// their own keys for external readers.
func (c *RedisCache) Save(ctx context.Context, v *report.Views) error {
	all, err := json.Marshal(v)
	if err != nil {
		return err
	}
	dash, err := json.Marshal(v.Dashboard)
	if err != nil {
		return err
	}
	tasks, err := json.Marshal(v.TaskReport)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.viewsKey(), all, c.ttl)
	pipe.Set(ctx, c.sectionKey("dashboard"), dash, c.ttl)
	pipe.Set(ctx, c.sectionKey("tasks"), tasks, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns nil, nil when nothing is cached.
func (c *RedisCache) Load(ctx context.Context) (*report.Views, error) {
	data, err := c.client.Get(ctx, c.viewsKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v report.Views
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
