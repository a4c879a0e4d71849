package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mailinchat/backend/internal/storage"
)

// Cache Redis 键值缓存，实现 storage.Cache
type Cache struct {
	client *goredis.Client
}

// NewCache 基于已建立的客户端创建缓存
func NewCache(client *Client) *Cache {
	return &Cache{client: client.Client()}
}

// Get 读取键值，键不存在时返回 storage.ErrCacheMiss
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrCacheMiss
		}
		return nil, err
	}
	return data, nil
}

// Set 写入键值并设置过期时间
func (c *Cache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}
