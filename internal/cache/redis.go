package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix はRedisキャッシュの名前空間プレフィックス。
const keyPrefix = "marketscope:research:"

// RedisCache はRedisバックエンドのTTL付きキャッシュ。
// 複数インスタンスで市場調査結果を共有する構成向け。
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache は指定URLのRedisに接続してRedisCacheを生成する。
// URL形式: redis://localhost:6379
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("RedisのURLが不正です: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redisへの接続に失敗しました: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Get はキーに対応する値を返す。未登録・期限切れ・接続エラーはすべてfalse。
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set は値をTTL付きで登録する。
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, keyPrefix+key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュの登録に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定キーのエントリを削除する。
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("キャッシュの削除に失敗しました: %w", err)
	}
	return nil
}

// Clear は名前空間プレフィックス配下の全エントリを削除する。
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("キャッシュの削除に失敗しました: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("キャッシュキーの走査に失敗しました: %w", err)
	}
	return nil
}

// Close はRedis接続を閉じる。
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
