package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/order-settlement-and-commission/internal/revenue"
)

// Cache serves slightly stale revenue summaries; the write path never
// depends on it.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) GetReport(ctx context.Context, key string) (*revenue.SellerRevenueSummary, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var summary revenue.SellerRevenueSummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Cache) SetReport(ctx context.Context, key string, summary revenue.SellerRevenueSummary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}
