package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"price_crew/models"
)

const reportKeyPrefix = "report:"

// RedisReportCache keeps the latest aggregate report per product.
type RedisReportCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisReportCache(client redis.UniversalClient, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{client: client, ttl: ttl}
}

func (c *RedisReportCache) Put(ctx context.Context, report *models.AggregateReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return c.client.Set(ctx, reportKeyPrefix+report.ProductID, data, c.ttl).Err()
}

// Get returns nil, nil when no report is cached for productID.
func (c *RedisReportCache) Get(ctx context.Context, productID string) (*models.AggregateReport, error) {
	if productID == "" {
		return nil, errors.New("product id cannot be empty")
	}

	data, err := c.client.Get(ctx, reportKeyPrefix+productID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var report models.AggregateReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode cached report: %w", err)
	}
	return &report, nil
}
