package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"account-access-service/internal/config"
	"account-access-service/internal/models"
)

const (
	// Key prefixes
	accountSummariesPrefix = "access:accounts:"

	// accountSummariesTTL keeps the switcher listing fresh without hammering
	// the join query. The cache is advisory only; access decisions never
	// read from it.
	accountSummariesTTL = 60 * time.Second
)

// Client wraps the Redis connection
type Client struct {
	rdb    *redis.Client
	logger *logrus.Entry
}

// NewClient creates a new Redis client and verifies connectivity
func NewClient(cfg config.RedisConfig, logger *logrus.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		logger: logger.WithField("component", "redis"),
	}, nil
}

// GetAccountSummaries returns the cached listing for a user, or (nil, nil)
// on a miss.
func (c *Client) GetAccountSummaries(ctx context.Context, userID string) ([]models.AccountSummary, error) {
	if c == nil || c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, accountSummariesPrefix+userID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached summaries: %w", err)
	}
	var summaries []models.AccountSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached summaries: %w", err)
	}
	return summaries, nil
}

// SetAccountSummaries caches the listing for a user.
func (c *Client) SetAccountSummaries(ctx context.Context, userID string, summaries []models.AccountSummary) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	data, err := json.Marshal(summaries)
	if err != nil {
		return fmt.Errorf("failed to marshal summaries: %w", err)
	}
	if err := c.rdb.Set(ctx, accountSummariesPrefix+userID, data, accountSummariesTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache summaries: %w", err)
	}
	return nil
}

// InvalidateAccountSummaries drops the cached listing after membership
// changes.
func (c *Client) InvalidateAccountSummaries(ctx context.Context, userID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, accountSummariesPrefix+userID).Err(); err != nil {
		c.logger.WithError(err).Warn("Failed to invalidate account summaries")
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
