package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client mirrors warehouse stock quantities into Redis. The database stays
// the source of truth; the mirror serves dashboard reads without a DB
// round-trip and is best-effort.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetStockQuantity writes the current stock quantity for a product.
func (c *Client) SetStockQuantity(ctx context.Context, productID int64, quantity int) error {
	key := fmt.Sprintf("stock:%d", productID)
	return c.rdb.Set(ctx, key, quantity, 0).Err()
}

// GetStockQuantity reads the mirrored stock quantity for a product.
// found is false when the product has no mirrored value.
func (c *Client) GetStockQuantity(ctx context.Context, productID int64) (int, bool, error) {
	key := fmt.Sprintf("stock:%d", productID)

	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	quantity, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("parse stock value for product %d: %w", productID, err)
	}
	return quantity, true, nil
}
