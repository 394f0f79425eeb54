package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const progressTTL = 10 * time.Minute

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
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

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireGoalLock takes the advisory per-goal lock. Returns ok=false when
// another holder owns it; the returned token is required for release.
func (c *Client) AcquireGoalLock(ctx context.Context, goalID int64, ttl time.Duration) (string, bool, error) {
	key := goalLockKey(goalID)
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire goal lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseGoalLock releases the advisory lock if the token still owns it.
// A lock that expired and was re-acquired by someone else is left alone.
func (c *Client) ReleaseGoalLock(ctx context.Context, goalID int64, token string) error {
	key := goalLockKey(goalID)

	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{key}, token).Result(); err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// SetGoalProgress caches derived funding progress for a goal
func (c *Client) SetGoalProgress(ctx context.Context, goalID int64, total, target decimal.Decimal) error {
	key := goalProgressKey(goalID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "total", total.String(), "target", target.String())
	pipe.Expire(ctx, key, progressTTL)

	_, err := pipe.Exec(ctx)
	return err
}

// GetGoalProgress reads cached funding progress; ok=false on cache miss
func (c *Client) GetGoalProgress(ctx context.Context, goalID int64) (total, target decimal.Decimal, ok bool, err error) {
	key := goalProgressKey(goalID)

	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return decimal.Zero, decimal.Zero, false, err
	}
	if len(result) == 0 {
		return decimal.Zero, decimal.Zero, false, nil
	}

	total, err = decimal.NewFromString(result["total"])
	if err != nil {
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("corrupt progress total: %w", err)
	}
	target, err = decimal.NewFromString(result["target"])
	if err != nil {
		return decimal.Zero, decimal.Zero, false, fmt.Errorf("corrupt progress target: %w", err)
	}

	return total, target, true, nil
}

func goalLockKey(goalID int64) string {
	return fmt.Sprintf("goal-lock:%d", goalID)
}

func goalProgressKey(goalID int64) string {
	return fmt.Sprintf("goal-progress:%d", goalID)
}
