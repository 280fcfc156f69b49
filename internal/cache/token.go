package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// revokedTokenPrefix is the Redis key prefix for revoked refresh token IDs.
const revokedTokenPrefix = "auth:revoked:"

// RevokeToken marks a token ID as used until ttl elapses.
// It returns false if the token was already revoked, which lets refresh
// rotation accept each refresh token exactly once.
func (c *Cache) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		// Already expired; signature checks reject it anyway.
		return true, nil
	}

	ok, err := c.client.SetNX(ctx, revokedTokenPrefix+tokenID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	return ok, nil
}

// IsTokenRevoked reports whether the token ID has been revoked.
func (c *Cache) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := c.client.Get(ctx, revokedTokenPrefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return true, nil
}
