// Package memcache caches membership role lookups in Redis. Every
// operation resolves the actor's role first, so the hot path is one
// Redis GET instead of a database round trip.
package memcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no cached role exists for the pair.
var ErrMiss = errors.New("role not cached")

const defaultTTL = 5 * time.Minute

// RoleCache stores (workspace, user) -> role with a short TTL. Role
// mutations invalidate eagerly; the TTL only covers writes the cache
// never saw.
type RoleCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRoleCache connects to Redis and verifies the connection.
func NewRoleCache(redisURL string) (*RoleCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRoleCacheWithClient(client), nil
}

// NewRoleCacheWithClient wraps an existing Redis client.
func NewRoleCacheWithClient(client *redis.Client) *RoleCache {
	return &RoleCache{
		client: client,
		prefix: "role:",
		ttl:    defaultTTL,
	}
}

func (c *RoleCache) key(workspaceID, userID string) string {
	return c.prefix + workspaceID + ":" + userID
}

// Get returns the cached role, or ErrMiss.
func (c *RoleCache) Get(ctx context.Context, workspaceID, userID string) (string, error) {
	role, err := c.client.Get(ctx, c.key(workspaceID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("get cached role: %w", err)
	}
	return role, nil
}

// Set stores the role for the pair.
func (c *RoleCache) Set(ctx context.Context, workspaceID, userID, role string) error {
	if err := c.client.Set(ctx, c.key(workspaceID, userID), role, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache role: %w", err)
	}
	return nil
}

// Invalidate drops the cached role for one member.
func (c *RoleCache) Invalidate(ctx context.Context, workspaceID, userID string) error {
	if err := c.client.Del(ctx, c.key(workspaceID, userID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached role: %w", err)
	}
	return nil
}

// InvalidateWorkspace drops every cached role of a workspace, used when
// the workspace itself is deleted.
func (c *RoleCache) InvalidateWorkspace(ctx context.Context, workspaceID string) error {
	var cursor uint64
	pattern := c.prefix + workspaceID + ":*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan cached roles: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("invalidate workspace roles: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping checks if Redis is reachable.
func (c *RoleCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RoleCache) Close() error {
	return c.client.Close()
}
