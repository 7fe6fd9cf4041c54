// Package redis provides a Redis-backed core.RateLimitStore. Rate limit
// entries are small, hot and tolerate eventual durability, which makes Redis
// a good mirror for restart recovery without a full database round trip on
// every action.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/flowmesh-ai/flowmesh/core"
)

const keyPrefix = "flowmesh:ratelimit:"

// Options configures a Store.
type Options struct {
	// TTL expires mirrored entries; zero keeps them forever. A TTL a little
	// over the daily window keeps stale pairs from accumulating.
	TTL time.Duration
}

// Store implements core.RateLimitStore on a Redis client.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ core.RateLimitStore = (*Store)(nil)

// NewStore wraps an existing Redis client.
func NewStore(client redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{
		TTL: 25 * time.Hour,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, ttl: opts.TTL}
}

// GetRateLimit returns the mirrored entry for a (platform, action) pair.
func (s *Store) GetRateLimit(ctx context.Context, platform, actionType string) (*core.RateLimitEntry, error) {
	raw, err := s.client.Get(ctx, keyPrefix+core.RateLimitKey(platform, actionType)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get rate limit: %w", err)
	}

	var entry core.RateLimitEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode rate limit: %w", err)
	}
	return &entry, nil
}

// SaveRateLimit mirrors an entry.
func (s *Store) SaveRateLimit(ctx context.Context, entry *core.RateLimitEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode rate limit: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+entry.Key(), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save rate limit: %w", err)
	}
	return nil
}

// ListRateLimits scans every mirrored entry.
func (s *Store) ListRateLimits(ctx context.Context) ([]*core.RateLimitEntry, error) {
	var out []*core.RateLimitEntry

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Expired between scan and get.
				continue
			}
			return nil, fmt.Errorf("get rate limit %s: %w", iter.Val(), err)
		}

		var entry core.RateLimitEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode rate limit %s: %w", iter.Val(), err)
		}
		out = append(out, &entry)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan rate limits: %w", err)
	}
	return out, nil
}
