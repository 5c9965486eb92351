package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"catalog-service/internal/domain"
)

const (
	// VersionKey holds the generation counter embedded in every listing key.
	VersionKey    = "catalog:listings:version"
	listingPrefix = "catalog:listings:v"

	DefaultTTL = 5 * time.Minute
)

// ListingCache caches product listings in Redis. Bumping the version makes every
// previously cached listing unreachable; the stale keys expire on their own.
type ListingCache struct {
	redis  redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

// NewListingCache returns a ListingCache. A non-positive ttl falls back to DefaultTTL.
func NewListingCache(client redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ListingCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

type cachedListing struct {
	Raw   bool             `json:"raw"`
	Page  int              `json:"page,omitempty"`
	Limit int              `json:"limit,omitempty"`
	Total int              `json:"total"`
	Items []domain.Product `json:"items"`
}

func toCached(l domain.ProductListing) cachedListing {
	if l.Raw {
		return cachedListing{Raw: true, Total: len(l.Items), Items: l.Items}
	}
	return cachedListing{Page: l.Page.Page, Limit: l.Page.Limit, Total: l.Page.Total, Items: l.Page.Items}
}

func (c cachedListing) listing() domain.ProductListing {
	if c.Raw {
		return domain.NewRawListing(c.Items)
	}
	return domain.NewPagedListing(c.Page, c.Limit, c.Total, c.Items)
}

// Version returns the current cache generation. Callers read it once per request and
// pass it to Get and Set, so a listing loaded before an Invalidate is never stored
// under the generation that followed it.
func (c *ListingCache) Version(ctx context.Context) (int64, error) {
	v, err := c.redis.Get(ctx, VersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: failed to read version: %w", err)
	}
	return v, nil
}

// Get returns the listing cached for key in the given generation. Any Redis error
// counts as a miss.
func (c *ListingCache) Get(ctx context.Context, version int64, key string) (domain.ProductListing, bool) {
	data, err := c.redis.Get(ctx, listingKey(version, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("failed to read cached listing")
		}
		return domain.ProductListing{}, false
	}

	var cached cachedListing
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to unmarshal cached listing")
		return domain.ProductListing{}, false
	}
	return cached.listing(), true
}

// Set stores listing under key in the given generation. Failures are logged and
// otherwise ignored.
func (c *ListingCache) Set(ctx context.Context, version int64, key string, listing domain.ProductListing) {
	data, err := json.Marshal(toCached(listing))
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to marshal listing for cache")
		return
	}

	if err := c.redis.Set(ctx, listingKey(version, key), string(data), c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to cache listing")
	}
}

// Invalidate bumps the version so that no cached listing is served again.
func (c *ListingCache) Invalidate(ctx context.Context) error {
	newVersion, err := c.redis.Incr(ctx, VersionKey).Result()
	if err != nil {
		return fmt.Errorf("cache: failed to invalidate listings: %w", err)
	}
	c.logger.Debug().Int64("version", newVersion).Msg("listing cache invalidated")
	return nil
}

func listingKey(version int64, key string) string {
	return fmt.Sprintf("%s%d:%s", listingPrefix, version, key)
}
