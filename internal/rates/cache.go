package rates

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultCacheKey is the Redis key the cached VAT rate lives under.
const DefaultCacheKey = "hisab:rates:vat"

// Cached layers a Redis cache over another provider. Cache failures are
// logged and fall through to the source so Redis being down never blocks a
// calculation.
type Cached struct {
	Client *redis.Client
	Source Provider
	TTL    time.Duration
	Key    string
	Logger zerolog.Logger
}

func (c Cached) key() string {
	if c.Key != "" {
		return c.Key
	}
	return DefaultCacheKey
}

// CurrentRate returns the cached rate when present, otherwise resolves the
// source and populates the cache.
func (c Cached) CurrentRate(ctx context.Context) (decimal.Decimal, error) {
	if c.Source == nil {
		return decimal.Decimal{}, ErrUnavailable
	}
	if c.Client == nil || c.TTL <= 0 {
		return c.Source.CurrentRate(ctx)
	}

	raw, err := c.Client.Get(ctx, c.key()).Result()
	if err == nil {
		if rate, parseErr := decimal.NewFromString(raw); parseErr == nil {
			return rate, nil
		}
		// Unparseable entries are treated as misses and overwritten below.
	} else if err != redis.Nil {
		c.Logger.Warn().Err(err).Msg("rate cache read failed")
	}

	rate, err := c.Source.CurrentRate(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if setErr := c.Client.Set(ctx, c.key(), rate.String(), c.TTL).Err(); setErr != nil {
		c.Logger.Warn().Err(setErr).Msg("rate cache write failed")
	}
	return rate, nil
}

// Invalidate drops the cached rate, forcing the next lookup through to the
// source. Called when a tax rule changes.
func (c Cached) Invalidate(ctx context.Context) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Del(ctx, c.key()).Err()
}
