package rates_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hisab-app/backend-hisab/internal/rates"
)

type countingProvider struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (p *countingProvider) CurrentRate(context.Context) (decimal.Decimal, error) {
	p.calls++
	if p.err != nil {
		return decimal.Decimal{}, p.err
	}
	return p.rate, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedRatePopulatesAndHits(t *testing.T) {
	mr, client := newTestRedis(t)
	source := &countingProvider{rate: decimal.NewFromInt(15)}
	cached := rates.Cached{Client: client, Source: source, TTL: time.Minute}

	ctx := context.Background()
	rate, err := cached.CurrentRate(ctx)
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(15)))
	require.Equal(t, 1, source.calls)

	stored, err := mr.Get(rates.DefaultCacheKey)
	require.NoError(t, err)
	require.Equal(t, "15", stored)

	rate, err = cached.CurrentRate(ctx)
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(15)))
	require.Equal(t, 1, source.calls, "second lookup should be served from cache")
}

func TestCachedRateExpiryRefetches(t *testing.T) {
	mr, client := newTestRedis(t)
	source := &countingProvider{rate: decimal.NewFromInt(15)}
	cached := rates.Cached{Client: client, Source: source, TTL: time.Minute}

	ctx := context.Background()
	_, err := cached.CurrentRate(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cached.CurrentRate(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}

func TestCachedRateSourceFailurePropagates(t *testing.T) {
	_, client := newTestRedis(t)
	source := &countingProvider{err: rates.ErrUnavailable}
	cached := rates.Cached{Client: client, Source: source, TTL: time.Minute}

	_, err := cached.CurrentRate(context.Background())
	require.ErrorIs(t, err, rates.ErrUnavailable)
}

func TestCachedRateRedisDownFallsThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()
	source := &countingProvider{rate: decimal.NewFromInt(5)}
	cached := rates.Cached{Client: client, Source: source, TTL: time.Minute}

	rate, err := cached.CurrentRate(context.Background())
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(5)))
}

func TestInvalidateDropsKey(t *testing.T) {
	mr, client := newTestRedis(t)
	source := &countingProvider{rate: decimal.NewFromInt(15)}
	cached := rates.Cached{Client: client, Source: source, TTL: time.Minute}

	ctx := context.Background()
	_, err := cached.CurrentRate(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(rates.DefaultCacheKey))

	require.NoError(t, cached.Invalidate(ctx))
	require.False(t, mr.Exists(rates.DefaultCacheKey))
}

func TestChainFallsBack(t *testing.T) {
	broken := &countingProvider{err: errors.New("db down")}
	static := rates.Static{Rate: decimal.NewFromInt(15)}
	chain := rates.Chain{broken, static}

	rate, err := chain.CurrentRate(context.Background())
	require.NoError(t, err)
	require.True(t, rate.Equal(decimal.NewFromInt(15)))
}

func TestChainAllFailing(t *testing.T) {
	chain := rates.Chain{&countingProvider{err: errors.New("db down")}}
	_, err := chain.CurrentRate(context.Background())
	require.ErrorIs(t, err, rates.ErrUnavailable)
}

func TestStaticNegativeMeansUnset(t *testing.T) {
	_, err := rates.Static{Rate: decimal.NewFromInt(-1)}.CurrentRate(context.Background())
	require.ErrorIs(t, err, rates.ErrUnavailable)
}
