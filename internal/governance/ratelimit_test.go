package governance

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := NewRateLimiter(client).WithClock(func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	})
	return limiter, mr
}

func TestCheckAndReserveSequentialCeilings(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	settings := DefaultSettings("t1")
	settings.MaxConcurrentRuns = 2
	settings.MaxRunsPerDayTenant = 3
	settings.MaxRunsPerDayUser = 2

	d, err := limiter.CheckAndReserve(ctx, "t1", "u1", settings)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = limiter.CheckAndReserve(ctx, "t1", "u1", settings)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// Third concurrent reservation exceeds the slot ceiling.
	d, err = limiter.CheckAndReserve(ctx, "t1", "u2", settings)
	require.NoError(t, err)
	require.Equal(t, CodeConcurrencyLimit, d.Code)

	// Release one slot; the user daily ceiling now blocks u1.
	require.NoError(t, limiter.Release(ctx, "t1", "u1"))
	d, err = limiter.CheckAndReserve(ctx, "t1", "u1", settings)
	require.NoError(t, err)
	require.Equal(t, CodeUserDailyLimit, d.Code)

	// A different user is blocked by the tenant daily ceiling instead.
	d, err = limiter.CheckAndReserve(ctx, "t1", "u2", settings)
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.NoError(t, limiter.Release(ctx, "t1", "u2"))
	d, err = limiter.CheckAndReserve(ctx, "t1", "u2", settings)
	require.NoError(t, err)
	require.Equal(t, CodeTenantDailyLimit, d.Code)
}

func TestCheckAndReserveDeniedAttemptConsumesNothing(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	settings := DefaultSettings("t1")
	settings.MaxConcurrentRuns = 1
	settings.MaxRunsPerDayTenant = 2
	settings.MaxRunsPerDayUser = 2

	d, err := limiter.CheckAndReserve(ctx, "t1", "u1", settings)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	// Denied by concurrency; must not burn daily budget.
	for i := 0; i < 5; i++ {
		d, err = limiter.CheckAndReserve(ctx, "t1", "u1", settings)
		require.NoError(t, err)
		require.Equal(t, CodeConcurrencyLimit, d.Code)
	}

	require.NoError(t, limiter.Release(ctx, "t1", "u1"))
	d, err = limiter.CheckAndReserve(ctx, "t1", "u1", settings)
	require.NoError(t, err)
	require.True(t, d.Allowed, "daily budget must still have one unit left")
}

func TestCheckAndReserveConcurrentCallers(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	settings := DefaultSettings("t1")
	settings.MaxConcurrentRuns = 3
	settings.MaxRunsPerDayTenant = 100
	settings.MaxRunsPerDayUser = 100

	const callers = 12
	results := make([]Decision, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := limiter.CheckAndReserve(context.Background(), "t1", fmt.Sprintf("u%d", i), settings)
			require.NoError(t, err)
			results[i] = d
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, d := range results {
		if d.Allowed {
			allowed++
		} else {
			require.Equal(t, CodeConcurrencyLimit, d.Code)
		}
	}
	require.Equal(t, 3, allowed, "exactly maxConcurrentRuns reservations may succeed")
}

func TestReleaseIsIdempotent(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	// Releasing a slot that was never reserved must not go negative.
	require.NoError(t, limiter.Release(ctx, "t1", "u1"))
	require.NoError(t, limiter.Release(ctx, "t1", "u1"))

	settings := DefaultSettings("t1")
	settings.MaxConcurrentRuns = 1
	d, err := limiter.CheckAndReserve(ctx, "t1", "u1", settings)
	require.NoError(t, err)
	require.True(t, d.Allowed, "stray releases must not have opened extra capacity")

	got, err := mr.Get("gov:rl:conc:t1")
	require.NoError(t, err)
	require.Equal(t, "1", got)
}

func TestCheckAndReserveStoreFailureFailsClosed(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	mr.Close()

	d, err := limiter.CheckAndReserve(context.Background(), "t1", "u1", DefaultSettings("t1"))
	require.Error(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, CodeRateLimitUnavailable, d.Code)
}

func TestDailyKeysCarryTTL(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	d, err := limiter.CheckAndReserve(ctx, "t1", "u1", DefaultSettings("t1"))
	require.NoError(t, err)
	require.True(t, d.Allowed)

	require.Greater(t, mr.TTL("gov:rl:day:tenant:t1:2026-03-10"), time.Duration(0))
	require.Greater(t, mr.TTL("gov:rl:day:user:t1:u1:2026-03-10"), time.Duration(0))
	require.Equal(t, time.Duration(0), mr.TTL("gov:rl:conc:t1"),
		"the concurrency counter never expires; it is balanced by Release")
}
