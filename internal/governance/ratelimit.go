package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter key layout. Daily keys carry a TTL so windows expire at (shortly
// after) the calendar-day boundary without explicit resets; the concurrency
// key has no TTL and is balanced by Release.
const (
	concurrencyKeyFmt = "gov:rl:conc:%s"
	tenantDayKeyFmt   = "gov:rl:day:tenant:%s:%s"
	userDayKeyFmt     = "gov:rl:day:user:%s:%s:%s"

	dailyKeyTTL = 48 * time.Hour
)

// reserveScript checks all three ceilings and increments all three counters
// in one atomic step. Redis serializes script execution, so two concurrent
// callers can never both observe the last free slot.
//
// KEYS: concurrency, tenant-day, user-day
// ARGV: maxConcurrent, maxTenantDay, maxUserDay, dailyTTLSeconds
// Returns 0 on success, 1/2/3 for the first ceiling exceeded.
var reserveScript = redis.NewScript(`
local conc = tonumber(redis.call('GET', KEYS[1]) or '0')
if conc >= tonumber(ARGV[1]) then return 1 end
local tday = tonumber(redis.call('GET', KEYS[2]) or '0')
if tday >= tonumber(ARGV[2]) then return 2 end
local uday = tonumber(redis.call('GET', KEYS[3]) or '0')
if uday >= tonumber(ARGV[3]) then return 3 end
redis.call('INCR', KEYS[1])
redis.call('INCR', KEYS[2])
redis.call('EXPIRE', KEYS[2], ARGV[4])
redis.call('INCR', KEYS[3])
redis.call('EXPIRE', KEYS[3], ARGV[4])
return 0
`)

// releaseScript frees one concurrency slot without ever driving the counter
// negative, so a stray release for a slot that was never reserved is a no-op.
var releaseScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur > 0 then redis.call('DECR', KEYS[1]) end
return 0
`)

// RateLimiter enforces the per-tenant-day, per-user-day and concurrency
// ceilings against a shared Redis counter store. It is safe for use from
// multiple service instances; Redis owns the serialization.
type RateLimiter struct {
	client redis.UniversalClient
	clock  func() time.Time
}

// NewRateLimiter wires the limiter to the shared counter store.
func NewRateLimiter(client redis.UniversalClient) *RateLimiter {
	return &RateLimiter{
		client: client,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the limiter's clock. Used by tests to pin the day
// window.
func (l *RateLimiter) WithClock(clock func() time.Time) *RateLimiter {
	l.clock = clock
	return l
}

func (l *RateLimiter) keys(tenantID, userID string) []string {
	day := l.clock().Format("2006-01-02")
	return []string{
		fmt.Sprintf(concurrencyKeyFmt, tenantID),
		fmt.Sprintf(tenantDayKeyFmt, tenantID, day),
		fmt.Sprintf(userDayKeyFmt, tenantID, userID, day),
	}
}

// CheckAndReserve atomically verifies all three ceilings and, when every one
// passes, consumes a concurrency slot plus one unit of each daily budget.
// Callers that receive an allow must guarantee a matching Release on every
// exit path. A store failure fails closed: the decision denies with
// CodeRateLimitUnavailable and the underlying error is returned for logging.
func (l *RateLimiter) CheckAndReserve(ctx context.Context, tenantID, userID string, settings Settings) (Decision, error) {
	res, err := reserveScript.Run(ctx, l.client, l.keys(tenantID, userID),
		settings.MaxConcurrentRuns,
		settings.MaxRunsPerDayTenant,
		settings.MaxRunsPerDayUser,
		int(dailyKeyTTL/time.Second),
	).Int()
	if err != nil {
		return Deny(CodeRateLimitUnavailable, "rate limit store unavailable"),
			fmt.Errorf("governance: rate limit reserve: %w", err)
	}
	switch res {
	case 0:
		return Allow(), nil
	case 1:
		return Deny(CodeConcurrencyLimit,
			fmt.Sprintf("tenant already has %d concurrent runs", settings.MaxConcurrentRuns)), nil
	case 2:
		return Deny(CodeTenantDailyLimit,
			fmt.Sprintf("tenant reached its daily limit of %d runs", settings.MaxRunsPerDayTenant)), nil
	case 3:
		return Deny(CodeUserDailyLimit,
			fmt.Sprintf("user reached their daily limit of %d runs", settings.MaxRunsPerDayUser)), nil
	default:
		return Deny(CodeRateLimitUnavailable, "rate limit store returned unexpected result"),
			fmt.Errorf("governance: rate limit reserve: unexpected script result %d", res)
	}
}

// Release frees the concurrency slot taken by a successful CheckAndReserve.
// Daily counters are intentionally left alone; they expire with the calendar
// day. Release is idempotent with respect to a missing reservation.
func (l *RateLimiter) Release(ctx context.Context, tenantID, userID string) error {
	key := fmt.Sprintf(concurrencyKeyFmt, tenantID)
	if err := releaseScript.Run(ctx, l.client, []string{key}).Err(); err != nil {
		return fmt.Errorf("governance: rate limit release: %w", err)
	}
	return nil
}
