package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrefix = "leadsync:lock:"

func newTestRedisLocker(t *testing.T, opts RedisOptions) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	opts.Prefix = testPrefix
	if opts.Retry == 0 {
		opts.Retry = 5 * time.Millisecond
	}
	return NewRedisLocker(client, nil, opts), srv
}

func TestRedisLockerBlocksUntilRelease(t *testing.T) {
	locker, srv := newTestRedisLocker(t, RedisOptions{TTL: 10 * time.Second, WaitTimeout: 5 * time.Second})
	ctx := context.Background()

	release, err := locker.Lock(ctx, "order:1001")
	require.NoError(t, err)
	assert.True(t, srv.Exists(testPrefix+"order:1001"))

	acquired := make(chan func(), 1)
	go func() {
		second, err := locker.Lock(ctx, "order:1001")
		if assert.NoError(t, err) {
			acquired <- second
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case second := <-acquired:
		second()
	case <-time.After(2 * time.Second):
		t.Fatal("second lock not acquired after release")
	}
	assert.False(t, srv.Exists(testPrefix+"order:1001"))
}

func TestRedisLockerDifferentKeysDoNotBlock(t *testing.T) {
	locker, _ := newTestRedisLocker(t, RedisOptions{TTL: 10 * time.Second, WaitTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	first, err := locker.Lock(ctx, "order:1")
	require.NoError(t, err)
	defer first()

	second, err := locker.Lock(ctx, "order:2")
	require.NoError(t, err)
	second()
}

func TestRedisLockerWaitTimeout(t *testing.T) {
	locker, _ := newTestRedisLocker(t, RedisOptions{TTL: 10 * time.Second, WaitTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	release, err := locker.Lock(ctx, "order:1001")
	require.NoError(t, err)
	defer release()

	_, err = locker.Lock(ctx, "order:1001")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
}

func TestRedisLockerCallerCancellation(t *testing.T) {
	locker, _ := newTestRedisLocker(t, RedisOptions{TTL: 10 * time.Second, WaitTimeout: 5 * time.Second})

	release, err := locker.Lock(context.Background(), "order:1001")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err = locker.Lock(ctx, "order:1001")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrLockTimeout)
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	locker, srv := newTestRedisLocker(t, RedisOptions{TTL: 10 * time.Second})
	ctx := context.Background()

	require.NoError(t, srv.Set(testPrefix+"order:1001", "other-owner"))

	require.NoError(t, locker.Release(ctx, "order:1001", "my-token"))
	got, err := srv.Get(testPrefix + "order:1001")
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)

	owned, err := locker.Renew(ctx, "order:1001", "my-token")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestRedisLockerRenewsHeldLease(t *testing.T) {
	ttl := 300 * time.Millisecond
	locker, srv := newTestRedisLocker(t, RedisOptions{TTL: ttl, WaitTimeout: time.Second})
	key := testPrefix + "order:1001"

	release, err := locker.Lock(context.Background(), "order:1001")
	require.NoError(t, err)
	defer release()

	// Simulate most of the lease elapsing during a slow CRM call.
	srv.FastForward(250 * time.Millisecond)

	assert.Eventually(t, func() bool {
		return srv.TTL(key) > 200*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, srv.Exists(key))
}

func TestRedisLockerReleaseIsIdempotent(t *testing.T) {
	locker, srv := newTestRedisLocker(t, RedisOptions{TTL: 10 * time.Second})

	release, err := locker.Lock(context.Background(), "order:1001")
	require.NoError(t, err)
	release()
	release()

	assert.False(t, srv.Exists(testPrefix+"order:1001"))
}
