package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"go.uber.org/zap"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// RedisLocker holds the lock in Redis so several instances share it. A held
// lock is renewed every TTL/3 until released, so a slow CRM round trip never
// outlives the lease.
type RedisLocker struct {
	client       redis.UniversalClient
	release      *redis.Script
	renew        *redis.Script
	log          *zap.Logger
	prefix       string
	ttl          time.Duration
	retry        time.Duration
	waitTimeout  time.Duration
	renewEvery   time.Duration
	releaseAfter time.Duration
}

type RedisOptions struct {
	Prefix      string
	TTL         time.Duration
	Retry       time.Duration
	WaitTimeout time.Duration
}

func NewRedisLocker(client redis.UniversalClient, log *zap.Logger, opts RedisOptions) *RedisLocker {
	if client == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 50 * time.Millisecond
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = opts.TTL
	}
	return &RedisLocker{
		client:       client,
		release:      redis.NewScript(releaseScript),
		renew:        redis.NewScript(renewScript),
		log:          log.Named("leadsync.lock"),
		prefix:       opts.Prefix,
		ttl:          opts.TTL,
		retry:        opts.Retry,
		waitTimeout:  opts.WaitTimeout,
		renewEvery:   opts.TTL / 3,
		releaseAfter: 2 * time.Second,
	}
}

// TryLock makes a single acquisition attempt.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes the lock only if it is still owned by token.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
}

// Renew resets the TTL of a lock still owned by token. It reports false when
// the lock has expired or belongs to someone else.
func (l *RedisLocker) Renew(ctx context.Context, key, token string) (bool, error) {
	if l == nil || l.client == nil {
		return false, errors.New("lock client not configured")
	}
	n, err := l.renew.Run(ctx, l.client, []string{l.prefix + key}, token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Lock polls until the key is acquired, the wait timeout elapses or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.waitTimeout)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		token, ok, err := l.TryLock(waitCtx, key)
		if err != nil {
			return nil, l.waitError(ctx, waitCtx, err)
		}
		if ok {
			return l.hold(key, token), nil
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			return nil, l.waitError(ctx, waitCtx, nil)
		}
	}
}

// waitError tells caller cancellation apart from the lock wait running out.
func (l *RedisLocker) waitError(ctx, waitCtx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitCtx.Err() != nil {
		return domain.ErrLockTimeout
	}
	return err
}

// hold keeps the lease alive until the returned release func runs.
func (l *RedisLocker) hold(key, token string) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(key, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()

			// The request context may already be cancelled; release regardless.
			ctx, cancel := context.WithTimeout(context.Background(), l.releaseAfter)
			defer cancel()
			if err := l.Release(ctx, key, token); err != nil {
				l.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			}
		})
	}
}

func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}) {
	if l.renewEvery <= 0 {
		return
	}
	ticker := time.NewTicker(l.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.renewEvery)
			owned, err := l.Renew(ctx, key, token)
			cancel()
			if err != nil {
				l.log.Warn("failed to renew lock", zap.String("key", key), zap.Error(err))
				continue
			}
			if !owned {
				l.log.Error("lock lost before release", zap.String("key", key))
				return
			}
		}
	}
}
