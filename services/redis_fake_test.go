package services

import (
	"context"
	"sync"
	"time"

	"edith/clock"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements the counter commands the governor uses. Calling any
// other redis.Cmdable method panics on the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable

	mu          sync.Mutex
	clock       *clock.Fake
	counts      map[string]int64
	expires     map[string]time.Time
	incrErr     error
	pexpireErrs int
}

func newFakeRedis(c *clock.Fake) *fakeRedis {
	return &fakeRedis{clock: c, counts: make(map[string]int64), expires: make(map[string]time.Time)}
}

func (f *fakeRedis) expireLocked(key string) {
	if at, ok := f.expires[key]; ok && !f.clock.Now().Before(at) {
		delete(f.counts, key)
		delete(f.expires, key)
	}
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrErr != nil {
		return redis.NewIntResult(0, f.incrErr)
	}
	f.expireLocked(key)
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeRedis) PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pexpireErrs > 0 {
		f.pexpireErrs--
		return redis.NewBoolResult(false, context.DeadlineExceeded)
	}
	if _, ok := f.counts[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	f.expires[key] = f.clock.Now().Add(expiration)
	return redis.NewBoolResult(true, nil)
}

// PTTL follows Redis: -2 for a missing key, -1 for a key without expiry.
func (f *fakeRedis) PTTL(ctx context.Context, key string) *redis.DurationCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireLocked(key)
	if _, ok := f.counts[key]; !ok {
		return redis.NewDurationResult(-2, nil)
	}
	at, ok := f.expires[key]
	if !ok {
		return redis.NewDurationResult(-1, nil)
	}
	return redis.NewDurationResult(at.Sub(f.clock.Now()), nil)
}

func (f *fakeRedis) hasExpiry(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.expires[key]
	return ok
}
