package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edith/clock"

	"github.com/redis/go-redis/v9"
)

// Defaults applied when the configuration leaves the window unset.
const (
	DefaultRateWindow      = 15 * time.Minute
	DefaultRateMaxRequests = 100
)

// RateDecision is the outcome of counting one request.
type RateDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateGovernor counts requests per client address over a fixed window.
// Bursts straddling a window boundary may exceed the ceiling.
type RateGovernor interface {
	Allow(ctx context.Context, key string) (RateDecision, error)
}

type rateWindow struct {
	start time.Time
	count int
}

// WindowGovernor keeps per-address windows in process memory.
type WindowGovernor struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	window  time.Duration
	max     int
	clock   clock.Clock
	calls   int
}

// sweepEvery is how many Allow calls pass between removals of expired windows.
const sweepEvery = 1024

func NewWindowGovernor(window time.Duration, max int, c clock.Clock) *WindowGovernor {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if max <= 0 {
		max = DefaultRateMaxRequests
	}
	if c == nil {
		c = clock.Real()
	}
	return &WindowGovernor{
		windows: make(map[string]*rateWindow),
		window:  window,
		max:     max,
		clock:   c,
	}
}

func (g *WindowGovernor) Allow(ctx context.Context, key string) (RateDecision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()

	g.calls++
	if g.calls%sweepEvery == 0 {
		g.sweep(now)
	}

	w, ok := g.windows[key]
	if !ok || now.Sub(w.start) >= g.window {
		w = &rateWindow{start: now}
		g.windows[key] = w
	}
	w.count++

	remaining := g.max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{
		Allowed:   w.count <= g.max,
		Limit:     g.max,
		Remaining: remaining,
		ResetAt:   w.start.Add(g.window),
	}, nil
}

func (g *WindowGovernor) sweep(now time.Time) {
	for key, w := range g.windows {
		if now.Sub(w.start) >= g.window {
			delete(g.windows, key)
		}
	}
}

// Tracked returns the number of addresses currently holding a window.
func (g *WindowGovernor) Tracked() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.windows)
}

// RedisGovernor shares windows between gateway replicas. The first request
// of a window sets the key expiry; the key disappearing resets the window.
type RedisGovernor struct {
	client redis.Cmdable
	window time.Duration
	max    int
	prefix string
	clock  clock.Clock
}

func NewRedisGovernor(client redis.Cmdable, window time.Duration, max int) *RedisGovernor {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if max <= 0 {
		max = DefaultRateMaxRequests
	}
	return &RedisGovernor{client: client, window: window, max: max, prefix: "rate_limit:", clock: clock.Real()}
}

func (g *RedisGovernor) Allow(ctx context.Context, key string) (RateDecision, error) {
	redisKey := g.prefix + key

	count, err := g.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return RateDecision{}, fmt.Errorf("failed to increment rate window: %w", err)
	}
	if count == 1 {
		if err := g.client.PExpire(ctx, redisKey, g.window).Err(); err != nil {
			return RateDecision{}, fmt.Errorf("failed to set rate window expiry: %w", err)
		}
	}

	ttl, err := g.client.PTTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = g.window
		// A key without expiry would never reset.
		_ = g.client.PExpire(ctx, redisKey, g.window).Err()
	}

	remaining := g.max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{
		Allowed:   count <= int64(g.max),
		Limit:     g.max,
		Remaining: remaining,
		ResetAt:   g.clock.Now().Add(ttl),
	}, nil
}
