package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter is a token bucket sized in requests per minute. Tokens are
// replenished lazily from elapsed time on each acquire, so there is no
// background goroutine to manage.
type rateLimiter struct {
	last     time.Time
	interval time.Duration
	tokens   float64
	capacity float64
	mu       sync.Mutex
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	burst := float64(requestsPerMinute)
	return &rateLimiter{
		tokens:   burst,
		capacity: burst,
		interval: time.Minute / time.Duration(requestsPerMinute),
		last:     time.Now(),
	}
}

// wait blocks until a token is available or the context is canceled.
func (rl *rateLimiter) wait(ctx context.Context) error {
	for {
		ok, wait := rl.acquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// acquire takes a token if one is available. Otherwise it reports how long
// to wait before the next token accrues.
func (rl *rateLimiter) acquire() (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += float64(now.Sub(rl.last)) / float64(rl.interval)
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.last = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true, 0
	}
	return false, time.Duration((1 - rl.tokens) * float64(rl.interval))
}

// Close is kept for symmetry with other closable classifier resources.
func (rl *rateLimiter) Close() {}
