package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/thep200/github-star-sweeper/internal/clock"
)

// Giới hạn số lượng request trong 1 cửa sổ thời gian (mặc định 1 giây)
type RateLimiter struct {
	clock        clock.Clock
	window       time.Duration
	requestTimes []time.Time
	maxRequests  int
	mu           sync.Mutex
}

// NewRateLimiter returns nil when maxRequests <= 0; a nil limiter never blocks.
func NewRateLimiter(maxRequests int, c clock.Clock) *RateLimiter {
	if maxRequests <= 0 {
		return nil
	}
	return &RateLimiter{
		clock:        c,
		window:       time.Second,
		requestTimes: make([]time.Time, 0, maxRequests),
		maxRequests:  maxRequests,
	}
}

// Allow records a request and reports true when one more fits in the current window.
func (r *RateLimiter) Allow() bool {
	_, ok := r.reserve()
	return ok
}

// Wait blocks until a request is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	for {
		wait, ok := r.reserve()
		if ok {
			return nil
		}
		if err := r.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve returns how long until the oldest request leaves the window when the limit is hit.
func (r *RateLimiter) reserve() (time.Duration, bool) {
	if r == nil {
		return 0, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	windowStart := now.Add(-r.window)

	// Xóa các request cũ hơn cửa sổ
	validTimes := r.requestTimes[:0]
	for _, t := range r.requestTimes {
		if t.After(windowStart) {
			validTimes = append(validTimes, t)
		}
	}
	r.requestTimes = validTimes

	if len(r.requestTimes) < r.maxRequests {
		r.requestTimes = append(r.requestTimes, now)
		return 0, true
	}

	wait := r.requestTimes[0].Add(r.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}
