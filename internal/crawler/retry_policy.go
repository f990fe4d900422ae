package crawler

import (
	"errors"
	"math"
	"time"

	"github.com/thep200/github-star-sweeper/cfg"
	githubapi "github.com/thep200/github-star-sweeper/internal/github_api"
)

// ErrRetryExhausted is returned when one page failed more consecutive times than the policy allows.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryPolicy decides how long to wait before re-requesting a page that failed.
type RetryPolicy struct {
	// MaxAttempts bounds consecutive failures of one page; 0 means unbounded.
	MaxAttempts       int
	TransientBackoff  time.Duration
	Multiplier        float64
	MaxBackoff        time.Duration
	AppErrorBackoff   time.Duration
	MinRateLimitWait  time.Duration
	RateLimitFallback time.Duration
}

func NewRetryPolicy(config cfg.Retry) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       config.MaxAttempts,
		TransientBackoff:  config.Backoff,
		Multiplier:        config.Multiplier,
		MaxBackoff:        config.MaxBackoff,
		AppErrorBackoff:   config.AppErrorBackoff,
		MinRateLimitWait:  config.MinRateLimitWait,
		RateLimitFallback: config.RateLimitFallback,
	}
}

// Exhausted reports whether failure number attempt (1-based) is one too many.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}

// Delay returns the wait before retrying after err, the attempt-th consecutive failure of the page.
func (p RetryPolicy) Delay(err error, attempt int, now time.Time) time.Duration {
	var rateErr *githubapi.RateLimitError
	if errors.As(err, &rateErr) {
		return p.rateLimitDelay(rateErr, now)
	}
	if githubapi.Classify(err) == githubapi.ErrorClassApplication {
		return p.AppErrorBackoff
	}
	return p.transientDelay(attempt)
}

// UntilReset is the wait for a quota that resets at resetAt, floored at MinRateLimitWait.
func (p RetryPolicy) UntilReset(resetAt, now time.Time) time.Duration {
	if resetAt.IsZero() {
		return max(p.RateLimitFallback, p.MinRateLimitWait)
	}
	return max(resetAt.Sub(now), p.MinRateLimitWait)
}

func (p RetryPolicy) rateLimitDelay(err *githubapi.RateLimitError, now time.Time) time.Duration {
	if err.RetryAfter > 0 {
		return max(err.RetryAfter, p.MinRateLimitWait)
	}
	return p.UntilReset(err.ResetAt, now)
}

func (p RetryPolicy) transientDelay(attempt int) time.Duration {
	if p.Multiplier <= 1 || attempt <= 1 {
		return p.capped(p.TransientBackoff)
	}
	delay := float64(p.TransientBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(math.MaxInt64) {
		return p.capped(time.Duration(math.MaxInt64))
	}
	return p.capped(time.Duration(delay))
}

func (p RetryPolicy) capped(d time.Duration) time.Duration {
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}
