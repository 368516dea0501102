package safety

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"
)

const (
	DefaultLimit        = 100
	DefaultWindow       = time.Second
	DefaultRepeatWindow = 2 * time.Second
	firstRepeatHint     = 50 * time.Millisecond
	maxRepeatHint       = 5 * time.Second
)

// Decision is the limiter's verdict on one request.
type Decision struct {
	Allowed bool
	// RetryAfter is a backoff hint for the client, zero when there is none.
	RetryAfter time.Duration
}

// LimiterOptions configures a Limiter. Zero values take the defaults.
type LimiterOptions struct {
	Limit        int
	Window       time.Duration
	RepeatWindow time.Duration
	Now          func() time.Time
}

type repeat struct {
	last time.Time
	hint *backoff.ExponentialBackOff
}

func newRepeatHint() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(firstRepeatHint),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(maxRepeatHint),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
}

// Limiter is a sliding-window-log rate limiter that also notices clients
// repeating the same request and hands them a growing backoff hint.
type Limiter struct {
	limit        int
	window       time.Duration
	repeatWindow time.Duration
	now          func() time.Time

	mu      sync.Mutex
	log     []time.Time
	repeats map[uint64]*repeat
}

// NewLimiter returns a limiter admitting opts.Limit requests per opts.Window.
func NewLimiter(opts LimiterOptions) *Limiter {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.RepeatWindow <= 0 {
		opts.RepeatWindow = DefaultRepeatWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{
		limit:        opts.Limit,
		window:       opts.Window,
		repeatWindow: opts.RepeatWindow,
		now:          opts.Now,
		repeats:      make(map[uint64]*repeat),
	}
}

// Allow records a request. fingerprint identifies identical requests
// (method plus raw params).
func (l *Limiter) Allow(fingerprint string) Decision {
	now := l.now()
	key := xxhash.Sum64String(fingerprint)

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.log) && !l.log[i].After(cutoff) {
		i++
	}
	l.log = l.log[i:]

	hint := l.repeatHint(key, now)

	if len(l.log) >= l.limit {
		wait := l.log[0].Add(l.window).Sub(now)
		return Decision{Allowed: false, RetryAfter: max(wait, hint, time.Millisecond)}
	}
	l.log = append(l.log, now)
	return Decision{Allowed: true, RetryAfter: hint}
}

// repeatHint updates the repeat streak for key and returns the hint: zero
// for a first request, then 50ms doubling per repeat up to 5s.
func (l *Limiter) repeatHint(key uint64, now time.Time) time.Duration {
	if len(l.repeats) > 4*l.limit {
		for k, r := range l.repeats {
			if now.Sub(r.last) > l.repeatWindow {
				delete(l.repeats, k)
			}
		}
	}
	r, ok := l.repeats[key]
	if !ok || now.Sub(r.last) > l.repeatWindow {
		l.repeats[key] = &repeat{last: now}
		return 0
	}
	r.last = now
	if r.hint == nil {
		r.hint = newRepeatHint()
	}
	return r.hint.NextBackOff()
}
