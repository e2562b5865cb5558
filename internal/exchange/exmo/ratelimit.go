package exmo

import (
	"context"
	"sync"
	"time"
)

const (
	adaptiveBase  = 250 * time.Millisecond
	adaptiveFloor = 50 * time.Millisecond
	adaptiveCap   = 30 * time.Second
)

// Limiter enforces rolling per-minute and per-hour call budgets. Wait
// blocks for the minimum time needed to stay under both budgets, plus an
// adaptive delay that grows after throttle/5xx responses and decays after
// successes. Calls are never rejected, only delayed.
//
// Safe for concurrent use: the counters are shared across every call site
// that hits the same venue.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	minute    []time.Time
	hour      []time.Time
	extra     time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewLimiter creates a limiter with the given budgets. Non-positive
// budgets disable the corresponding window.
func NewLimiter(perMinute, perHour int) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait blocks until a call may proceed, then records it against both
// windows. Returns early only when ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.minute = prune(l.minute, now.Add(-time.Minute))
		l.hour = prune(l.hour, now.Add(-time.Hour))

		var wait time.Duration
		if l.perMinute > 0 && len(l.minute) >= l.perMinute {
			wait = l.minute[0].Add(time.Minute).Sub(now)
		}
		if l.perHour > 0 && len(l.hour) >= l.perHour {
			if w := l.hour[0].Add(time.Hour).Sub(now); w > wait {
				wait = w
			}
		}
		if wait <= 0 {
			wait = l.extra
			l.minute = append(l.minute, now)
			l.hour = append(l.hour, now)
			l.mu.Unlock()
			return l.sleep(ctx, wait)
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// OnSuccess decays the adaptive delay by half, dropping it entirely once
// it falls under the floor.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	l.extra /= 2
	if l.extra < adaptiveFloor {
		l.extra = 0
	}
	l.mu.Unlock()
}

// OnThrottle doubles the adaptive delay (seeding it at the base) up to
// the cap. Called after 429/5xx responses.
func (l *Limiter) OnThrottle() {
	l.mu.Lock()
	if l.extra < adaptiveBase {
		l.extra = adaptiveBase
	} else {
		l.extra *= 2
	}
	if l.extra > adaptiveCap {
		l.extra = adaptiveCap
	}
	l.mu.Unlock()
}

// Extra returns the current adaptive delay.
func (l *Limiter) Extra() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extra
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}
