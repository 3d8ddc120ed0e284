package scan

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle admits at most one decode per interval. A rejected decode does
// not move the window.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a throttle for the given interval. A zero interval
// admits everything.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Allow reports whether a decode at now is admitted.
func (t *Throttle) Allow(now time.Time) bool {
	return t.limiter.AllowN(now, 1)
}
