package supervisor

import (
	"time"

	"golang.org/x/time/rate"
)

// crashGuard trips when worker crashes arrive faster than the configured
// rate. A token bucket sized to the threshold tolerates a burst of exactly
// that many crashes inside one window; a sustained higher rate means the
// application is poisoned and the whole launch must come down.
type crashGuard struct {
	lim *rate.Limiter
}

// newCrashGuard builds a guard allowing threshold crashes per window.
// threshold <= 0 disables the guard.
func newCrashGuard(threshold int, window time.Duration) *crashGuard {
	if threshold <= 0 || window <= 0 {
		return nil
	}
	perSecond := float64(threshold) / window.Seconds()
	return &crashGuard{
		lim: rate.NewLimiter(rate.Limit(perSecond), threshold),
	}
}

// Allow records one crash at now and reports whether the launch may keep
// running. A nil guard always allows.
func (g *crashGuard) Allow(now time.Time) bool {
	if g == nil {
		return true
	}
	return g.lim.AllowN(now, 1)
}
