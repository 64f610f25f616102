package adaptive

import (
	"context"

	"golang.org/x/time/rate"
)

// Shaper throttles outbound bytes to a configured rate, used when a
// deployment wants to cap bandwidth regardless of detected tier.
type Shaper struct {
	limiter *rate.Limiter
}

// NewShaper returns a Shaper capped at mbps megabits/sec with a burst
// allowance of burstBytes (9000 bytes if burstBytes <= 0). mbps <= 0
// disables shaping.
func NewShaper(mbps float64, burstBytes int) *Shaper {
	if mbps <= 0 {
		return &Shaper{limiter: nil}
	}
	bytesPerSec := mbps * 1_000_000 / 8
	if burstBytes <= 0 {
		burstBytes = 9000
	}
	return &Shaper{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burstBytes)}
}

// WaitN blocks until n bytes may be sent, or ctx is cancelled. A
// disabled Shaper returns immediately.
func (s *Shaper) WaitN(ctx context.Context, n int) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.WaitN(ctx, n)
}

// Enabled reports whether this shaper enforces a limit.
func (s *Shaper) Enabled() bool {
	return s.limiter != nil
}
