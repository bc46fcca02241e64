package poster

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limited throttles Send on a token bucket. HealthCheck is not throttled.
type Limited struct {
	p   Poster
	lim *rate.Limiter
}

// WithLimit wraps p so that at most one send happens per interval (burst 1).
// A non-positive interval returns p unchanged.
func WithLimit(p Poster, every time.Duration) Poster {
	if every <= 0 || p == nil {
		return p
	}
	return &Limited{p: p, lim: rate.NewLimiter(rate.Every(every), 1)}
}

func (l *Limited) Name() string { return l.p.Name() }

func (l *Limited) Send(ctx context.Context, content string) (Result, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return Result{}, transient(err)
	}
	return l.p.Send(ctx, content)
}

func (l *Limited) HealthCheck(ctx context.Context) error { return l.p.HealthCheck(ctx) }
