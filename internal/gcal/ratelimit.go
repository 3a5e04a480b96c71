package gcal

import (
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

// burstMultiplier sizes the token bucket relative to the per-second rate so
// a short idle stretch can be spent on the next few pages at once.
const burstMultiplier = 2

// rateLimitTransport holds every outgoing request until the shared limiter
// admits it. Retries pass through it too, so backoff and quota pacing
// compose.
type rateLimitTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// newRateLimitTransport wraps base with a limiter admitting perSecond
// requests. A non-positive rate returns base unchanged.
func newRateLimitTransport(base http.RoundTripper, perSecond float64, logger *slog.Logger) http.RoundTripper {
	if perSecond <= 0 {
		return base
	}

	burst := max(1, int(perSecond*burstMultiplier))

	logger.Debug("request rate limiter created",
		slog.Float64("per_second", perSecond),
		slog.Int("burst", burst),
	)

	return &rateLimitTransport{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("gcal: waiting for request slot: %w", err)
	}

	return t.base.RoundTrip(req)
}
