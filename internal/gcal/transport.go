package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// Retry and backoff constants.
const (
	DefaultMaxRetries = 5
	baseBackoff       = 1 * time.Second
	maxBackoff        = 60 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25

	// drainLimit bounds how much of a discarded error body is read so the
	// connection can be reused.
	drainLimit = 64 << 10
)

// TransportOptions configures the HTTP stack under the Calendar client.
type TransportOptions struct {
	ConnectTimeout    time.Duration
	DataTimeout       time.Duration
	MaxRetries        int
	RequestsPerSecond float64 // 0 = unlimited
}

// NewHTTPClient returns an http.Client that authenticates with ts and retries
// transient failures. A nil ts yields an unauthenticated client.
func NewHTTPClient(ts oauth2.TokenSource, opts TransportOptions, logger *slog.Logger) *http.Client {
	if logger == nil {
		logger = slog.Default()
	}

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.DataTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   4,
		ForceAttemptHTTP2:     true,
	}

	limited := newRateLimitTransport(base, opts.RequestsPerSecond, logger)

	var rt http.RoundTripper = newRetryTransport(limited, opts.MaxRetries, logger)

	if ts != nil {
		rt = &oauth2.Transport{Source: ts, Base: rt}
	}

	return &http.Client{Transport: rt}
}

// retryTransport retries network errors and retryable HTTP statuses with
// exponential backoff. When retries run out the last response is returned
// as-is so the API client can decode the error body.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func newRetryTransport(base http.RoundTripper, maxRetries int, logger *slog.Logger) *retryTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	return &retryTransport{
		base:       base,
		maxRetries: maxRetries,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	var attempt int
	for {
		attemptReq, err := rewind(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil || !canRetry(req) || attempt >= t.maxRetries {
				return nil, err
			}

			backoff := calcBackoff(attempt)
			t.logger.Warn("retrying after network error",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)

			if sleepErr := t.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, sleepErr
			}

			attempt++

			continue
		}

		retryable := isRetryable(resp.StatusCode) || isRateLimited(resp)

		if !retryable || !canRetry(req) || attempt >= t.maxRetries {
			if attempt > 0 && retryable {
				t.logger.Error("request failed after retries",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.Int("status", resp.StatusCode),
					slog.Int("attempts", attempt+1),
				)
			}

			return resp, nil
		}

		backoff := retryBackoff(resp, attempt)
		t.logger.Warn("retrying after HTTP error",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)

		_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
		resp.Body.Close()

		if err := t.sleepFunc(ctx, backoff); err != nil {
			return nil, err
		}

		attempt++
	}
}

// canRetry reports whether req can be sent again: it has no body, or the
// body can be recreated.
func canRetry(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// rewind returns the request to send for the given attempt, recreating the
// body for attempts after the first.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 || req.GetBody == nil {
		return req, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	clone.Body = body

	return clone, nil
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Error reasons Google attaches to 403 responses when a quota is throttled
// rather than access denied.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// isRateLimited reports whether resp is a 403 carrying a throttling reason.
// The inspected body prefix is put back so callers can still decode it.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden || resp.Body == nil {
		return false
	}

	head, err := io.ReadAll(io.LimitReader(resp.Body, drainLimit))
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), resp.Body), resp.Body}

	if err != nil {
		return false
	}

	var body struct {
		Error struct {
			Errors []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}

	if json.Unmarshal(head, &body) != nil {
		return false
	}

	for _, e := range body.Error.Errors {
		if rateLimitReasons[e.Reason] {
			return true
		}
	}

	return false
}

// retryBackoff returns the backoff for a retryable response, preferring the
// server's Retry-After (in seconds) when present.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			d := time.Duration(seconds) * time.Second
			if d > maxBackoff {
				return maxBackoff
			}

			return d
		}
	}

	return calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
