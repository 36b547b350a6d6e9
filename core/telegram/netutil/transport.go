package netutil

import (
	"io"
	"net/http"
	"strconv"
	"time"
)

// RetryTransport retries transient failures with exponential backoff.
// Network errors are retried when ShouldRetry reports them as transient;
// responses are retried when RetryStatus returns true for their status code.
type RetryTransport struct {
	Base http.RoundTripper
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// BaseDelay is doubled after each failed attempt.
	BaseDelay   time.Duration
	RetryStatus func(code int) bool
	// OnRetry is called before sleeping; cause is either an error text or "http_<code>".
	OnRetry func(req *http.Request, attempt int, delay time.Duration, cause string)
}

// RetryOnThrottle matches 429 and 503, the statuses a portal uses for rate limiting.
func RetryOnThrottle(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	delay := t.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil && req.Body != http.NoBody {
				// body already consumed and cannot be replayed
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		var cause string
		switch {
		case err != nil:
			lastErr = err
			if !ShouldRetry(err) {
				return nil, err
			}
			cause = err.Error()
		case t.RetryStatus != nil && t.RetryStatus(resp.StatusCode):
			if attempt == attempts {
				return resp, nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = &StatusError{Code: resp.StatusCode}
			cause = "http_" + strconv.Itoa(resp.StatusCode)
		default:
			return resp, nil
		}
		if attempt == attempts {
			break
		}

		if t.OnRetry != nil {
			t.OnRetry(req, attempt, delay, cause)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, req.Context().Err()
			case <-timer.C:
			}
		}
		delay *= 2
	}

	return nil, lastErr
}

// StatusError reports a retryable HTTP status that persisted through all attempts.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "http status " + strconv.Itoa(e.Code)
}
