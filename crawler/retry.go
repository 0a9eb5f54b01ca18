package crawler

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lukemcguire/linkwalk/outcome"
	"github.com/lukemcguire/linkwalk/urlutil"
)

// RetryPolicy configures retry behavior for failed requests.
// The zero value disables retries.
type RetryPolicy struct {
	MaxRetries int           // Maximum number of retries (2 = 3 total attempts)
	BaseDelay  time.Duration // Initial backoff delay
	MaxDelay   time.Duration // Maximum backoff cap
}

// DefaultRetryPolicy returns a RetryPolicy with 2 retries (3 attempts),
// 1s base delay and 30s max delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// fetchWithRetry wraps fetch with exponential backoff. It retries transient
// failures (network errors, 5xx, 429) but not permanent ones.
func (r *HTTPRequester) fetchWithRetry(ctx context.Context, u urlutil.URL, method string) outcome.Outcome {
	policy := r.retryPolicy
	backoff := policy.BaseDelay

	result := r.fetch(ctx, u, method)
	for attempt := 1; attempt <= policy.MaxRetries && shouldRetry(result); attempt++ {
		r.log.WithFields(logrus.Fields{
			"url":     u.String(),
			"attempt": attempt + 1,
			"backoff": backoff,
		}).Debug("retrying")

		select {
		case <-ctx.Done():
			return result
		case <-time.After(backoff):
			backoff = min(backoff*2, policy.MaxDelay)
		}

		result = r.fetch(ctx, u, method)
	}
	return result
}

// shouldRetry determines if an outcome is worth another attempt:
// transient request errors, HTTP 429 and HTTP 5xx.
func shouldRetry(result outcome.Outcome) bool {
	switch v := result.(type) {
	case outcome.RequestError:
		return v.Category.Transient()
	case outcome.Page:
		return v.Code == http.StatusTooManyRequests || (v.Code >= 500 && v.Code < 600)
	default:
		return false
	}
}
