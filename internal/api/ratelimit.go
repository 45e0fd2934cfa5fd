package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"relay/internal/apperr"
)

// RequestRateLimiter is a thin wrapper around chi/httprate configuration,
// guarding unauthenticated endpoints (register/login/refresh) by client IP
// rather than by user ID, since ratelimit.Limiter only has a userID to key
// on once a caller is authenticated.
type RequestRateLimiter struct {
	requestLimit int
	windowLength time.Duration
}

func NewRequestRateLimiter(limit int, window time.Duration) *RequestRateLimiter {
	return &RequestRateLimiter{requestLimit: limit, windowLength: window}
}

func RateLimitMiddleware(limiter *RequestRateLimiter, ipResolver *ClientIPResolver) func(http.Handler) http.Handler {
	if ipResolver == nil {
		ipResolver, _ = NewClientIPResolver(nil)
	}

	retryAfter := retryAfterSeconds(limiter.windowLength)

	return httprate.Limit(
		limiter.requestLimit,
		limiter.windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ipResolver.Resolve(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, string(apperr.RateLimited), "too many requests, try again later")
		}),
	)
}

func retryAfterSeconds(window time.Duration) int {
	seconds := int(math.Ceil(window.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
