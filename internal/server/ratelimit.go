package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"go.miloapis.com/auditdashboard/internal/apierrors"
)

// RateLimiter bounds the API request rate with a token bucket shared by all
// clients.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows requestsPerSecond requests with bursts up to twice the
// rate. A non-positive rate returns nil, which disables limiting.
func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond*2),
	}
}

// Allow takes one token. When none is available it returns false and how long the
// client should wait before retrying.
func (rl *RateLimiter) Allow(now time.Time) (bool, time.Duration) {
	if rl == nil {
		return true, 0
	}
	reservation := rl.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Second
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		// The token is not ours until delay has passed, so give it back.
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) wrap(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter := rl.Allow(time.Now())
		if !ok {
			seconds := int32(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(int(seconds)))
			writeStatus(w, apierrors.NewTooManyRequests(seconds))
			return
		}
		next.ServeHTTP(w, r)
	})
}
