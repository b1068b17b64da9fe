package admin

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"leasekeeper/pkg/api"
)

// newLimiter returns a limiter for rps requests per second. Zero or less
// means unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), int(math.Max(1, math.Ceil(rps))))
}

// rateLimit rejects requests beyond the limiter's budget. It guards the
// endpoints that reach the lease store.
func rateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			respondJson(w, http.StatusTooManyRequests, api.ErrorResponse{
				Error: "Too Many Requests",
				Code:  strconv.Itoa(http.StatusTooManyRequests),
			})
			return
		}
		next(w, r)
	}
}
