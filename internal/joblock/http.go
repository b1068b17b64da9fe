package joblock

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPCaller performs calls over HTTP, paced by a token bucket.
type HTTPCaller struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPCaller creates a caller with a per-request timeout. A
// callsPerSecond of zero or less means unlimited.
func NewHTTPCaller(timeout time.Duration, callsPerSecond float64) *HTTPCaller {
	limit := rate.Inf
	burst := 1
	if callsPerSecond > 0 {
		limit = rate.Limit(callsPerSecond)
		burst = int(math.Max(1, math.Ceil(callsPerSecond)))
	}
	return &HTTPCaller{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Call implements Caller.
func (c *HTTPCaller) Call(ctx context.Context, call Call) Result {
	res := Result{Name: call.Name}

	if err := c.limiter.Wait(ctx); err != nil {
		res.Err = fmt.Errorf("rate limiter: %w", err)
		return res
	}

	method := call.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, call.URL, nil)
	if err != nil {
		res.Err = fmt.Errorf("failed to build request: %w", err)
		return res
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	res.StatusCode = resp.StatusCode
	return res
}
