package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/breatheroute/aqbackfill/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// OpsRateLimit applies to every ops endpoint (120 req/min).
var OpsRateLimit = RateLimitConfig{
	RequestLimit: 120,
	WindowLength: time.Minute,
}

// RateLimitByIP limits requests per client IP.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(cfg.WindowLength.Seconds()))
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			// httprate does not expose the reset time; the window length is an upper bound.
			w.Header().Set("Retry-After", retryAfter)
			models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.").
				WithInstance(r.URL.Path).
				Write(w)
		}),
	)
}
