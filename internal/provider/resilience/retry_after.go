package resilience

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryAfterBackOff lets a server-provided Retry-After replace the next
// computed interval once.
type retryAfterBackOff struct {
	delegate backoff.BackOff
	max      time.Duration
	hint     time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.delegate.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > 0 {
		next = b.hint
		b.hint = 0
	}
	return next
}

func (b *retryAfterBackOff) Reset() {
	b.hint = 0
	b.delegate.Reset()
}

func (b *retryAfterBackOff) setHint(d time.Duration) {
	if d <= 0 {
		return
	}
	if b.max > 0 && d > b.max {
		d = b.max
	}
	b.hint = d
}

// parseRetryAfter reads a Retry-After header given as delta-seconds or an HTTP date.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
