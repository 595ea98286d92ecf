package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const maxErrorBody = 512

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming and health reporting.
	Name string

	Logger zerolog.Logger

	// Timeout bounds a single attempt when the request does not set its own.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxAttempts is the total number of attempts, including the first.
	// Default: 5
	MaxAttempts int

	// BackoffBase is the wait before the first retry.
	// Default: 800ms
	BackoffBase time.Duration

	// BackoffMultiplier grows the wait geometrically between retries.
	// Default: 2
	BackoffMultiplier float64

	// MaxInterval caps a single computed backoff wait.
	// Default: 30 seconds
	MaxInterval time.Duration

	// RandomizationFactor adds jitter to computed waits. Zero disables it.
	RandomizationFactor float64

	// MaxRetryAfter caps a server supplied Retry-After wait.
	// Default: 60 seconds
	MaxRetryAfter time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives success and failure records when set.
	Registry *Registry

	// HTTPClient overrides the transport. Per-attempt timeouts are applied
	// through the request context.
	HTTPClient *http.Client
}

// DefaultClientConfig returns sensible defaults for the resilient client.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:              name,
		Logger:            zerolog.Nop(),
		Timeout:           30 * time.Second,
		MaxAttempts:       5,
		BackoffBase:       800 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxInterval:       30 * time.Second,
		MaxRetryAfter:     60 * time.Second,
		CircuitBreaker:    &cbConfig,
	}
}

// Request describes one GET call against a remote source.
type Request struct {
	// Endpoint is the absolute URL without query string.
	Endpoint string

	Params url.Values

	// Timeout overrides ClientConfig.Timeout for this call.
	Timeout time.Duration
}

// response is the buffered result of one attempt.
type response struct {
	status int
	header http.Header
	body   []byte
}

// Client is a resilient HTTP client with circuit breaker and retry logic.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*response]
	config         ClientConfig
	logger         zerolog.Logger

	// openedAt is the UnixNano time the circuit last opened.
	openedAt atomic.Int64
	openFor  time.Duration
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 800 * time.Millisecond
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}
	if cfg.MaxRetryAfter <= 0 {
		cfg.MaxRetryAfter = 60 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}
	if cbConfig.ReadyToTrip == nil {
		cbConfig.ReadyToTrip = ReadyToTripAfter(TripThreshold(cfg.MaxAttempts))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     cfg.Logger.With().Str("provider", cfg.Name).Logger(),
		openFor:    openTimeout(cbConfig.Timeout),
	}

	onChange := cbConfig.OnStateChange
	cbConfig.OnStateChange = func(name string, from, to gobreaker.State) {
		if to == gobreaker.StateOpen {
			c.openedAt.Store(time.Now().UnixNano())
		}
		c.logger.Warn().
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
		if onChange != nil {
			onChange(name, from, to)
		}
	}
	c.circuitBreaker = NewCircuitBreaker[*response](cbConfig)

	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}

	return c
}

// Name returns the provider name the client was created with.
func (c *Client) Name() string {
	return c.config.Name
}

// Call performs a GET against req.Endpoint with req.Params and decodes the
// JSON body into out. Connection failures, timeouts and 429/500/502/503/504
// are retried with geometric backoff up to MaxAttempts in total. Any other
// non-2xx status fails at once with *ClientError; an undecodable body yields
// *ParseError; exhausted retries yield *TransportError. While the circuit is
// open an attempt waits for the half-open trial, so every call gets its full
// attempt budget. A cancelled ctx stops retrying and its error is returned.
func (c *Client) Call(ctx context.Context, req Request, out any) error {
	target, err := buildURL(req)
	if err != nil {
		return err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.BackoffBase
	bo.Multiplier = c.config.BackoffMultiplier
	bo.RandomizationFactor = c.config.RandomizationFactor
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // Unlimited, attempts are bounded via WithMaxRetries

	policy := &retryAfterBackOff{
		delegate: backoff.WithMaxRetries(bo, uint64(c.config.MaxAttempts-1)),
		max:      c.config.MaxRetryAfter,
	}

	attempts := 0
	operation := func() error {
		if err := c.waitForCircuit(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempts++

		resp, err := c.circuitBreaker.Execute(func() (*response, error) {
			return c.attempt(ctx, target, timeout)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) && resp != nil {
				policy.setHint(parseRetryAfter(resp.header, time.Now()))
			}
			return err
		}

		if resp.status < 200 || resp.status >= 300 {
			return backoff.Permanent(&ClientError{
				Endpoint:   req.Endpoint,
				StatusCode: resp.status,
				Body:       truncate(resp.body, maxErrorBody),
			})
		}

		if out != nil {
			if err := json.Unmarshal(resp.body, out); err != nil {
				return backoff.Permanent(&ParseError{Endpoint: req.Endpoint, Err: err})
			}
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		c.logger.Warn().
			Err(err).
			Str("endpoint", req.Endpoint).
			Int("attempt", attempts).
			Dur("retry_in", next).
			Msg("provider call failed, retrying")
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if err == nil {
		c.record(nil)
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var clientErr *ClientError
	var parseErr *ParseError
	switch {
	case errors.As(err, &clientErr), errors.As(err, &parseErr):
		c.record(err)
		return err
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		err = fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
	}

	transportErr := &TransportError{Endpoint: req.Endpoint, Attempts: attempts, Err: err}
	c.record(transportErr)
	return transportErr
}

// waitForCircuit blocks while the circuit is open, until the breaker is due
// to let a half-open trial through.
func (c *Client) waitForCircuit(ctx context.Context) error {
	for c.circuitBreaker.State() == gobreaker.StateOpen {
		wait := time.Until(time.Unix(0, c.openedAt.Load()).Add(c.openFor))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		c.logger.Debug().Dur("wait", wait).Msg("circuit open, waiting for half-open trial")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// attempt issues one request. Retriable statuses are reported as errors so
// they count against the circuit breaker.
func (c *Client) attempt(ctx context.Context, target string, timeout time.Duration) (*response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("Accept", "application/json")

	r, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &response{status: r.StatusCode, header: r.Header, body: body}
	if IsRetriableStatus(r.StatusCode) {
		return resp, &StatusError{StatusCode: r.StatusCode}
	}
	return resp, nil
}

func (c *Client) record(err error) {
	if c.config.Registry == nil {
		return
	}
	if err == nil {
		c.config.Registry.RecordSuccess(c.config.Name)
		return
	}
	c.config.Registry.RecordFailure(c.config.Name, err)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}

func buildURL(req Request) (string, error) {
	u, err := url.Parse(req.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", req.Endpoint, err)
	}
	if len(req.Params) > 0 {
		q := u.Query()
		for k, vs := range req.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
