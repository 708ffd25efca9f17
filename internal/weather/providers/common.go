package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/i474232898/temperature-display/internal/ratelimit"
	"github.com/i474232898/temperature-display/internal/weather"
)

// Limiter is the subset of ratelimit.Limiter the providers rely on.
type Limiter interface {
	TryAcquire(provider string) ratelimit.Decision
	RecordOutcome(provider string, success bool)
}

// HTTPClientConfig bundles the HTTP client and the admission controls shared
// by every adapter.
type HTTPClientConfig struct {
	Client  *http.Client
	Limiter Limiter
	// MaxConcurrent bounds outstanding requests per provider; 0 means 8.
	MaxConcurrent int64
}

// Option customizes an adapter.
type Option func(*client)

// WithBaseURL points the adapter at a different endpoint (tests, proxies).
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

const defaultMaxConcurrent = 8

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 1 << 20

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errNoHTTPClient = errors.New("http client not configured")
)

// client performs exactly one attempt per call: admission by the concurrency
// semaphore, then the rate limiter, then the request.
type client struct {
	name    string
	baseURL string
	http    *http.Client
	limiter Limiter
	sem     *semaphore.Weighted
}

func newClient(name, baseURL string, cfg HTTPClientConfig, opts []Option) *client {
	n := cfg.MaxConcurrent
	if n <= 0 {
		n = defaultMaxConcurrent
	}
	c := &client{
		name:    name,
		baseURL: baseURL,
		http:    cfg.Client,
		limiter: cfg.Limiter,
		sem:     semaphore.NewWeighted(n),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fetch performs one attempt: build the request, take a concurrency slot,
// ask the limiter, call upstream, decode and normalize. The limiter outcome is
// recorded exactly once, and only when the request reached the network.
func (c *client) fetch(
	ctx context.Context,
	timeout time.Duration,
	units weather.Units,
	buildRequest func(ctx context.Context) (*http.Request, error),
	decode func(body io.Reader) (weather.ProviderReading, error),
) (reading weather.Reading, err error) {
	if c.http == nil {
		return weather.Reading{}, weather.NewProviderError(weather.CodeProviderUnavailable, c.name, errNoHTTPClient)
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := buildRequest(actx)
	if err != nil {
		return weather.Reading{}, weather.NewProviderError(weather.CodeProviderUnavailable, c.name, err)
	}

	if err := c.sem.Acquire(actx, 1); err != nil {
		return weather.Reading{}, c.classifyCtx(ctx, actx, err)
	}
	defer c.sem.Release(1)

	if c.limiter != nil {
		if d := c.limiter.TryAcquire(c.name); !d.Granted {
			return weather.Reading{}, &weather.Error{
				Code:       weather.CodeProviderRateLimited,
				Provider:   c.name,
				RetryAfter: d.RetryAfter,
				Err:        fmt.Errorf("%w: retry after %s", errRateLimited, d.RetryAfter),
			}
		}
		defer func() {
			c.limiter.RecordOutcome(c.name, err == nil)
		}()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return weather.Reading{}, c.classifyTransport(ctx, actx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return weather.Reading{}, &weather.Error{
			Code:       weather.CodeProviderRateLimited,
			Provider:   c.name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        errRateLimited,
		}
	case resp.StatusCode >= 500:
		return weather.Reading{}, weather.NewProviderError(weather.CodeProviderUnavailable, c.name, fmt.Errorf("%w: %d", errServerError, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return weather.Reading{}, weather.NewProviderError(weather.CodeProviderUnavailable, c.name, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode))
	}

	raw, err := decode(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if actx.Err() != nil {
			return weather.Reading{}, c.classifyCtx(ctx, actx, err)
		}
		return weather.Reading{}, weather.NewProviderError(weather.CodeProviderDataInvalid, c.name, fmt.Errorf("decode response: %w", err))
	}

	raw.ProviderName = c.name
	return raw.Normalize(units)
}

// classifyTransport maps a failed round trip onto the error taxonomy.
func (c *client) classifyTransport(parent, actx context.Context, err error) error {
	if actx.Err() != nil {
		return c.classifyCtx(parent, actx, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return weather.NewProviderError(weather.CodeProviderTimeout, c.name, err)
	}
	return weather.NewProviderError(weather.CodeProviderUnavailable, c.name, err)
}

// classifyCtx distinguishes the attempt timeout from the caller going away.
func (c *client) classifyCtx(parent, actx context.Context, err error) error {
	if errors.Is(actx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return weather.NewProviderError(weather.CodeProviderTimeout, c.name, err)
	}
	if errors.Is(parent.Err(), context.DeadlineExceeded) {
		return weather.NewProviderError(weather.CodeProviderTimeout, c.name, err)
	}
	return weather.NewProviderError(weather.CodeProviderUnavailable, c.name, err)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

type field struct {
	name  string
	value *float64
}

// requireFields fails on the first field absent from the payload.
func requireFields(fields ...field) error {
	for _, f := range fields {
		if f.value == nil {
			return fmt.Errorf("missing %s", f.name)
		}
	}
	return nil
}

func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
