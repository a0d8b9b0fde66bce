package lib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// DefaultRatePerSecond defines the default request rate per second when creating a new Fetcher.
const DefaultRatePerSecond = 2

// defaultRetryAfter specifies the default value for Retry-After header in case of too many requests.
const defaultRetryAfter = 60

// defaultMaxElapsedTime specifies the default maximum elapsed time for the exponential backoff.
const defaultMaxElapsedTime = 10 * time.Minute

// defaultMaxInterval defines the default maximum interval for the exponential backoff.
const defaultMaxInterval = 2 * time.Minute

// userAgent specifies the User-Agent header value used in HTTP requests.
const userAgent = "kmn-dl/0.4"

// ErrNotFound is returned when the remote resource does not exist. It is
// never retried.
var ErrNotFound = errors.New("resource not found")

// ErrMaintenance is returned when the remote API answers 503.
var ErrMaintenance = errors.New("API is in maintenance or not available")

// Fetcher represents a URL fetcher with rate limiting and retry mechanisms.
type Fetcher struct {
	Client      *http.Client
	RateLimiter *rate.Limiter
	BackoffCfg  backoff.BackOff
	Cookie      *http.Cookie
}

// FetchError represents an error returned when encountering too many requests with a Retry-After value.
type FetchError struct {
	TooManyRequests bool
	RetryAfter      int
}

// Error returns the error message for the FetchError, indicating the retry wait time.
func (e *FetchError) Error() string {
	return fmt.Sprintf("too many requests, retry after %d seconds", e.RetryAfter)
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithRatePerSecond sets the rate limit to the given number of requests per second.
func WithRatePerSecond(n int) FetcherOption {
	return func(f *Fetcher) {
		f.RateLimiter = rate.NewLimiter(rate.Limit(n), f.RateLimiter.Burst())
	}
}

// WithBurst sets the rate limiter burst size.
func WithBurst(n int) FetcherOption {
	return func(f *Fetcher) {
		f.RateLimiter = rate.NewLimiter(f.RateLimiter.Limit(), n)
	}
}

// WithProxyURL routes all requests through the given proxy.
func WithProxyURL(proxyURL *url.URL) FetcherOption {
	return func(f *Fetcher) {
		if proxyURL != nil {
			f.Client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
}

// WithCookie attaches the given cookie to every request (used for the
// authenticated favorites endpoints).
func WithCookie(c *http.Cookie) FetcherOption {
	return func(f *Fetcher) {
		f.Cookie = c
	}
}

// WithBackOffConfig replaces the retry backoff configuration.
func WithBackOffConfig(b backoff.BackOff) FetcherOption {
	return func(f *Fetcher) {
		f.BackoffCfg = b
	}
}

// WithTimeout sets the per-request client timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.Client.Timeout = d
	}
}

// NewFetcher creates a new Fetcher with the given options applied on top of
// the defaults.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		Client:      &http.Client{Transport: http.DefaultTransport},
		RateLimiter: rate.NewLimiter(rate.Limit(DefaultRatePerSecond), 1),
		BackoffCfg:  makeDefaultBackoff(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchURL fetches the specified URL and returns the response body as io.ReadCloser.
// It uses rate limiting and retry mechanisms to handle rate limits and transient failures.
// Not-found and maintenance responses are permanent and returned immediately.
func (f *Fetcher) FetchURL(ctx context.Context, url string) (io.ReadCloser, error) {
	var body io.ReadCloser
	var nextRetryWait time.Duration

	operation := func() error {
		if nextRetryWait > 0 {
			select {
			case <-time.After(nextRetryWait):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
			nextRetryWait = 0
		}
		if err := f.RateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		body, err = f.fetch(ctx, url, nil)
		return err
	}

	notify := func(err error, d time.Duration) {
		if respErr, ok := err.(*FetchError); ok && respErr.TooManyRequests {
			nextRetryWait = time.Duration(respErr.RetryAfter) * time.Second
		}
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(f.BackoffCfg, ctx), notify)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Get performs a single GET request without the retry layer: streaming
// attachment fetches manage their own retries in the download executor.
func (f *Fetcher) Get(ctx context.Context, url string, header http.Header) (io.ReadCloser, error) {
	if err := f.RateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := f.fetch(ctx, url, header)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Unwrap()
		}
		return nil, err
	}
	return body, nil
}

// Head issues a HEAD request and returns the response headers.
func (f *Fetcher) Head(ctx context.Context, url string) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if err := f.RateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
	return res.Header, nil
}

// fetch performs the actual HTTP GET request to the specified URL and returns the response body.
// It checks for too many requests (status code 429) and handles it by returning a FetchError.
func (f *Fetcher) fetch(ctx context.Context, url string, header http.Header) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if f.Cookie != nil {
		req.AddCookie(f.Cookie)
	}

	res, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}

	switch res.StatusCode {
	case http.StatusOK:
		return res.Body, nil
	case http.StatusNotFound:
		res.Body.Close()
		return nil, backoff.Permanent(ErrNotFound)
	case http.StatusServiceUnavailable:
		res.Body.Close()
		return nil, backoff.Permanent(ErrMaintenance)
	case http.StatusTooManyRequests:
		defer res.Body.Close()
		retryAfter := defaultRetryAfter
		if retryAfterStr := res.Header.Get("Retry-After"); retryAfterStr != "" {
			retryAfter, err = strconv.Atoi(retryAfterStr)
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("invalid Retry-After header: %v", err))
			}
		}
		return nil, &FetchError{TooManyRequests: true, RetryAfter: retryAfter}
	default:
		res.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}
}

// makeDefaultBackoff creates and returns the default exponential backoff configuration.
func makeDefaultBackoff() backoff.BackOff {
	backOffCfg := backoff.NewExponentialBackOff()
	backOffCfg.MaxElapsedTime = defaultMaxElapsedTime
	backOffCfg.MaxInterval = defaultMaxInterval
	backOffCfg.Multiplier = 2.0

	return backOffCfg
}
