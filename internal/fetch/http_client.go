package fetch

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Doer sends a single HTTP request. *http.Client and *HTTPClient implement it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Exponential backoff defaults
const (
	defaultMaxRetries = 5
	baseDelay         = 1 * time.Second
	maxDelay          = 32 * time.Second
)

// ClientOptions configures NewHTTPClient
type ClientOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Sent as a bearer token on every request when set
	AccessToken string
	// Attempts per request including the first one; 0 selects the default
	MaxRetries int
	Transport  http.RoundTripper
}

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

// HTTPClient wraps a standard *http.Client and retries server errors
// with jittered exponential backoff.
type HTTPClient struct {
	client     *http.Client
	maxRetries int
	sleepFunc  func(ctx context.Context, d time.Duration) error
}

func NewHTTPClient(opts ClientOptions) *HTTPClient {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.AccessToken != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken}),
			Base:   transport,
		}
	}
	if opts.UserAgent != "" {
		transport = &userAgentRoundTripper{
			Wrapped:   transport,
			UserAgent: opts.UserAgent,
		}
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		maxRetries: maxRetries,
		sleepFunc:  sleepContext,
	}
}

// Do sends req, retrying 500/502/503/504 responses. The last response is
// returned as is once attempts run out, so callers see the real status.
func (h *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	delay := baseDelay

	for attempt := 1; ; attempt++ {
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, err
		}
		if !retryableStatus(resp.StatusCode) || attempt >= h.maxRetries {
			return resp, nil
		}
		// A consumed body cannot be sent again
		if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		// apply jitter
		wait := delay + time.Duration(rand.Int63n(int64(delay)))
		logrus.Debugf("Retrying %s %s after status %d in %s (attempt %d/%d)",
			req.Method, req.URL.Redacted(), resp.StatusCode, wait, attempt, h.maxRetries)
		if err := h.sleepFunc(req.Context(), wait); err != nil {
			return nil, err
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
	}
}

func (h *HTTPClient) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
