// Package fetch retrieves API responses over HTTP and reuses cached copies
// while they are younger than a TTL.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/bandcache/internal/cache"
)

// Query parameters never written to logs
var secretParams = []string{"key", "access_token"}

// Request describes one logical API call.
type Request struct {
	URL string
	// Added to the query string; empty values are dropped
	Params url.Values
	// Sent form-encoded with POST when non-empty. POST responses are never cached.
	PostData url.Values
	// Combined with the URL into the cache key so different accounts never share entries
	Credential string
	// Skip the cache for this call
	NoCache bool
}

// Fetcher issues requests through a Doer and keeps successful GET
// responses in a cache.GenericCache.
type Fetcher struct {
	doer  Doer
	cache cache.GenericCache
	ttl   time.Duration
	now   func() time.Time
}

// New creates a Fetcher. A nil store or a non-positive ttl disables caching.
func New(doer Doer, store cache.GenericCache, ttl time.Duration) *Fetcher {
	return &Fetcher{
		doer:  doer,
		cache: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// SetTTL changes how long responses are reused
func (f *Fetcher) SetTTL(ttl time.Duration) {
	f.ttl = ttl
}

func (f *Fetcher) TTL() time.Duration {
	return f.ttl
}

// Cache returns the underlying store, nil when caching is disabled
func (f *Fetcher) Cache() cache.GenericCache {
	return f.cache
}

// CacheKey builds the cache key of a request URL for a credential
func CacheKey(credential, target string) string {
	if credential == "" {
		return target
	}
	return credential + ":" + target
}

// BuildURL appends the non-empty params to the query string of base
func BuildURL(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", base, err)
	}

	query := u.Query()
	for k, values := range params {
		for _, v := range values {
			if v != "" {
				query.Add(k, v)
			}
		}
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// Fetch returns the body of req, from the cache when a fresh copy exists.
//
// A stale or missing entry is refetched and overwritten. When refetching a
// stale entry fails, the error is a *RefetchFailedError carrying the stale
// payload. Cache failures are returned, never ignored.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	target, err := BuildURL(req.URL, req.Params)
	if err != nil {
		return nil, err
	}

	// Open and return the URL immediately if we're not going to cache
	if len(req.PostData) > 0 || req.NoCache || f.cache == nil || f.ttl <= 0 {
		return f.do(ctx, target, req.PostData)
	}

	key := CacheKey(req.Credential, target)

	lastCached, found, err := f.cache.LastModified(key)
	if err != nil {
		return nil, fmt.Errorf("failed to stat cache: %w", err)
	}

	if found && cache.IsFresh(lastCached, f.ttl, f.now()) {
		data, ok, err := f.cache.Get(key)
		if err != nil {
			return nil, fmt.Errorf("failed to get cache: %w", err)
		}
		if ok {
			logrus.Debugf("Cache hit for %s", redact(target))
			return data, nil
		}
		// Removed between the two calls
		found = false
	}

	data, err := f.do(ctx, target, nil)
	if err != nil {
		if found {
			stale, ok, getErr := f.cache.Get(key)
			if getErr != nil {
				return nil, fmt.Errorf("%w (reading stale entry: %v)", err, getErr)
			}
			if ok {
				return nil, &RefetchFailedError{
					URL:        redact(target),
					Stale:      stale,
					StaleSince: lastCached,
					Err:        err,
				}
			}
		}
		return nil, err
	}

	if err := f.cache.Set(key, data); err != nil {
		return nil, fmt.Errorf("failed to store response: %w", err)
	}
	logrus.Debugf("Cached response for %s", redact(target))

	return data, nil
}

func (f *Fetcher) do(ctx context.Context, target string, postData url.Values) ([]byte, error) {
	method := http.MethodGet
	var body io.Reader
	if len(postData) > 0 {
		method = http.MethodPost
		body = strings.NewReader(postData.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.doer.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, redact(target), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", redact(target), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: data}
	}

	logrus.Debugf("Fetched %s %s -> %d (%d bytes)", method, redact(target), resp.StatusCode, len(data))
	return data, nil
}

// readBody returns the decoded body, inflating gzip content encoding
func readBody(resp *http.Response) ([]byte, error) {
	if !strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		return io.ReadAll(resp.Body)
	}

	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("invalid gzip body: %w", err)
	}
	defer func() { _ = zr.Close() }()

	return io.ReadAll(zr)
}

// redact hides credentials carried in the query string
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	query := u.Query()
	changed := false
	for _, name := range secretParams {
		if query.Has(name) {
			query.Set(name, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = query.Encode()
	}
	return u.Redacted()
}
