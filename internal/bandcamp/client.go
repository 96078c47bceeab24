// Package bandcamp is a client for the Bandcamp public API. Responses are
// cached on disk for a configurable TTL.
package bandcamp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/iTrooz/bandcache/internal/cache"
	"github.com/iTrooz/bandcache/internal/fetch"
)

const (
	DefaultBaseURL = "https://api.bandcamp.com/api/"
	// DefaultCacheTTL is how long responses are reused when no TTL is configured
	DefaultCacheTTL = 60 * time.Second

	defaultConcurrency = 4
)

// BandQuery selects a band. ID takes precedence over Subdomain, which takes
// precedence over URL.
type BandQuery struct {
	ID        int64
	Subdomain string
	URL       string
}

func (q BandQuery) params() (url.Values, error) {
	params := url.Values{}
	switch {
	case q.ID != 0:
		params.Set("band_id", strconv.FormatInt(q.ID, 10))
	case q.Subdomain != "":
		// The API resolves subdomains through band_url
		params.Set("band_url", q.Subdomain)
	case q.URL != "":
		params.Set("band_url", q.URL)
	default:
		return nil, ErrMissingBandQuery
	}
	return params, nil
}

type options struct {
	baseURL     string
	cache       cache.Choice
	ttl         time.Duration
	doer        fetch.Doer
	concurrency int
	allowStale  bool
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL points the client at another API root
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithCache selects the response cache. The default is a DiskCache under
// cache.DefaultRoot; cache.Disabled() turns caching off.
func WithCache(choice cache.Choice) Option {
	return func(o *options) { o.cache = choice }
}

// WithCacheTTL sets how long responses are reused
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithDoer replaces the HTTP client
func WithDoer(doer fetch.Doer) Option {
	return func(o *options) { o.doer = doer }
}

// WithConcurrency bounds the parallel requests of batch calls such as GetTracks
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithStaleOnError makes calls fall back to an expired cached response when
// refreshing it fails. A warning is logged each time.
func WithStaleOnError(allow bool) Option {
	return func(o *options) { o.allowStale = allow }
}

// Client talks to the Bandcamp API.
type Client struct {
	baseURL     string
	key         string
	fetcher     *fetch.Fetcher
	concurrency int
	allowStale  bool
}

// New creates a client authenticated with a developer key.
func New(key string, opts ...Option) (*Client, error) {
	if key == "" {
		return nil, ErrMissingKey
	}

	o := options{
		baseURL:     DefaultBaseURL,
		cache:       cache.Default(),
		ttl:         DefaultCacheTTL,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.doer == nil {
		o.doer = fetch.NewHTTPClient(fetch.ClientOptions{})
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}

	store, err := o.cache.Resolve()
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	return &Client{
		baseURL:     o.baseURL,
		key:         key,
		fetcher:     fetch.New(o.doer, store, o.ttl),
		concurrency: o.concurrency,
		allowStale:  o.allowStale,
	}, nil
}

// SetCacheTTL changes how long responses are reused. Zero disables reuse.
func (c *Client) SetCacheTTL(ttl time.Duration) {
	c.fetcher.SetTTL(ttl)
}

// SetCredentials replaces the developer key
func (c *Client) SetCredentials(key string) {
	c.key = key
}

// ClearCredentials forgets the developer key. Later calls are sent
// unauthenticated and are rejected by the API.
func (c *Client) ClearCredentials() {
	c.key = ""
}

// Cache returns the response cache, nil when caching is disabled
func (c *Client) Cache() cache.GenericCache {
	return c.fetcher.Cache()
}

// GetBand returns information about a band.
func (c *Client) GetBand(ctx context.Context, query BandQuery) (*Band, error) {
	params, err := query.params()
	if err != nil {
		return nil, err
	}

	var band Band
	if err := c.call(ctx, "band/1/info", params, func(data []byte) error {
		return json.Unmarshal(data, &band)
	}); err != nil {
		return nil, err
	}
	return &band, nil
}

// GetDiscography returns the albums and standalone tracks of a band.
func (c *Client) GetDiscography(ctx context.Context, query BandQuery) (*Discography, error) {
	params, err := query.params()
	if err != nil {
		return nil, err
	}

	var disco *Discography
	if err := c.call(ctx, "band/1/discography", params, func(data []byte) error {
		disco, err = decodeDiscography(data)
		return err
	}); err != nil {
		return nil, err
	}
	return disco, nil
}

// GetAlbum returns an album and its tracks.
func (c *Client) GetAlbum(ctx context.Context, albumID int64) (*Album, error) {
	params := url.Values{"album_id": {strconv.FormatInt(albumID, 10)}}

	var album Album
	if err := c.call(ctx, "album/1/info", params, func(data []byte) error {
		return json.Unmarshal(data, &album)
	}); err != nil {
		return nil, err
	}
	return &album, nil
}

// GetTrack returns a single track.
func (c *Client) GetTrack(ctx context.Context, trackID int64) (*Track, error) {
	params := url.Values{"track_id": {strconv.FormatInt(trackID, 10)}}

	var track Track
	if err := c.call(ctx, "track/1/info", params, func(data []byte) error {
		return json.Unmarshal(data, &track)
	}); err != nil {
		return nil, err
	}
	return &track, nil
}

// GetTracks fetches several tracks in parallel. Results follow the order of
// trackIDs. The first failure cancels the remaining requests.
func (c *Client) GetTracks(ctx context.Context, trackIDs []int64) ([]*Track, error) {
	tracks := make([]*Track, len(trackIDs))

	p := pool.New().WithMaxGoroutines(c.concurrency).WithContext(ctx).WithCancelOnError()
	for i, id := range trackIDs {
		p.Go(func(ctx context.Context) error {
			track, err := c.GetTrack(ctx, id)
			if err != nil {
				return fmt.Errorf("track %d: %w", id, err)
			}
			tracks[i] = track
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	return tracks, nil
}

// call fetches an endpoint and hands the response body to decode
func (c *Client) call(ctx context.Context, endpoint string, params url.Values, decode func([]byte) error) error {
	target, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}

	if c.key != "" {
		params.Set("key", c.key)
	}

	data, err := c.fetcher.Fetch(ctx, fetch.Request{
		URL:        target,
		Params:     params,
		Credential: c.key,
	})
	if err != nil {
		var refetchErr *fetch.RefetchFailedError
		if !c.allowStale || !errors.As(err, &refetchErr) {
			return fmt.Errorf("%s: %w", endpoint, err)
		}
		logrus.WithError(refetchErr.Err).Warnf("Using response to %s cached at %s", endpoint, refetchErr.StaleSince.Format(time.RFC3339))
		data = refetchErr.Stale
	}

	if err := checkAPIError(data); err != nil {
		return err
	}
	if err := decode(data); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}
