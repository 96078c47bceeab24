package bandcamp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iTrooz/bandcache/internal/cache"
	"github.com/iTrooz/bandcache/internal/fetch"
)

// fakeAPI serves canned bodies per endpoint and records the queries it receives
type fakeAPI struct {
	*httptest.Server
	mu      sync.Mutex
	bodies  map[string]string
	status  atomic.Int32
	queries []url.Values
	hits    atomic.Int32
}

func newFakeAPI(t *testing.T, bodies map[string]string) *fakeAPI {
	t.Helper()
	api := &fakeAPI{bodies: bodies}
	api.status.Store(http.StatusOK)
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		api.mu.Lock()
		api.queries = append(api.queries, r.URL.Query())
		body, ok := api.bodies[r.URL.Path]
		api.mu.Unlock()

		if status := int(api.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *fakeAPI) lastQuery() url.Values {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queries[len(a.queries)-1]
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	disk, err := cache.NewDisk(t.TempDir())
	require.NoError(t, err)

	opts = append([]Option{
		WithBaseURL(baseURL + "/api/"),
		WithCache(cache.Use(disk)),
		WithDoer(http.DefaultClient),
	}, opts...)
	client, err := New("devkey", opts...)
	require.NoError(t, err)
	return client
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestGetBand(t *testing.T) {
	api := newFakeAPI(t, map[string]string{
		"/api/band/1/info": `{"band_id":42,"name":"Amanda Palmer","subdomain":"amandapalmer","url":"http://amandapalmer.bandcamp.com"}`,
	})
	client := newTestClient(t, api.URL)

	band, err := client.GetBand(context.Background(), BandQuery{ID: 42})
	require.NoError(t, err)
	assert.Equal(t, &Band{
		ID:        42,
		Name:      "Amanda Palmer",
		Subdomain: "amandapalmer",
		URL:       "http://amandapalmer.bandcamp.com",
	}, band)

	query := api.lastQuery()
	assert.Equal(t, "42", query.Get("band_id"))
	assert.Equal(t, "devkey", query.Get("key"))
}

func TestBandQueryPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		query     BandQuery
		wantParam string
		wantValue string
	}{
		{"id wins", BandQuery{ID: 7, Subdomain: "sub", URL: "http://x"}, "band_id", "7"},
		{"subdomain over url", BandQuery{Subdomain: "sub", URL: "http://x"}, "band_url", "sub"},
		{"url alone", BandQuery{URL: "http://x"}, "band_url", "http://x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := tt.query.params()
			require.NoError(t, err)
			assert.Len(t, params, 1)
			assert.Equal(t, tt.wantValue, params.Get(tt.wantParam))
		})
	}

	_, err := BandQuery{}.params()
	assert.ErrorIs(t, err, ErrMissingBandQuery)
}

func TestGetBandRequiresQuery(t *testing.T) {
	api := newFakeAPI(t, nil)
	client := newTestClient(t, api.URL)

	_, err := client.GetBand(context.Background(), BandQuery{})
	assert.ErrorIs(t, err, ErrMissingBandQuery)
	assert.EqualValues(t, 0, api.hits.Load())
}

func TestGetAlbum(t *testing.T) {
	api := newFakeAPI(t, map[string]string{
		"/api/album/1/info": `{
			"album_id": 2587417518,
			"band_id": 3463798201,
			"title": "Who Killed Amanda Palmer",
			"release_date": 1221523200,
			"downloadable": 2,
			"url": "http://amandapalmer.bandcamp.com/album/who-killed-amanda-palmer",
			"large_art_url": "http://f0.bcbits.com/z/large.jpg",
			"tracks": [
				{"track_id": 1, "number": 1, "title": "Astronaut", "duration": 277.5},
				{"track_id": 2, "number": 2, "title": "Runs in the Family", "duration": 190}
			]
		}`,
	})
	client := newTestClient(t, api.URL)

	album, err := client.GetAlbum(context.Background(), 2587417518)
	require.NoError(t, err)
	assert.Equal(t, int64(2587417518), album.ID)
	assert.Equal(t, int64(3463798201), album.BandID)
	assert.Equal(t, "Who Killed Amanda Palmer", album.Title)
	assert.Equal(t, int64(1221523200), album.ReleaseDate)
	assert.Equal(t, 2, album.Downloadable)
	assert.Equal(t, "http://f0.bcbits.com/z/large.jpg", album.LargeArtURL)
	require.Len(t, album.Tracks, 2)
	assert.Equal(t, "Astronaut", album.Tracks[0].Title)
	assert.InDelta(t, 277.5, album.Tracks[0].Duration, 0.001)

	assert.Equal(t, "2587417518", api.lastQuery().Get("album_id"))
}

func TestGetDiscography(t *testing.T) {
	api := newFakeAPI(t, map[string]string{
		"/api/band/1/discography": `{"discography": [
			{"album_id": 10, "band_id": 1, "title": "An album"},
			{"track_id": 20, "band_id": 1, "title": "A single"},
			{"album_id": 30, "track_id": 31, "title": "Both"}
		]}`,
	})
	client := newTestClient(t, api.URL)

	disco, err := client.GetDiscography(context.Background(), BandQuery{Subdomain: "sub"})
	require.NoError(t, err)

	require.Len(t, disco.Albums, 2)
	assert.Equal(t, int64(10), disco.Albums[0].ID)
	assert.Equal(t, int64(30), disco.Albums[1].ID)

	require.Len(t, disco.Tracks, 2)
	assert.Equal(t, int64(20), disco.Tracks[0].ID)
	assert.Equal(t, int64(31), disco.Tracks[1].ID)
	assert.Equal(t, int64(30), disco.Tracks[1].AlbumID)

	assert.Equal(t, "sub", api.lastQuery().Get("band_url"))
}

func TestAPIErrorBody(t *testing.T) {
	api := newFakeAPI(t, map[string]string{
		"/api/track/1/info": `{"error": true, "error_message": "bad track_id"}`,
	})
	client := newTestClient(t, api.URL)

	_, err := client.GetTrack(context.Background(), 1)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad track_id", apiErr.Message)
}

func TestCheckAPIError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"no error member", `{"name":"x"}`, ""},
		{"false", `{"error":false}`, ""},
		{"null", `{"error":null}`, ""},
		{"not json", `<html>`, ""},
		{"message", `{"error":true,"error_message":"boom"}`, "boom"},
		{"string error", `{"error":"denied"}`, "denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkAPIError([]byte(tt.body))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantErr, apiErr.Message)
		})
	}
}

func TestResponsesAreCached(t *testing.T) {
	api := newFakeAPI(t, map[string]string{
		"/api/track/1/info": `{"track_id": 5, "title": "Cached"}`,
	})
	client := newTestClient(t, api.URL)

	for i := 0; i < 3; i++ {
		track, err := client.GetTrack(context.Background(), 5)
		require.NoError(t, err)
		assert.Equal(t, "Cached", track.Title)
	}
	assert.EqualValues(t, 1, api.hits.Load())

	client.SetCacheTTL(0)
	_, err := client.GetTrack(context.Background(), 5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, api.hits.Load(), "a zero TTL always refetches")
}

func TestCredentialsSeparateCacheEntries(t *testing.T) {
	api := newFakeAPI(t, map[string]string{
		"/api/track/1/info": `{"track_id": 5}`,
	})
	client := newTestClient(t, api.URL)

	_, err := client.GetTrack(context.Background(), 5)
	require.NoError(t, err)

	client.SetCredentials("otherkey")
	_, err = client.GetTrack(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "otherkey", api.lastQuery().Get("key"))
	assert.EqualValues(t, 2, api.hits.Load())

	client.ClearCredentials()
	_, err = client.GetTrack(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, api.lastQuery().Has("key"))
}

func TestDisabledCache(t *testing.T) {
	api := newFakeAPI(t, map[string]string{
		"/api/track/1/info": `{"track_id": 5}`,
	})
	client, err := New("devkey",
		WithBaseURL(api.URL+"/api/"),
		WithCache(cache.Disabled()),
		WithDoer(http.DefaultClient),
	)
	require.NoError(t, err)
	assert.Nil(t, client.Cache())

	for i := 0; i < 2; i++ {
		_, err := client.GetTrack(context.Background(), 5)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, api.hits.Load())
}

func TestGetTracksKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("track_id")
		// Later ids answer first
		if id == "1" {
			time.Sleep(20 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`{"track_id":` + id + `,"title":"t` + id + `"}`))
	}))
	defer srv.Close()
	client := newTestClient(t, srv.URL, WithConcurrency(3))

	tracks, err := client.GetTracks(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, tracks, 3)
	for i, track := range tracks {
		assert.Equal(t, int64(i+1), track.ID)
	}
}

func TestGetTracksFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("track_id") == "2" {
			_, _ = w.Write([]byte(`{"error":true,"error_message":"no such track"}`))
			return
		}
		_, _ = w.Write([]byte(`{"track_id":1}`))
	}))
	defer srv.Close()
	client := newTestClient(t, srv.URL)

	tracks, err := client.GetTracks(context.Background(), []int64{1, 2})
	assert.Nil(t, tracks)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "no such track", apiErr.Message)
}

func TestStaleOnError(t *testing.T) {
	api := newFakeAPI(t, map[string]string{
		"/api/track/1/info": `{"track_id": 5, "title": "Old"}`,
	})

	for _, allow := range []bool{false, true} {
		disk, err := cache.NewDisk(t.TempDir())
		require.NoError(t, err)
		api.status.Store(http.StatusOK)

		client, err := New("devkey",
			WithBaseURL(api.URL+"/api/"),
			WithCache(cache.Use(disk)),
			WithDoer(http.DefaultClient),
			WithStaleOnError(allow),
		)
		require.NoError(t, err)

		_, err = client.GetTrack(context.Background(), 5)
		require.NoError(t, err)

		// Expire the entry, then break the upstream
		client.SetCacheTTL(time.Nanosecond)
		time.Sleep(time.Millisecond)
		api.status.Store(http.StatusServiceUnavailable)

		track, err := client.GetTrack(context.Background(), 5)
		if !allow {
			assert.ErrorIs(t, err, fetch.ErrRefetchFailed)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, "Old", track.Title)
	}
}
