package httpcache

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/iTrooz/bandcache/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*HTTPCache, *cache.DiskCache) {
	t.Helper()
	disk, err := cache.NewDisk(t.TempDir())
	require.NoError(t, err)
	return New(disk, ttl), disk
}

func newResponse(body string) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestHTTPCacheGetAndSet(t *testing.T) {
	httpCache, _ := newTestCache(t, time.Hour)

	req, err := http.NewRequest("GET", "https://example.com/api/users", nil)
	require.NoError(t, err)

	testData := "test response data"
	resp := newResponse(testData)

	require.NoError(t, httpCache.SetReq(req, resp))

	// The caller can still read the body it just cached
	sent, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, testData, string(sent))

	cachedResp, err := httpCache.GetReq(req)
	require.NoError(t, err)
	require.NotNil(t, cachedResp, "Get() returned nil response, want cached response")
	assert.Same(t, req, cachedResp.Request)
	assert.Equal(t, http.StatusOK, cachedResp.StatusCode)
	assert.Equal(t, "application/json", cachedResp.Header.Get("Content-Type"))

	cachedData, err := io.ReadAll(cachedResp.Body)
	require.NoError(t, err)
	assert.Equal(t, testData, string(cachedData))
}

func TestHTTPCacheGetExpired(t *testing.T) {
	httpCache, _ := newTestCache(t, time.Hour)
	httpCache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	req, err := http.NewRequest("GET", "https://example.com/api/test", nil)
	require.NoError(t, err)
	require.NoError(t, httpCache.SetReq(req, newResponse("test data")))

	cachedResp, err := httpCache.GetReq(req)
	require.NoError(t, err)
	assert.Nil(t, cachedResp, "stale entries must not be served")
}

func TestHTTPCacheStaleEntryIsKept(t *testing.T) {
	httpCache, disk := newTestCache(t, time.Hour)
	httpCache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	require.NoError(t, httpCache.SetKey("key", newResponse("data")))

	resp, err := httpCache.GetKey("key")
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, found, err := disk.Get("key")
	require.NoError(t, err)
	assert.True(t, found, "staleness is advisory, the entry stays on disk")
}

func TestHTTPCacheMiss(t *testing.T) {
	httpCache, _ := newTestCache(t, time.Hour)

	req, err := http.NewRequest("GET", "https://example.com", nil)
	require.NoError(t, err)

	cachedResp, err := httpCache.GetReq(req)
	require.NoError(t, err)
	assert.Nil(t, cachedResp)
}

func TestGenerateKey(t *testing.T) {
	httpCache, _ := newTestCache(t, time.Hour)

	key := func(method, target, body string, headers map[string]string) string {
		var reqBody io.Reader
		if body != "" {
			reqBody = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, target, reqBody)
		require.NoError(t, err)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		got, err := httpCache.GenerateKey(req)
		require.NoError(t, err)
		return got
	}

	base := key("GET", "https://example.com/api/users", "", nil)
	assert.Equal(t, "GET example.com/api/users", base)

	assert.Equal(t, base, key("GET", "https://example.com:443/api/users", "", nil), "default port is ignored")
	assert.Equal(t, "POST example.com/", key("POST", "http://example.com", "", nil))
	assert.NotEqual(t, base, key("GET", "https://example.com/api/users?page=1", "", nil))
	assert.NotEqual(t, base, key("GET", "https://example.com/api/users", "", map[string]string{"Accept": "text/html"}))
	assert.Equal(t, base, key("GET", "https://example.com/api/users", "", map[string]string{"X-Trace": "1"}), "unrelated headers are ignored")
	assert.NotEqual(t, key("POST", "https://example.com/api", "a=1", nil), key("POST", "https://example.com/api", "a=2", nil))
}

func TestGenerateKeyRestoresBody(t *testing.T) {
	httpCache, _ := newTestCache(t, time.Hour)

	req, err := http.NewRequest("POST", "https://example.com/api", strings.NewReader("payload"))
	require.NoError(t, err)

	_, err = httpCache.GenerateKey(req)
	require.NoError(t, err)

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestDeserializeRejectsForeignData(t *testing.T) {
	_, err := Deserialize([]byte("plain"))
	assert.Error(t, err)

	_, err = Deserialize([]byte(PREFIX + "garbage"))
	assert.Error(t, err)
}
