package httpcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iTrooz/bandcache/internal/cache"
	"github.com/sirupsen/logrus"
)

// Headers that select a different representation of the same URL
var keyHeaders = []string{"Accept", "Accept-Encoding", "Accept-Language", "Content-Type"}

type HTTPCache struct {
	cache cache.GenericCache
	ttl   time.Duration
	now   func() time.Time
}

// Generates a unique key to store a value, based on URL, method, selected headers, and body
func (d *HTTPCache) GenerateKey(request *http.Request) (string, error) {
	// Default ports do not change the target
	host := strings.TrimSuffix(strings.TrimSuffix(request.URL.Host, ":80"), ":443")
	if host == "" {
		host = request.Host
	}

	path := request.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(request.Method)
	b.WriteString(" ")
	b.WriteString(host)
	b.WriteString(path)
	if request.URL.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(request.URL.RawQuery)
	}

	// Hash selected headers
	headersStr := ""
	for _, k := range keyHeaders {
		if v, ok := request.Header[k]; ok {
			headersStr += k + ":" + strings.Join(v, ",") + "\n"
		}
	}
	if headersStr != "" {
		b.WriteString(" h:")
		b.WriteString(shortHash([]byte(headersStr)))
	}

	// Hash body (read and restore)
	if request.Body != nil && request.Body != http.NoBody {
		bodyBytes, err := io.ReadAll(request.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read request body: %w", err)
		}
		if err := request.Body.Close(); err != nil {
			return "", fmt.Errorf("failed to close request body: %w", err)
		}
		request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		if len(bodyBytes) > 0 {
			b.WriteString(" b:")
			b.WriteString(shortHash(bodyBytes))
		}
	}

	return b.String(), nil
}

func shortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

func (d *HTTPCache) SetReq(request *http.Request, resp *http.Response) error {
	cacheKey, err := d.GenerateKey(request)
	if err != nil {
		return fmt.Errorf("failed to generate cache key: %w", err)
	}

	return d.SetKey(cacheKey, resp)
}

// SetKey serializes resp under requestKey. The response body is consumed
// and replaced with an in-memory copy so the caller can still send it.
func (d *HTTPCache) SetKey(requestKey string, resp *http.Response) error {
	data, err := Serialize(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := d.cache.Set(requestKey, data); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

func (d *HTTPCache) GetReq(req *http.Request) (*http.Response, error) {
	requestKey, err := d.GenerateKey(req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cache key: %w", err)
	}

	resp, err := d.GetKey(requestKey)
	if err != nil {
		return nil, err
	}
	// Handle no cache hit
	if resp == nil {
		return nil, nil
	}

	// Associate the original request with the response
	resp.Request = req
	return resp, nil
}

// GetKey returns the cached response for requestKey.
// returns nil, nil on a miss or when the entry is older than the TTL
func (d *HTTPCache) GetKey(requestKey string) (*http.Response, error) {
	modTime, found, err := d.cache.LastModified(requestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to stat cache: %w", err)
	}
	if !found {
		return nil, nil // Cache miss
	}
	if !cache.IsFresh(modTime, d.ttl, d.now()) {
		logrus.Debugf("Cache entry for %s is stale (written %s)", requestKey, modTime.Format(time.RFC3339))
		return nil, nil
	}

	data, found, err := d.cache.Get(requestKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	if !found {
		return nil, nil // Removed since the stat
	}

	resp, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}
	return resp, nil
}
