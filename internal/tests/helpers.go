// Package tests holds end-to-end tests of the caching proxy.
package tests

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/iTrooz/bandcache/internal/config"
	"github.com/iTrooz/bandcache/internal/proxy"
)

// upstream counts the requests it answers
type upstream struct {
	*httptest.Server
	hits atomic.Int32
}

// fixture_upstream creates a test upstream server. /fail answers 500.
func fixture_upstream() *upstream {
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		n := u.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if requ.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": true, "error_message": "upstream failure"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "Hello from upstream", "path": "` + requ.URL.Path + `", "hit": ` + strconv.Itoa(int(n)) + `}`))
	}))
	return u
}

// fixture_config creates a test config with optional rules
func fixture_config(tempDir string, rules *config.RulesConfig) *config.Config {
	cfg := config.Default()
	cfg.Cache.TTL = "1h"
	cfg.Cache.Folder = tempDir

	if rules != nil {
		cfg.Rules = *rules
	}

	return cfg
}

// fixture_proxy creates a proxy server with the given config and returns the server, test server, and HTTP client
func fixture_proxy(cfg *config.Config) (*proxy.Server, *httptest.Server, *http.Client, error) {
	proxyServer, err := proxy.New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	// Create test proxy HTTP server using goproxy
	proxyTestServer := httptest.NewServer(proxyServer.GetProxy())

	// Create HTTP client that uses our proxy
	proxyURL, _ := url.Parse(proxyTestServer.URL)
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
		Timeout: 10 * time.Second,
	}

	return proxyServer, proxyTestServer, client, nil
}
