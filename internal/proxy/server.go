// Package proxy is a caching HTTP(S) forward proxy. Responses selected by
// the configured rules are stored in a DiskCache and replayed while fresh.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/bandcache/internal/cache"
	"github.com/iTrooz/bandcache/internal/cache/httpcache"
	"github.com/iTrooz/bandcache/internal/config"
)

const (
	headerCache     = "X-Cache"
	headerRequestID = "X-Request-ID"
)

// Server represents the caching proxy server
type Server struct {
	config *config.Config
	proxy  *goproxy.ProxyHttpServer
	cache  *httpcache.HTTPCache
	rules  []Rule
}

// requestState follows a request from OnRequest to OnResponse
type requestState struct {
	id       string
	cacheKey string
	// Set when the response was served from the cache
	hit bool
	log *logrus.Entry
}

// New creates a new proxy server
func New(cfg *config.Config) (*Server, error) {
	cacheTTL, err := cfg.GetCacheTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid cache TTL: %w", err)
	}

	s := &Server{
		config: cfg,
		proxy:  goproxy.NewProxyHttpServer(),
	}
	// Without a cache every request is passed through untouched
	if cfg.Cache.Enabled {
		store, err := cache.NewDisk(cfg.Cache.Folder)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		s.cache = httpcache.New(store, cacheTTL)
	}
	for _, rule := range cfg.Rules.Rules {
		s.rules = append(s.rules, &ConfigRule{CacheRule: rule})
	}

	s.proxy.Logger = logrus.StandardLogger()
	s.proxy.Verbose = logrus.IsLevelEnabled(logrus.TraceLevel)

	if cfg.Server.HTTPS.Enabled {
		if err := s.setupHTTPSProxyHandler(); err != nil {
			return nil, err
		}
	}

	s.proxy.OnRequest().DoFunc(s.onRequest)
	s.proxy.OnResponse().DoFunc(s.onResponse)

	return s, nil
}

// GetProxy returns the underlying proxy handler
func (s *Server) GetProxy() *goproxy.ProxyHttpServer {
	return s.proxy
}

// Start serves the proxy until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.proxy,
		ReadHeaderTimeout: 30 * time.Second,
	}

	logrus.Infof("Starting caching proxy on %s", addr)
	if s.cache != nil {
		logrus.Infof("Cache directory: %s", s.cacheRoot())
		logrus.Infof("Cache TTL: %s", s.config.Cache.TTL)
	} else {
		logrus.Info("Cache disabled, forwarding every request")
	}
	logrus.Infof("Rules mode: %s", s.config.Rules.Mode)

	errCh := make(chan error, 2)
	if s.config.Server.HTTPS.Enabled && s.config.Server.HTTPS.TransparentAddr != "" {
		go func() {
			errCh <- s.StartTransparentHTTPS(ctx, s.config.Server.HTTPS.TransparentAddr)
		}()
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		_ = srv.Close()
		return err
	case <-ctx.Done():
	}

	logrus.Info("Shutting down proxy")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) cacheRoot() string {
	if s.config.Cache.Folder == "" {
		return cache.DefaultRoot()
	}
	return s.config.Cache.Folder
}

func (s *Server) onRequest(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	state := &requestState{id: uuid.NewString()}
	state.log = logrus.WithFields(logrus.Fields{
		"request_id": state.id,
		"method":     req.Method,
		"url":        req.URL.String(),
	})
	ctx.UserData = state
	if s.cache == nil {
		return req, nil
	}

	key, err := s.cache.GenerateKey(req)
	if err != nil {
		state.log.Errorf("Failed to generate cache key: %v", err)
		return req, nil
	}
	state.cacheKey = key

	if resp := s.getCachedResponse(req, state); resp != nil {
		state.hit = true
		state.log.Infof("Serving from cache")
		return req, resp
	}

	return req, nil
}

func (s *Server) onResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	state, _ := ctx.UserData.(*requestState)
	if resp == nil {
		if state != nil && ctx.Error != nil {
			state.log.Errorf("Upstream request failed: %v", ctx.Error)
		}
		return resp
	}
	if state == nil {
		return resp
	}

	resp.Header.Set(headerRequestID, state.id)
	if state.hit {
		return resp
	}

	if s.cache != nil && state.cacheKey != "" && s.shouldBeCached(ctx.Req, resp) {
		s.cacheResponse(state, resp)
	}
	resp.Header.Set(headerCache, "MISS")
	state.log.Infof("Forwarded request -> %d", resp.StatusCode)

	return resp
}
