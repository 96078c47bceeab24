package proxy

import (
	"net/http"
)

// getCachedResponse returns a cached HTTP response if available
func (s *Server) getCachedResponse(requ *http.Request, state *requestState) *http.Response {
	resp, err := s.cache.GetKey(state.cacheKey)
	// If cache lookup fails, only log as error if the request should be cached
	if err != nil {
		if s.shouldBeCached(requ, nil) {
			state.log.Errorf("Failed to get cached data: %v", err)
		} else {
			state.log.Debugf("Cache not readable (caching disabled by rules): %v", err)
		}
		return nil
	}
	if resp == nil {
		state.log.Debugf("No cached data found")
		return nil
	}

	resp.Request = requ
	resp.Header.Set(headerCache, "HIT")
	resp.Header.Set(headerRequestID, state.id)

	return resp
}

// shouldBeCached determines if a response should be cached based on rules.
// resp may be nil when only the request is known.
func (s *Server) shouldBeCached(requ *http.Request, resp *http.Response) bool {
	matched := false
	for _, rule := range s.rules {
		if rule.Match(requ, resp) {
			matched = true
			break
		}
	}

	if s.config.Rules.Mode == "whitelist" {
		return matched
	}
	return !matched
}

// cacheResponse stores a response in the cache
func (s *Server) cacheResponse(state *requestState, resp *http.Response) {
	if err := s.cache.SetKey(state.cacheKey, resp); err != nil {
		state.log.Errorf("Failed to cache response: %v", err)
		return
	}
	state.log.Debugf("Cached response under %q", state.cacheKey)
}
