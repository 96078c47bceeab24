package proxy

import (
	"net/http"
	"strings"

	"github.com/iTrooz/bandcache/internal/config"
)

// Rule interface for matching requests against caching rules
type Rule interface {
	// Match reports whether the rule applies. resp is nil before the
	// upstream answered, in which case status conditions are ignored.
	Match(requ *http.Request, resp *http.Response) bool
}

// ConfigRule implements Rule interface for config-based rules
type ConfigRule struct {
	config.CacheRule
}

// Match checks if a request matches this rule
func (r *ConfigRule) Match(requ *http.Request, resp *http.Response) bool {
	// Check if URL starts with base URI
	if !strings.HasPrefix(getTargetURL(requ), r.BaseURI) {
		return false
	}

	// No methods means any method
	if len(r.Methods) > 0 {
		methodMatches := false
		for _, m := range r.Methods {
			if strings.EqualFold(m, requ.Method) {
				methodMatches = true
				break
			}
		}
		if !methodMatches {
			return false
		}
	}

	// Check if status code matches (if specified)
	if resp != nil && len(r.StatusCodes) > 0 {
		statusMatches := false
		for _, statusPattern := range r.StatusCodes {
			if config.MatchesStatusCode(resp.StatusCode, statusPattern) {
				statusMatches = true
				break
			}
		}
		if !statusMatches {
			return false
		}
	}

	return true
}
