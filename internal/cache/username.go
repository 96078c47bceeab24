package cache

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

const (
	defaultDirPrefix = "bandcache.cache_"
	fallbackUsername = "nobody"
)

// currentUser looks the user up in the password database
var currentUser = user.Current

// DefaultRoot returns the per-user cache directory under the system temp dir.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), defaultDirPrefix+Username())
}

// Username finds the current user name from the environment, then the
// password database. It never fails: unresolvable names become "nobody".
func Username() string {
	for _, env := range []string{"USER", "LOGNAME", "USERNAME"} {
		if name := sanitizeUsername(os.Getenv(env)); name != "" {
			return name
		}
	}
	if u, err := currentUser(); err == nil {
		if name := sanitizeUsername(u.Username); name != "" {
			return name
		}
	}
	return fallbackUsername
}

// sanitizeUsername keeps the name usable as a single path segment,
// e.g. "DOMAIN\user" on Windows.
func sanitizeUsername(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}
