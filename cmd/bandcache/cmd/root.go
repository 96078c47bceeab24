package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iTrooz/bandcache/internal/bandcamp"
	"github.com/iTrooz/bandcache/internal/cache"
	"github.com/iTrooz/bandcache/internal/config"
	"github.com/iTrooz/bandcache/internal/fetch"
	"github.com/iTrooz/bandcache/internal/logging"
)

// app holds state shared by all commands of one invocation
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:          "bandcache",
		Short:        "Bandcamp API client with a local response cache",
		Long:         "Query the Bandcamp API, inspect the on-disk response cache, or run a caching HTTP proxy.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/bandcache/config.yaml)")
	flags.String("key", "", "Bandcamp developer key")
	flags.String("base-url", "", "API base URL")
	flags.String("cache-dir", "", "cache directory (default: per-user temp directory)")
	flags.String("cache-ttl", "", "how long cached responses are reused, e.g. 60s")
	flags.Bool("no-cache", false, "disable the response cache")
	flags.Bool("allow-stale", false, "use expired cached responses when the API cannot be reached")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")

	bind := map[string]string{
		"config":       "config",
		"api.key":      "key",
		"api.base_url": "base-url",
		"cache.folder": "cache-dir",
		"cache.ttl":    "cache-ttl",
		"no_cache":     "no-cache",
		"allow_stale":  "allow-stale",
		"log.level":    "log-level",
		"log.format":   "log-format",
	}
	for key, flag := range bind {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		newBandCmd(a),
		newDiscographyCmd(a),
		newAlbumCmd(a),
		newTrackCmd(a),
		newCacheCmd(a),
		newProxyCmd(a),
	)

	return rootCmd
}

// setup loads the config file, applies flag and BANDCACHE_* environment
// overrides, then sets up logging.
func (a *app) setup() error {
	a.v.SetEnvPrefix("BANDCACHE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	cfg, err := a.loadFile()
	if err != nil {
		return err
	}

	overrides := []struct {
		key string
		dst *string
	}{
		{"api.key", &cfg.API.Key},
		{"api.base_url", &cfg.API.BaseURL},
		{"api.access_token", &cfg.API.AccessToken},
		{"cache.folder", &cfg.Cache.Folder},
		{"cache.ttl", &cfg.Cache.TTL},
		{"log.level", &cfg.Log.Level},
		{"log.format", &cfg.Log.Format},
	}
	for _, o := range overrides {
		if a.v.IsSet(o.key) {
			*o.dst = a.v.GetString(o.key)
		}
	}
	if a.v.GetBool("no_cache") {
		cfg.Cache.Enabled = false
	}
	if a.v.IsSet("server.port") {
		cfg.Server.Port = a.v.GetInt("server.port")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := logging.InitLogger(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	a.cfg = cfg
	return nil
}

// loadFile reads the explicit config file, or the default one when present
func (a *app) loadFile() (*config.Config, error) {
	path := a.v.GetString("config")
	if path == "" {
		path = filepath.Join(configDir(), "config.yaml")
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logrus.Debugf("Loaded config from %s", path)
	return cfg, nil
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bandcache")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "bandcache")
	}
	return ".bandcache"
}

// cacheChoice maps the cache section of the config to a cache.Choice
func (a *app) cacheChoice() (cache.Choice, error) {
	if !a.cfg.Cache.Enabled {
		return cache.Disabled(), nil
	}
	if a.cfg.Cache.Folder == "" {
		return cache.Default(), nil
	}

	disk, err := cache.NewDisk(a.cfg.Cache.Folder)
	if err != nil {
		return cache.Choice{}, err
	}
	return cache.Use(disk), nil
}

func (a *app) client() (*bandcamp.Client, error) {
	ttl, err := a.cfg.GetCacheTTL()
	if err != nil {
		return nil, err
	}
	timeout, err := a.cfg.GetTimeout()
	if err != nil {
		return nil, err
	}
	choice, err := a.cacheChoice()
	if err != nil {
		return nil, err
	}

	doer := fetch.NewHTTPClient(fetch.ClientOptions{
		UserAgent:   a.cfg.API.UserAgent,
		Timeout:     timeout,
		AccessToken: a.cfg.API.AccessToken,
	})

	return bandcamp.New(a.cfg.API.Key,
		bandcamp.WithBaseURL(a.cfg.API.BaseURL),
		bandcamp.WithCache(choice),
		bandcamp.WithCacheTTL(ttl),
		bandcamp.WithDoer(doer),
		bandcamp.WithStaleOnError(a.v.GetBool("allow_stale")),
	)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
