package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/iTrooz/bandcache/internal/cache"
)

func newCacheCmd(a *app) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and edit the response cache",
		Long:  "Read and write cache entries directly. Keys are arbitrary strings, e.g. the URL of an API call.",
	}

	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print the value stored under a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				disk, err := a.disk()
				if err != nil {
					return err
				}
				value, found, err := disk.Get(args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("no entry for key %q", args[0])
				}
				_, err = cmd.OutOrStdout().Write(value)
				return err
			},
		},
		&cobra.Command{
			Use:   "set <key> [value]",
			Short: "Store a value under a key, read from stdin when omitted",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				disk, err := a.disk()
				if err != nil {
					return err
				}
				var value []byte
				if len(args) == 2 {
					value = []byte(args[1])
				} else if value, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("failed to read value: %w", err)
				}
				return disk.Set(args[0], value)
			},
		},
		&cobra.Command{
			Use:     "rm <key>",
			Aliases: []string{"remove"},
			Short:   "Remove the entry of a key",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				disk, err := a.disk()
				if err != nil {
					return err
				}
				return disk.Remove(args[0])
			},
		},
		&cobra.Command{
			Use:   "stat <key>",
			Short: "Show when a key was written and whether it is still fresh",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				disk, err := a.disk()
				if err != nil {
					return err
				}
				ttl, err := a.cfg.GetCacheTTL()
				if err != nil {
					return err
				}
				return printJSON(cmd, statEntry(disk, args[0], ttl, time.Now()))
			},
		},
		&cobra.Command{
			Use:   "path <key>",
			Short: "Print the file backing a key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				disk, err := a.disk()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), disk.Path(args[0]))
				return err
			},
		},
	)

	return cacheCmd
}

// disk opens the configured cache directory, even when caching is disabled
// for API calls
func (a *app) disk() (*cache.DiskCache, error) {
	return cache.NewDisk(a.cfg.Cache.Folder)
}

type entryStat struct {
	Key      string     `json:"key"`
	Path     string     `json:"path"`
	Exists   bool       `json:"exists"`
	Modified *time.Time `json:"modified,omitempty"`
	Age      string     `json:"age,omitempty"`
	Fresh    bool       `json:"fresh"`
	Error    string     `json:"error,omitempty"`
}

func statEntry(disk *cache.DiskCache, key string, ttl time.Duration, now time.Time) entryStat {
	stat := entryStat{Key: key, Path: disk.Path(key)}

	modTime, found, err := disk.LastModified(key)
	if err != nil {
		stat.Error = err.Error()
		return stat
	}
	if !found {
		return stat
	}

	stat.Exists = true
	stat.Modified = &modTime
	stat.Age = now.Sub(modTime).Round(time.Millisecond).String()
	stat.Fresh = cache.IsFresh(modTime, ttl, now)
	return stat
}
