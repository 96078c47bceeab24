package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iTrooz/bandcache/internal/proxy"
)

func newProxyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run a caching HTTP proxy",
		Long:  "Run a forward proxy that stores upstream responses in the cache directory according to the configured rules.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := proxy.New(a.cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Start(ctx)
		},
	}

	cmd.Flags().Int("port", 0, "listen port (default 8080)")
	_ = a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))

	return cmd
}
