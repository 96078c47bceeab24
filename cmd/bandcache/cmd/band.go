package cmd

import (
	"github.com/spf13/cobra"

	"github.com/iTrooz/bandcache/internal/bandcamp"
)

func addBandFlags(cmd *cobra.Command, q *bandcamp.BandQuery) {
	cmd.Flags().Int64Var(&q.ID, "id", 0, "band id")
	cmd.Flags().StringVar(&q.Subdomain, "subdomain", "", "band subdomain, e.g. amandapalmer")
	cmd.Flags().StringVar(&q.URL, "url", "", "band URL")
	cmd.MarkFlagsOneRequired("id", "subdomain", "url")
}

func newBandCmd(a *app) *cobra.Command {
	var q bandcamp.BandQuery
	cmd := &cobra.Command{
		Use:   "band",
		Short: "Show band information",
		Long:  "Look up a band by id, subdomain or URL. The id wins when several are given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			band, err := client.GetBand(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd, band)
		},
	}
	addBandFlags(cmd, &q)
	return cmd
}

func newDiscographyCmd(a *app) *cobra.Command {
	var q bandcamp.BandQuery
	cmd := &cobra.Command{
		Use:   "discography",
		Short: "List the albums and tracks of a band",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			disco, err := client.GetDiscography(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd, disco)
		},
	}
	addBandFlags(cmd, &q)
	return cmd
}
