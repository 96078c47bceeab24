package cmd

import (
	"github.com/spf13/cobra"
)

func newTrackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "track <track-id>...",
		Short: "Show one or more tracks",
		Long:  "Show tracks by id. Several ids are fetched in parallel and printed in the given order.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			tracks, err := client.GetTracks(cmd.Context(), ids)
			if err != nil {
				return err
			}
			if len(tracks) == 1 {
				return printJSON(cmd, tracks[0])
			}
			return printJSON(cmd, tracks)
		},
	}
}
