package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newAlbumCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "album <album-id>",
		Short: "Show an album and its tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			album, err := client.GetAlbum(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, album)
		},
	}
}
