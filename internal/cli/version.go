package cli

import (
	"fmt"

	"github.com/fmueller/dictado/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "dictado v%s\n", info.Version)
			if info.Commit != "unknown" {
				fmt.Fprintf(cmd.OutOrStdout(), "commit %s, built %s\n", info.Commit, info.Date)
			}
			return nil
		},
	}
}
