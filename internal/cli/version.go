package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// the app config is not needed to print the version
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "policyctl %s\n", cliVersion)
			fmt.Fprintf(cmd.OutOrStdout(), "  build date: %s\n", cliBuildDate)
			fmt.Fprintf(cmd.OutOrStdout(), "  git commit: %s\n", cliGitCommit)
		},
	}
}
