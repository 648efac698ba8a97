package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sol-fee-audit/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		name := "feeaudit"
		if appHandle != nil && appHandle.Config.App.Name != "" {
			name = appHandle.Config.App.Name
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, version.String())
	},
}
