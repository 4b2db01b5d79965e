package cli

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single monitor cycle and exit (for external schedulers)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CheckOnce(cmd.Context())
	},
}
