package cli

import (
	"time"

	"github.com/spf13/cobra"

	"ratio-band-alerts/internal/app"
)

var pruneKeepFor time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ratio samples and alerts older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Prune(cmd.Context(), app.PruneOptions{KeepFor: pruneKeepFor})
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneKeepFor, "keep", 30*24*time.Hour, "Retention window; anything older is deleted")
}
