package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Force a full pull and drain the pending queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.ForceSync(ctx); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		fmt.Printf("✓ %s\n", e.SyncStatus())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
