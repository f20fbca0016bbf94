package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cajadev/caja/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state, pending queue depth and last sync times",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		fmt.Printf("State:    %s\n", e.SyncStatus())
		fmt.Printf("Pending:  %d\n", e.PendingCount())
		if !e.Store.Available() {
			fmt.Println("Store:    unavailable (remote-only mode)")
		}

		printLastSync := func(name string, at *time.Time) {
			if at == nil {
				fmt.Printf("%-9s never synced\n", name+":")
				return
			}
			fmt.Printf("%-9s synced %s ago\n", name+":", time.Since(*at).Round(time.Second))
		}
		printLastSync("Products", e.Products.LastSyncAt())
		printLastSync("Sales", e.Sales.LastSyncAt())
		printLastSync("Users", e.Users.LastSyncAt())

		for _, t := range []models.EntityType{models.EntityProduct, models.EntitySale, models.EntityUser} {
			if n, err := e.Store.CountDirty(t); err == nil && n > 0 {
				fmt.Printf("Dirty:    %d %s record(s) need manual reconciliation\n", n, t)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
