package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cajadev/caja/internal/models"
	"github.com/cajadev/caja/internal/repo"
)

var saleCmd = &cobra.Command{
	Use:     "sale",
	Aliases: []string{"sales"},
	Short:   "Record and list sales",
}

var saleUserID string

var saleAddCmd = &cobra.Command{
	Use:   "add <productID:qty> [productID:qty ...]",
	Short: "Record a sale with one or more line items",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		sale := models.Sale{UserID: saleUserID}
		for _, arg := range args {
			id, qtyStr, ok := strings.Cut(arg, ":")
			if !ok {
				return fmt.Errorf("invalid line item %q, want productID:qty", arg)
			}
			qty, err := strconv.Atoi(qtyStr)
			if err != nil {
				return fmt.Errorf("invalid quantity in %q", arg)
			}
			sale.Items = append(sale.Items, models.SaleItem{ProductID: id, Quantity: qty})
		}

		if err := e.Sales.Record(sale); err != nil {
			var saleErr *repo.SaleError
			if errors.As(err, &saleErr) {
				fmt.Println("sale rejected:")
				for _, line := range saleErr.Lines {
					fmt.Printf("  %s\n", line)
				}
			}
			return err
		}
		drainAfterWrite(ctx, e)
		fmt.Printf("✓ sale recorded (%d line items) — %s\n", len(sale.Items), e.SyncStatus())
		return nil
	},
}

var saleListToday bool

var saleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sales from the local snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var sales []models.Sale
		if saleListToday {
			// Served by the sold_at index.
			midnight := time.Now().Truncate(24 * time.Hour)
			raws, err := e.Store.SalesSince(midnight)
			if err != nil {
				return err
			}
			for _, raw := range raws {
				var s models.Sale
				if json.Unmarshal(raw, &s) == nil {
					sales = append(sales, s)
				}
			}
		} else {
			sales = e.Sales.Read()
		}

		for _, s := range sales {
			fmt.Printf("%-38s %s  %3d item(s)  $%.2f\n",
				s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"), len(s.Items), s.Total)
		}
		fmt.Printf("%d sale(s) — %s\n", len(sales), e.SyncStatus())
		return nil
	},
}

func init() {
	saleAddCmd.Flags().StringVar(&saleUserID, "user", "", "operator user id")
	saleListCmd.Flags().BoolVar(&saleListToday, "today", false, "only sales since midnight")

	saleCmd.AddCommand(saleAddCmd, saleListCmd)
	rootCmd.AddCommand(saleCmd)
}
