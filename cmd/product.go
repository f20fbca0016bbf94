package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cajadev/caja/internal/models"
)

var productCmd = &cobra.Command{
	Use:     "product",
	Aliases: []string{"products"},
	Short:   "Manage the product catalog",
}

var productListCategory string

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products from the local snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var products []models.Product
		if productListCategory != "" {
			// Filtered reads go through the category index.
			raws, err := e.Store.ProductsByCategory(productListCategory)
			if err != nil {
				return err
			}
			for _, raw := range raws {
				var p models.Product
				if json.Unmarshal(raw, &p) == nil {
					products = append(products, p)
				}
			}
		} else {
			products = e.Products.Read()
		}

		for _, p := range products {
			fmt.Printf("%-22s %-28s %8.2f  stock %d\n", p.ID, p.Name, p.Price, p.Stock)
		}
		fmt.Printf("%d product(s) — %s\n", len(products), e.SyncStatus())
		return nil
	},
}

var (
	addCategory string
	addPrice    float64
	addStock    int
)

var productAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		p := models.Product{
			ID:       "prod-" + uuid.NewString()[:8],
			Name:     args[0],
			Category: addCategory,
			Price:    addPrice,
			Stock:    addStock,
		}
		if err := e.Products.Add(p); err != nil {
			return err
		}
		drainAfterWrite(ctx, e)
		fmt.Printf("✓ added %s (%s)\n", p.Name, p.ID)
		return nil
	},
}

var productStockCmd = &cobra.Command{
	Use:   "set-stock <id> <stock>",
	Short: "Set a product's absolute stock level",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var stock int
		if _, err := fmt.Sscanf(args[1], "%d", &stock); err != nil {
			return fmt.Errorf("invalid stock %q", args[1])
		}
		if err := e.Products.SetStock(args[0], stock); err != nil {
			return err
		}
		drainAfterWrite(ctx, e)
		fmt.Printf("✓ %s stock set to %d\n", args[0], stock)
		return nil
	},
}

var productDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Products.Write(models.ActionDelete, models.Product{ID: args[0]}); err != nil {
			return err
		}
		drainAfterWrite(ctx, e)
		fmt.Printf("✓ deleted %s\n", args[0])
		return nil
	},
}

func init() {
	productListCmd.Flags().StringVar(&productListCategory, "category", "", "filter by category")
	productAddCmd.Flags().StringVar(&addCategory, "category", "", "product category")
	productAddCmd.Flags().Float64Var(&addPrice, "price", 0, "unit price")
	productAddCmd.Flags().IntVar(&addStock, "stock", 0, "initial stock")

	productCmd.AddCommand(productListCmd, productAddCmd, productStockCmd, productDeleteCmd)
	rootCmd.AddCommand(productCmd)
}
