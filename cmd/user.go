package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cajadev/caja/internal/models"
)

var userCmd = &cobra.Command{
	Use:     "user",
	Aliases: []string{"users"},
	Short:   "Manage operator accounts",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users from the local snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		for _, u := range e.Users.Read() {
			fmt.Printf("%-22s %-24s %s\n", u.ID, u.Name, u.Role)
		}
		return nil
	},
}

var userRole string

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		u := models.User{
			ID:   "user-" + uuid.NewString()[:8],
			Name: args[0],
			Role: userRole,
		}
		if err := e.Users.Add(u); err != nil {
			return err
		}
		drainAfterWrite(ctx, e)
		fmt.Printf("✓ added %s (%s)\n", u.Name, u.ID)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userRole, "role", "cashier", "user role")
	userCmd.AddCommand(userListCmd, userAddCmd)
	rootCmd.AddCommand(userCmd)
}
