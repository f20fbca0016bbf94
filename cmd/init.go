package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cajadev/caja/internal/config"
	"github.com/cajadev/caja/internal/store"
)

var (
	initServerURL string
	initAPIKey    string
	initPgDSN     string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the local store and write the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(baseDir)
		if err != nil {
			return fmt.Errorf("create local store: %w", err)
		}
		st.Close()

		cfg, err := config.Load(baseDir)
		if err != nil {
			return err
		}
		if initServerURL != "" {
			cfg.ServerURL = initServerURL
		}
		if initAPIKey != "" {
			cfg.APIKey = initAPIKey
		}
		if initPgDSN != "" {
			cfg.PostgresDSN = initPgDSN
		}
		if err := config.Save(baseDir, cfg); err != nil {
			return err
		}

		fmt.Printf("✓ initialized .caja (device %s)\n", cfg.DeviceID)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initServerURL, "server", "", "remote REST endpoint base URL")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "remote API key")
	initCmd.Flags().StringVar(&initPgDSN, "postgres", "", "direct Postgres DSN (overrides --server)")
	rootCmd.AddCommand(initCmd)
}
