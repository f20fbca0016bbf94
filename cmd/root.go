package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cajadev/caja/internal/engine"
	"github.com/cajadev/caja/internal/logging"
)

var (
	version  string
	baseDir  string
	logLevel string
)

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "caja",
	Short: "Offline-first point-of-sale and inventory manager",
	Long: `caja - a retail point-of-sale and inventory CLI that keeps working offline.

Reads are served instantly from a local cache, writes apply immediately and
queue durably, and the queue drains against the remote store whenever
connectivity allows.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		logging.Setup(logLevel, os.Getenv("CAJA_LOG_FORMAT"))
	})
	addGlobalFlags(rootCmd.PersistentFlags())
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&baseDir, "dir", "C", ".", "working directory holding the .caja store")
	fs.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

// openEngine builds the engine for the configured working directory.
func openEngine(ctx context.Context) (*engine.Engine, error) {
	e, err := engine.Open(ctx, baseDir)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return e, nil
}

// drainAfterWrite attempts an inline drain after a mutating command, the
// one-shot equivalent of the write trigger. Offline it is a silent no-op.
func drainAfterWrite(ctx context.Context, e *engine.Engine) {
	res := e.Drain(ctx)
	if res.Dropped > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d mutation(s) dropped after exhausted retries\n", res.Dropped)
	}
}
