package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cajadev/caja/pkg/metrics"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync engine continuously until interrupted",
	Long: `Runs the connectivity monitor and queue processor in the foreground:
revalidation on TTL expiry, drains on reconnect and on the safety-net timer,
and an optional Prometheus /metrics endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if addr := e.Cfg.MetricsAddr; addr != "" {
			go func() {
				if err := metrics.Serve(addr); err != nil {
					slog.Error("metrics listener", "err", err)
				}
			}()
			slog.Info("metrics listening", "addr", addr)
		}

		e.StartBackground(ctx)
		e.Processor.Kick()
		fmt.Println("watching — press Ctrl-C to stop")
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
