package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/veracity-social/veracity/internal/pipeline"
)

var (
	sweepServe  bool
	metricsAddr string
)

// sweepCmd re-runs stalled pipeline work: pending, failed, and stale
// in_progress content.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reprocess stalled pipeline content",
	Long: `Run the retry sweep over content the pipeline left behind: pending
items, failed items, and in_progress items whose run went stale.

By default the sweep runs once and exits. With --serve it stays up and
runs on the configured cron schedule, exposing Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		application, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = application.Close() }()

		sweeper := pipeline.NewSweeper(application.orch, cfg.Sweep, nil)

		if !sweepServe {
			return sweeper.Run(cmd.Context())
		}

		if err := sweeper.Start(cmd.Context()); err != nil {
			return err
		}
		defer sweeper.Stop()

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()

		fmt.Fprintf(os.Stderr, "sweep running on schedule %q, metrics on %s\n",
			cfg.Sweep.Schedule, metricsAddr)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		return nil
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepServe, "serve", false, "keep running on the cron schedule")
	sweepCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address")
	rootCmd.AddCommand(sweepCmd)
}
