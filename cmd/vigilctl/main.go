// vigilctl is the operational companion to the server: it runs maintenance
// tasks, today the show-cause deadline sweep, against the same database and
// configuration.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/platform/config"
	"vigil/internal/platform/logger"
	"vigil/internal/platform/postgres"
	"vigil/internal/workflow/store"
	"vigil/internal/workflow/sweeper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vigilctl",
		Short:         "Operational tasks for the audit workflow service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSweepCmd())
	return root
}

func newSweepCmd() *cobra.Command {
	var (
		interval time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Auto-accept observations whose response deadline has lapsed",
		Long: `Runs the deadline sweep: show-cause notices past their response due
date are scanned and still-pending observations are flipped to AUTO_ACCEPTED.
Runs once by default; with --interval it keeps sweeping until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel, cfg.LogJSON)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := postgres.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			sw := sweeper.New(store.NewPostgres(db), nil, log, limit)
			if interval > 0 {
				log.Info("sweeping on interval", "interval", interval.String())
				sw.RunEvery(ctx, interval)
				return nil
			}

			res, err := sw.Run(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			fmt.Printf("notices scanned: %d\nauto-accepted:   %d\nskipped:         %d\n",
				res.NoticesScanned, res.AutoAccepted, res.Skipped)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "keep sweeping on this interval instead of running once")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum notices scanned per pass")
	return cmd
}
