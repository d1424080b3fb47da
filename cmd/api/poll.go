package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eris-support/support-desk/internal/worker"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run a single mail ingestion pass and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.wire(cmd.Context()); err != nil {
			return err
		}

		poller := worker.NewPoller(a.ingestion, a.cfg.Poller.Interval(), a.redis, a.metrics, a.logger)
		stats, err := poller.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "fetched=%d created=%d appended=%d dropped=%d duplicates=%d failed=%d\n",
			stats.Fetched, stats.Created, stats.Appended, stats.Dropped, stats.Duplicates, stats.Failed)
		return nil
	},
}
