package main

import (
	"log/slog"

	"portalgrades/internal/schedule"
	itelemetry "portalgrades/internal/telemetry"
	"portalgrades/lib/timezone"

	"github.com/spf13/cobra"
)

var (
	scheduleSpec      string
	scheduleFranchise franchiseFlag
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Keeps running, scraping and storing grades on a cron schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		config, err := loadConfig(configName)
		if err != nil {
			return err
		}
		next, err := schedule.Next(scheduleSpec, timezone.Now())
		if err != nil {
			return err
		}
		shutdown, err := setupTelemetry(ctx)
		if err != nil {
			return err
		}
		defer shutdown()

		s := schedule.New(itelemetry.SlogAPI{})
		err = s.Add(scheduleSpec, func() {
			err := scrape(ctx, config, scrapeOptions{
				franchiseID: scheduleFranchise.id,
				insert:      true,
			})
			if err != nil {
				slog.Error("scheduled run failed", "err", err)
			}
			next, _ := schedule.Next(scheduleSpec, timezone.Now())
			slog.Info("next run", "at", next)
		})
		if err != nil {
			return err
		}

		slog.Info("waiting for the first run", "spec", scheduleSpec, "at", next)
		s.Run(ctx)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "spec", "0 6 * * 1", "cron spec in the districts' local time")
	scheduleCmd.Flags().Var(&scheduleFranchise, "franchise", "only scrape students of this franchise")
}
