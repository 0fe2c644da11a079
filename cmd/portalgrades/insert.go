package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"portalgrades/internal/results"
	"portalgrades/internal/store"
	"portalgrades/lib/timezone"

	"github.com/spf13/cobra"
)

var insertWeek string

var insertCmd = &cobra.Command{
	Use:   "insert <results.jsonl>",
	Short: "Stores the grades of a results file into their weekly bucket.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day := timezone.Now()
		if insertWeek != "" {
			parsed, err := time.ParseInLocation(time.DateOnly, insertWeek, timezone.Location)
			if err != nil {
				return fmt.Errorf("--week: %w", err)
			}
			day = parsed
		}

		config, err := loadConfig(configName)
		if err != nil {
			return err
		}
		db, err := store.Open(ctx, config.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		return insertFile(ctx, db, args[0], day)
	},
}

func init() {
	insertCmd.Flags().StringVar(&insertWeek, "week", "", "any day (YYYY-MM-DD) of the week to store into, defaults to this week")
}

func insertFile(ctx context.Context, db store.Store, path string, day time.Time) error {
	batch, err := results.ReadFile(path, func(line int, err error) {
		slog.Warn("skipping malformed result", "file", path, "line", line, "err", err)
	})
	if err != nil {
		return err
	}

	stats, err := db.InsertWeekly(ctx, day, batch)
	if err != nil {
		return err
	}
	slog.Info(
		"inserted weekly grades",
		"week", stats.Week,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"missing", stats.Missing,
	)
	return nil
}
