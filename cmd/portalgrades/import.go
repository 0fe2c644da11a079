package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"portalgrades/internal/roster"
	"portalgrades/internal/store"

	"github.com/spf13/cobra"
)

var (
	importName      string
	importMinDelete int
)

var importCmd = &cobra.Command{
	Use:   "import <franchise-id> <roster.xlsx>",
	Short: "Syncs a franchise's students with the LoginMaster sheet of a workbook.",
	Long: `Syncs a franchise's students with the LoginMaster sheet of a workbook.

Students are matched by first and last name. New students are inserted,
changed ones updated, and students missing from the sheet are deleted once
the sheet lists at least --min-delete students.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		franchiseID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("franchise must be a number: %w", err)
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

		return importRoster(ctx, db, franchiseID, args[1], importOptions{
			name:      importName,
			minDelete: importMinDelete,
		})
	},
}

func init() {
	importCmd.Flags().StringVar(&importName, "name", "", "create or rename the franchise with this name")
	importCmd.Flags().IntVar(&importMinDelete, "min-delete", store.MinRosterForDelete, "the fewest students a sheet must list before missing students are deleted")
}

type importOptions struct {
	name      string
	minDelete int
}

func importRoster(ctx context.Context, db store.Store, franchiseID int64, path string, opts importOptions) error {
	if opts.name != "" {
		err := db.PutFranchise(ctx, store.Franchise{ID: franchiseID, Name: opts.name})
		if err != nil {
			return err
		}
	} else {
		franchises, err := db.ListFranchises(ctx)
		if err != nil {
			return err
		}
		found := false
		for _, f := range franchises {
			found = found || f.ID == franchiseID
		}
		if !found {
			return fmt.Errorf("franchise %d does not exist, pass --name to create it", franchiseID)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := roster.Read(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(entries) == 0 {
		slog.Warn("roster lists no students, nothing changed", "file", path, "franchise_id", franchiseID)
		return nil
	}

	stats, err := db.SyncRoster(ctx, franchiseID, entries, opts.minDelete)
	if err != nil {
		return err
	}
	slog.Info(
		"synced roster",
		"franchise_id", franchiseID,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"deleted", stats.Deleted,
		"duplicates", stats.Duplicates,
		"deletes_skipped", stats.DeletesSkipped,
	)
	return nil
}
