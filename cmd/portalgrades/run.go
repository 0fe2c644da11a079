package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"portalgrades/internal/browser"
	"portalgrades/internal/engines"
	"portalgrades/internal/notify"
	"portalgrades/internal/registry"
	"portalgrades/internal/results"
	"portalgrades/internal/runner"
	"portalgrades/internal/store"
	itelemetry "portalgrades/internal/telemetry"
	"portalgrades/lib/telemetry"
	"portalgrades/lib/timezone"

	"github.com/spf13/cobra"
)

var (
	runFranchise franchiseFlag
	runInsert    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrapes the grades of every student with working credentials.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		config, err := loadConfig(configName)
		if err != nil {
			return err
		}
		shutdown, err := setupTelemetry(ctx)
		if err != nil {
			return err
		}
		defer shutdown()

		return scrape(ctx, config, scrapeOptions{
			franchiseID: runFranchise.id,
			insert:      runInsert,
		})
	},
}

func init() {
	runCmd.Flags().Var(&runFranchise, "franchise", "only scrape students of this franchise")
	runCmd.Flags().BoolVar(&runInsert, "insert", false, "store the grades into this week's bucket after the run")
}

func setupTelemetry(ctx context.Context) (func(), error) {
	tp, err := telemetry.SetupFromEnv(ctx, "portalgrades")
	if err != nil {
		return nil, err
	}
	telemetry.InstrumentPerfStats(ctx, 15*time.Second)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := tp.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}, nil
}

type scrapeOptions struct {
	franchiseID *int64
	insert      bool
}

// scrape runs every eligible job once, writing the results next to the
// previous runs' and optionally storing them as this week's grades.
func scrape(ctx context.Context, config Config, opts scrapeOptions) error {
	db, err := store.Open(ctx, config.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	clock := timezone.StandardClock{}
	jobs, err := db.ListJobs(ctx, store.JobFilter{
		Now:         clock.Now(),
		FranchiseID: opts.franchiseID,
	})
	if err != nil {
		return err
	}
	slog.Info("loaded jobs", "count", len(jobs))

	tel := itelemetry.SlogAPI{}
	reg := registry.New()
	engines.RegisterAll(reg, tel, engines.Options{Label: config.Runner.Label, Clock: clock})

	sessions, err := browser.NewProvider(config.BrowserOptions(), tel)
	if err != nil {
		return err
	}
	limiter, err := config.Limiter()
	if err != nil {
		return err
	}

	path := filepath.Join(
		config.OutputDir(),
		fmt.Sprintf("grades_%s.jsonl", clock.Now().Format("2006-01-02_150405")),
	)
	sink, err := results.Create(path)
	if err != nil {
		return err
	}
	defer sink.Close()

	deps := runner.Dependencies{
		Engines:   reg,
		Sessions:  sessions,
		Limiter:   limiter,
		Health:    db,
		Sink:      sink,
		Telemetry: tel,
		Clock:     clock,
	}
	if config.Smtp.Enabled() {
		deps.Notifier = notify.NewMailer(config.Smtp)
	}
	r, err := runner.New(deps, config.RunnerOptions())
	if err != nil {
		return err
	}

	summary, err := r.Run(ctx, jobs)
	slog.Info(
		"run finished",
		"run_id", summary.RunID,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"results", path,
	)
	if err != nil {
		return err
	}
	if !opts.insert {
		return nil
	}

	err = sink.Close()
	if err != nil {
		return err
	}
	return insertFile(ctx, db, path, clock.Now())
}
