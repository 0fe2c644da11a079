// Package schedule runs jobs on cron specs in the districts' local time.
package schedule

import (
	"context"
	"fmt"
	"time"

	"portalgrades/internal/telemetry"
	"portalgrades/lib/timezone"

	"github.com/robfig/cron/v3"
)

// Scheduler runs jobs on standard 5 field cron specs, a job that is still
// running when its next tick comes is skipped for that tick.
type Scheduler struct {
	cron *cron.Cron
}

func New(tel telemetry.API) *Scheduler {
	logger := cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithLocation(timezone.Location),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

func (s *Scheduler) Add(spec string, job func()) error {
	_, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("schedule '%s': %w", spec, err)
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// Next returns when spec fires next after t.
func Next(spec string, t time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule '%s': %w", spec, err)
	}
	return schedule.Next(t.In(timezone.Location)), nil
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v: %v", keysAndValues[i], keysAndValues[i+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"scheduler",
		append([]any{fmt.Errorf("%s: %w", msg, err)}, l.formatParams(keysAndValues)...)...,
	)
}
