// Package runner drives a batch of student jobs through their portal
// engines and records one result per job.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"portalgrades/internal/aggregate"
	"portalgrades/internal/assert"
	"portalgrades/internal/portal"
	"portalgrades/internal/ratelimit"
	"portalgrades/internal/resilience"
	"portalgrades/internal/results"
	"portalgrades/internal/telemetry"
	"portalgrades/lib/timezone"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var (
	tracer = otel.Tracer("portalgrades/internal/runner")
	meter  = otel.Meter("portalgrades/internal/runner")
)

const (
	report_job_failed        = "job.failed"
	report_credential_health = "job.credential-health"
	report_result_write      = "job.result-write"
	report_notify            = "run.notify"
	report_jobs_succeeded    = "run.jobs-succeeded"
	report_jobs_failed       = "run.jobs-failed"
)

const (
	cleanupTimeout              = 15 * time.Second
	defaultConcurrency          = 1
	defaultPerPortalConcurrency = 1
)

// Resolver looks engines up by portal key.
type Resolver interface {
	Resolve(key string) (portal.Engine, error)
}

// SessionProvider hands out a fresh browsing session per job.
type SessionProvider interface {
	Acquire(ctx context.Context, job portal.StudentJob) (portal.Session, error)
}

// CredentialHealthSink is told when a portal rejects a student's
// credentials.
type CredentialHealthSink interface {
	SetCredentialHealth(ctx context.Context, dbID int64, healthy bool) error
}

// Notifier is told about every finished run.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

type Options struct {
	// Concurrency is how many jobs run at once, 1 if zero.
	Concurrency int
	// PerPortalConcurrency is how many jobs of the same portal run at once,
	// 1 if zero.
	PerPortalConcurrency int
	// Jitter is the upper bound of the random pause before each job.
	Jitter time.Duration
	Policy resilience.Policy
}

type Dependencies struct {
	Engines  Resolver
	Sessions SessionProvider
	Limiter  *ratelimit.Limiter
	Health   CredentialHealthSink
	Sink     results.Sink
	// Notifier is optional.
	Notifier  Notifier
	Telemetry telemetry.API
	Clock     timezone.Clock
}

type Runner struct {
	deps   Dependencies
	opts   Options
	tel    telemetry.API
	logger *slog.Logger

	jobsCounter metric.Int64Counter
	jobDuration metric.Float64Histogram
}

func New(deps Dependencies, opts Options) (*Runner, error) {
	assert.NotNil(deps.Engines)
	assert.NotNil(deps.Sessions)
	assert.NotNil(deps.Limiter)
	assert.NotNil(deps.Health)
	assert.NotNil(deps.Sink)
	assert.NotNil(deps.Telemetry)

	if deps.Clock == nil {
		deps.Clock = timezone.StandardClock{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.PerPortalConcurrency <= 0 {
		opts.PerPortalConcurrency = defaultPerPortalConcurrency
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = resilience.DefaultPolicy()
	}

	jobsCounter, err := meter.Int64Counter(
		"portalgrades.jobs",
		metric.WithDescription("Finished jobs by outcome."),
	)
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram(
		"portalgrades.job.duration",
		metric.WithDescription("Time taken by a job."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Runner{
		deps:        deps,
		opts:        opts,
		tel:         telemetry.NewScopedAPI("runner", deps.Telemetry),
		logger:      slog.With("component", "runner"),
		jobsCounter: jobsCounter,
		jobDuration: jobDuration,
	}, nil
}

// portalSlots hands out one semaphore per portal key.
type portalSlots struct {
	mu    sync.Mutex
	size  int64
	slots map[string]*semaphore.Weighted
}

func (p *portalSlots) get(key string) *semaphore.Weighted {
	p.mu.Lock()
	defer p.mu.Unlock()
	sem, ok := p.slots[key]
	if !ok {
		sem = semaphore.NewWeighted(p.size)
		p.slots[key] = sem
	}
	return sem
}

// Run runs every job and returns the summary of the run. One job failing
// never stops the others, the error is only non-nil when ctx ended before
// every job got to run or results could not be recorded.
func (r *Runner) Run(ctx context.Context, jobs []portal.StudentJob) (Summary, error) {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "Run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("jobs", len(jobs)),
	))
	defer span.End()

	summary := newSummary(runID, r.deps.Clock.Now())
	r.logger.InfoContext(ctx, "starting run", "run_id", runID, "jobs", len(jobs), "concurrency", r.opts.Concurrency)

	jobSlots := semaphore.NewWeighted(int64(r.opts.Concurrency))
	portals := &portalSlots{size: int64(r.opts.PerPortalConcurrency), slots: map[string]*semaphore.Weighted{}}

	var (
		mu        sync.Mutex
		sinkErrs  []error
		cancelled error
	)
	group := errgroup.Group{}
	for _, job := range jobs {
		err := jobSlots.Acquire(ctx, 1)
		if err != nil {
			cancelled = err
			break
		}

		group.Go(func() error {
			defer jobSlots.Release(1)

			portalSlot := portals.get(job.PortalKey)
			err := portalSlot.Acquire(ctx, 1)
			if err != nil {
				return nil
			}
			defer portalSlot.Release(1)

			err = r.pause(ctx)
			if err != nil {
				return nil
			}

			result := r.RunJob(ctx, runID, job)
			err = r.deps.Sink.Write(result)

			mu.Lock()
			defer mu.Unlock()
			summary.add(result)
			if err != nil {
				r.tel.ReportBroken(report_result_write, err, job.ID())
				sinkErrs = append(sinkErrs, err)
			}
			return nil
		})
	}
	_ = group.Wait()

	summary.FinishedAt = r.deps.Clock.Now()
	if cancelled == nil && summary.Total < len(jobs) {
		cancelled = ctx.Err()
	}
	summary.Skipped = len(jobs) - summary.Total

	r.tel.ReportCount(report_jobs_succeeded, int64(summary.Succeeded))
	r.tel.ReportCount(report_jobs_failed, int64(summary.Failed))
	r.logger.InfoContext(
		ctx, "run finished",
		"run_id", runID,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)

	if r.deps.Notifier != nil {
		err := r.deps.Notifier.Notify(context.WithoutCancel(ctx), summary)
		if err != nil {
			r.tel.ReportWarning(report_notify, err)
		}
	}

	var errs []error
	if cancelled != nil {
		errs = append(errs, fmt.Errorf("run interrupted after %d of %d jobs: %w", summary.Total, len(jobs), cancelled))
	}
	errs = append(errs, sinkErrs...)
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return summary, err
}

func (r *Runner) pause(ctx context.Context) error {
	wait, err := jitter(r.opts.Jitter)
	if err != nil {
		r.logger.DebugContext(ctx, "jitter", "err", err)
		return nil
	}
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunJob takes a single job from session acquisition to its result, it
// never panics and always returns a result.
func (r *Runner) RunJob(ctx context.Context, runID string, job portal.StudentJob) (result results.JobResult) {
	ctx, span := tracer.Start(ctx, "RunJob", trace.WithAttributes(
		attribute.String("job_id", job.ID()),
		attribute.String("portal", job.PortalKey),
	))
	defer span.End()

	logger := r.logger.With("job", job)
	result = results.JobResult{
		RunID:      runID,
		JobID:      job.ID(),
		DatabaseID: job.DatabaseID,
		Portal:     job.PortalKey,
		StartedAt:  r.deps.Clock.Now(),
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorContext(ctx, "job panicked", "panic", recovered, "stack", string(debug.Stack()))
			result.Fail(results.KindInternal, fmt.Errorf("panic: %v", recovered))
		}
		result.FinishedAt = r.deps.Clock.Now()
		r.record(ctx, span, logger, result)
	}()

	subjects, err := r.scrape(ctx, job, &result.Attempts)
	if err != nil {
		kind := classify(err)
		if kind == results.KindAuthentication {
			r.markBadCredentials(ctx, job)
		}
		result.Fail(kind, err)
		return result
	}
	result.Succeed(subjects)
	return result
}

func (r *Runner) scrape(ctx context.Context, job portal.StudentJob, attempts *int) (aggregate.GradeSnapshot, error) {
	engine, err := r.deps.Engines.Resolve(job.PortalKey)
	if err != nil {
		return nil, err
	}

	session, err := r.deps.Sessions.Acquire(ctx, job)
	if err != nil {
		return nil, portal.Transient("acquire-session", err)
	}
	defer func() {
		err := session.Close()
		if err != nil {
			r.logger.DebugContext(ctx, "close session", "job_id", job.ID(), "err", err)
		}
	}()
	defer r.logout(ctx, job, engine, session)

	req := portal.LoginRequest{
		Credentials:          job.Credentials,
		AuxiliaryAuthFactors: job.AuxiliaryAuthFactors,
		DisambiguationName:   job.DisplayName,
	}
	n, err := r.opts.Policy.Do(ctx, "login", func(ctx context.Context) error {
		err := r.deps.Limiter.Acquire(ctx)
		if err != nil {
			return err
		}
		return engine.Login(ctx, session, req)
	})
	*attempts += n
	if err != nil {
		return nil, err
	}

	var payload portal.RawGradePayload
	n, err = r.opts.Policy.Do(ctx, "fetch-grades", func(ctx context.Context) error {
		err := r.deps.Limiter.Acquire(ctx)
		if err != nil {
			return err
		}
		payload, err = engine.FetchGrades(ctx, session)
		return err
	})
	*attempts += n
	if err != nil {
		return nil, err
	}
	return r.reduce(payload)
}

// logout is best effort, its failures never change the job's outcome.
func (r *Runner) logout(ctx context.Context, job portal.StudentJob, engine portal.Engine, session portal.Session) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.WarnContext(ctx, "logout panicked", "job_id", job.ID(), "panic", recovered)
		}
	}()
	if r.deps.Limiter.Acquire(cleanupCtx) != nil {
		return
	}
	engine.Logout(cleanupCtx, session)
}

var errUnexpectedPayload = errors.New("unexpected payload")

func (r *Runner) reduce(payload portal.RawGradePayload) (aggregate.GradeSnapshot, error) {
	switch p := payload.(type) {
	case portal.EventStream:
		now := p.Now
		if now.IsZero() {
			now = r.deps.Clock.Now()
		}
		return aggregate.Reduce(aggregate.Resolve(p.Events, now), p.Filter), nil
	case portal.Snapshot:
		out := make(aggregate.GradeSnapshot, len(p.Subjects))
		for subject, value := range p.Subjects {
			if !value.IsZero() {
				out[subject] = value
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w %T", errUnexpectedPayload, payload)
}

func classify(err error) results.FailureKind {
	switch {
	case portal.IsAuth(err):
		return results.KindAuthentication
	case portal.IsUnknownPortal(err):
		return results.KindUnknownPortal
	case errors.Is(err, errUnexpectedPayload):
		return results.KindInternal
	}
	return results.KindTransient
}

func (r *Runner) markBadCredentials(ctx context.Context, job portal.StudentJob) {
	err := r.deps.Health.SetCredentialHealth(context.WithoutCancel(ctx), job.DatabaseID, false)
	if err != nil {
		r.tel.ReportBroken(report_credential_health, err, job.ID())
	}
}

func (r *Runner) record(ctx context.Context, span trace.Span, logger *slog.Logger, result results.JobResult) {
	attrs := []attribute.KeyValue{
		attribute.String("portal", result.Portal),
		attribute.String("outcome", string(result.Outcome)),
	}
	if result.Failure != nil {
		attrs = append(attrs, attribute.String("kind", string(result.Failure.Kind)))
	}
	r.jobsCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	r.jobDuration.Record(ctx, result.FinishedAt.Sub(result.StartedAt).Seconds(), metric.WithAttributes(attrs...))
	span.SetAttributes(attribute.Int("attempts", result.Attempts))

	if result.Succeeded() {
		logger.InfoContext(ctx, "job succeeded", "subjects", len(result.Subjects), "attempts", result.Attempts)
		return
	}
	span.SetStatus(codes.Error, result.Failure.Message)
	r.tel.ReportWarning(report_job_failed, result.JobID, result.Failure.Kind, result.Failure.Message)
}
