// Package results defines the per job outcome of a run and its JSON lines
// file format.
package results

import (
	"time"

	"portalgrades/internal/aggregate"
)

type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
)

type FailureKind string

const (
	// KindAuthentication means the portal rejected the credentials.
	KindAuthentication FailureKind = "authentication"
	KindTransient      FailureKind = "transient"
	KindUnknownPortal  FailureKind = "unknown_portal"
	// KindInternal is a bug, a panic or a payload no one knows how to
	// handle.
	KindInternal FailureKind = "internal"
)

type FailureDetail struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// JobResult is one line of a results file.
type JobResult struct {
	RunID      string                  `json:"run_id"`
	JobID      string                  `json:"job_id"`
	DatabaseID int64                   `json:"db_id"`
	Portal     string                  `json:"portal"`
	Outcome    Outcome                 `json:"outcome"`
	Subjects   aggregate.GradeSnapshot `json:"subjects,omitempty"`
	Failure    *FailureDetail          `json:"failure,omitempty"`
	Attempts   int                     `json:"attempts"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

func (r JobResult) Succeeded() bool {
	return r.Outcome == Success
}

// Fail marks the result failed.
func (r *JobResult) Fail(kind FailureKind, err error) {
	r.Outcome = Failure
	r.Subjects = nil
	message := ""
	if err != nil {
		message = err.Error()
	}
	r.Failure = &FailureDetail{Kind: kind, Message: message}
}

// Succeed marks the result successful with the given subjects.
func (r *JobResult) Succeed(subjects aggregate.GradeSnapshot) {
	if subjects == nil {
		subjects = aggregate.GradeSnapshot{}
	}
	r.Outcome = Success
	r.Subjects = subjects
	r.Failure = nil
}
