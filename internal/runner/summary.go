package runner

import (
	"time"

	"portalgrades/internal/results"
)

// Summary counts the outcomes of a run.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	// Skipped jobs never ran because the run was interrupted.
	Skipped    int
	ByKind     map[results.FailureKind]int
	StartedAt  time.Time
	FinishedAt time.Time
	// Failures lists the failed results in completion order.
	Failures []results.JobResult
}

func newSummary(runID string, started time.Time) Summary {
	return Summary{
		RunID:     runID,
		ByKind:    map[results.FailureKind]int{},
		StartedAt: started,
	}
}

func (s *Summary) add(result results.JobResult) {
	s.Total++
	if result.Succeeded() {
		s.Succeeded++
		return
	}
	s.Failed++
	if result.Failure != nil {
		s.ByKind[result.Failure.Kind]++
	}
	s.Failures = append(s.Failures, result)
}
