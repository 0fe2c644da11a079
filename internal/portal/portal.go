// Package portal defines what a portal engine is and the values that
// flow in and out of one.
package portal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"portalgrades/internal/aggregate"
)

// Credentials are the login credentials of a student. Neither String nor
// LogValue expose the secret.
type Credentials struct {
	Username string
	Secret   string
}

func maskUsername(username string) string {
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{%s}", maskUsername(c.Username))
}

func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("username", maskUsername(c.Username)))
}

// StudentJob is one unit of work, a single student to fetch grades for.
type StudentJob struct {
	DatabaseID  int64
	DisplayName string
	Credentials Credentials
	PortalKey   string
	// AuxiliaryAuthFactors holds extra login inputs some portals need
	// (ex. the picture passwords of a single sign on gateway).
	AuxiliaryAuthFactors []string
	FranchiseID          *int64
}

// ID is the stable identifier of the job used in logs and results.
func (j StudentJob) ID() string {
	return fmt.Sprintf("%s/%d", j.PortalKey, j.DatabaseID)
}

func (j StudentJob) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("db_id", j.DatabaseID),
		slog.String("portal", j.PortalKey),
		slog.Any("credentials", j.Credentials),
	)
}

type LoginRequest struct {
	Credentials          Credentials
	AuxiliaryAuthFactors []string
	// DisambiguationName picks the right student when an account (usually
	// a parent's) can see several.
	DisambiguationName string
}

// Session is the opaque per-job browsing state handed to an engine. The
// orchestrator owns it and closes it.
type Session interface {
	Close() error
}

// RawGradePayload is what an engine's FetchGrades returns, either an
// EventStream or a Snapshot.
type RawGradePayload interface {
	isPayload()
}

// EventStream is a list of timestamped grade events that still has to be
// reduced to a snapshot.
type EventStream struct {
	Events []aggregate.GradeEvent
	// Filter selects the events that count (ex. only semester grades), nil
	// keeps every event.
	Filter aggregate.Filter
	// Now is the reference used to resolve relative timestamps.
	Now time.Time
}

// Snapshot is an already reduced payload, taken as is.
type Snapshot struct {
	Subjects aggregate.GradeSnapshot
}

func (EventStream) isPayload() {}
func (Snapshot) isPayload()    {}

// Engine drives one family of portals. A fresh engine is created per job
// and used from a single goroutine, anything it remembers between Login and
// FetchGrades lives for that job only.
type Engine interface {
	// Login authenticates the session. It returns an *AuthError only on
	// positive evidence that the credentials were rejected, everything else
	// is a *TransientError (or a plain error, which is treated the same).
	Login(ctx context.Context, session Session, req LoginRequest) error
	// FetchGrades reads the grades of the logged in student.
	FetchGrades(ctx context.Context, session Session) (RawGradePayload, error)
	// Logout is best effort and never fails.
	Logout(ctx context.Context, session Session)
}

// Factory creates a fresh engine.
type Factory func() Engine
