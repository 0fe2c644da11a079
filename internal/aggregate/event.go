package aggregate

import (
	"strings"
	"time"
)

// GradeEvent is a single observed grade assertion, typically a line of a
// portal's notification feed.
type GradeEvent struct {
	Subject string
	// Label is the kind of grade the event is about (ex. "Semester Grade").
	Label string
	// RawTimestamp is the timestamp as displayed by the portal.
	RawTimestamp string
	// Timestamp is the zero time when RawTimestamp could not be resolved.
	Timestamp  time.Time
	Percentage *float64
	Letter     string
}

// Value is the percentage when it is present and within [0, 100],
// otherwise the letter, otherwise nothing.
func (e GradeEvent) Value() GradeValue {
	if e.Percentage != nil && *e.Percentage >= 0 && *e.Percentage <= 100 {
		return Percentage(*e.Percentage)
	}
	return Letter(e.Letter)
}

// Filter decides which events take part in a reduction.
type Filter func(GradeEvent) bool

// LabelFilter keeps events whose label equals one of labels, ignoring case.
func LabelFilter(labels ...string) Filter {
	return func(e GradeEvent) bool {
		for _, l := range labels {
			if strings.EqualFold(strings.TrimSpace(e.Label), l) {
				return true
			}
		}
		return false
	}
}

// And keeps events accepted by every non-nil filter.
func And(filters ...Filter) Filter {
	return func(e GradeEvent) bool {
		for _, f := range filters {
			if f != nil && !f(e) {
				return false
			}
		}
		return true
	}
}
