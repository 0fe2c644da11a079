package aggregate

import (
	"strings"
	"time"
)

type entry struct {
	timestamp time.Time
	value     GradeValue
}

// Reduce keeps the latest value of every subject.
//
// Events are visited in order, an event replaces the stored value of its
// subject only when its timestamp is strictly later, so on equal
// timestamps the first event seen wins. Unresolved (zero) timestamps sort
// before everything. Events without a subject or value are skipped, as
// are events rejected by filter (when non-nil).
func Reduce(events []GradeEvent, filter Filter) GradeSnapshot {
	latest := map[string]entry{}
	for _, e := range events {
		if filter != nil && !filter(e) {
			continue
		}
		subject := strings.TrimSpace(e.Subject)
		if subject == "" {
			continue
		}
		value := e.Value()
		if value.IsZero() {
			continue
		}

		stored, seen := latest[subject]
		if seen && !e.Timestamp.After(stored.timestamp) {
			continue
		}
		latest[subject] = entry{timestamp: e.Timestamp, value: value}
	}

	out := make(GradeSnapshot, len(latest))
	for subject, e := range latest {
		out[subject] = e.value
	}
	return out
}
