package aggregate

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeRegex = regexp.MustCompile(
	`^(today|yesterday)\b[\s,]*(?:at\s+)?(?:(\d{1,2}):(\d{2})\s*([ap]\.?m\.?)?)?$`,
)

var absoluteLayouts = []string{
	"Mon, 1/2/06 3:04 PM",
	"Mon, 1/2/06",
	"Monday, 1/2/06",
	"1/2/06 3:04 PM",
	"1/2/2006 3:04 PM",
	"1/2/06",
	"1/2/2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ResolveTimestamp turns a timestamp label as displayed by a portal into an
// absolute time in now's location. Relative labels ("today", "yesterday",
// optionally followed by a clock time, 12:00 PM otherwise) are resolved
// against now.
func ResolveTimestamp(label string, now time.Time) (time.Time, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return time.Time{}, false
	}

	if t, ok := resolveRelative(strings.ToLower(label), now); ok {
		return t, true
	}
	for _, layout := range absoluteLayouts {
		t, err := time.ParseInLocation(layout, label, now.Location())
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func resolveRelative(label string, now time.Time) (time.Time, bool) {
	match := relativeRegex.FindStringSubmatch(label)
	if match == nil {
		return time.Time{}, false
	}

	day := now
	if match[1] == "yesterday" {
		day = now.AddDate(0, 0, -1)
	}

	hour, minute := 12, 0
	if match[2] != "" {
		hour, _ = strconv.Atoi(match[2])
		minute, _ = strconv.Atoi(match[3])
		meridiem := strings.ReplaceAll(match[4], ".", "")
		switch meridiem {
		case "am":
			if hour < 1 || hour > 12 {
				return time.Time{}, false
			}
			if hour == 12 {
				hour = 0
			}
		case "pm":
			if hour < 1 || hour > 12 {
				return time.Time{}, false
			}
			if hour != 12 {
				hour += 12
			}
		}
		if hour > 23 || minute > 59 {
			return time.Time{}, false
		}
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), true
}

// Resolve returns a copy of events where every event without a timestamp
// gets one resolved from its RawTimestamp against now. Events whose label
// can't be resolved keep the zero time.
func Resolve(events []GradeEvent, now time.Time) []GradeEvent {
	out := make([]GradeEvent, len(events))
	for i, e := range events {
		if e.Timestamp.IsZero() && e.RawTimestamp != "" {
			if t, ok := ResolveTimestamp(e.RawTimestamp, now); ok {
				e.Timestamp = t
			}
		}
		out[i] = e
	}
	return out
}
