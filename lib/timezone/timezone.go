package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Phoenix")
	if err != nil {
		panic(err)
	}
}

// force timezone to the districts' local time because servers can end up
// anywhere, which disturbs date math based on <time.Time>.Year()/Month()/Day()
func Now() time.Time {
	return time.Now().In(Location)
}

// Clock is the interface that anything depending on the system clock should use.
type Clock interface {
	Now() time.Time
}

type StandardClock struct{}

func (StandardClock) Now() time.Time {
	return Now()
}

// FixedClock always returns the same instant, for tests and replays.
type FixedClock time.Time

func (c FixedClock) Now() time.Time {
	return time.Time(c)
}

// StartOfDay truncates t to midnight in t's own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// MondayOf returns midnight of the Monday of the week t falls in,
// weeks start on Monday.
func MondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return StartOfDay(t).AddDate(0, 0, -offset)
}

// WeekAnchor formats the Monday of t's week as YYYY-MM-DD.
func WeekAnchor(t time.Time) string {
	return MondayOf(t).Format(time.DateOnly)
}
