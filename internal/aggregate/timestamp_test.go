package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveTimestamp(t *testing.T) {
	loc := time.FixedZone("MST", -7*60*60)
	now := time.Date(2024, time.March, 14, 16, 30, 0, 0, loc)

	cases := []struct {
		label  string
		expect time.Time
		ok     bool
	}{
		{"Today", time.Date(2024, time.March, 14, 12, 0, 0, 0, loc), true},
		{"today 3:45 PM", time.Date(2024, time.March, 14, 15, 45, 0, 0, loc), true},
		{"Yesterday at 9:05 am", time.Date(2024, time.March, 13, 9, 5, 0, 0, loc), true},
		{"Yesterday 12:10 AM", time.Date(2024, time.March, 13, 0, 10, 0, 0, loc), true},
		{"today 18:20", time.Date(2024, time.March, 14, 18, 20, 0, 0, loc), true},
		{"Tue, 03/12/24", time.Date(2024, time.March, 12, 0, 0, 0, 0, loc), true},
		{"03/01/24", time.Date(2024, time.March, 1, 0, 0, 0, 0, loc), true},
		{"3/1/2024", time.Date(2024, time.March, 1, 0, 0, 0, 0, loc), true},
		{"2024-02-28", time.Date(2024, time.February, 28, 0, 0, 0, 0, loc), true},
		{"2024-02-28T08:15", time.Date(2024, time.February, 28, 8, 15, 0, 0, loc), true},
		{"today 13:00 PM", time.Time{}, false},
		{"last week", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, test := range cases {
		got, ok := ResolveTimestamp(test.label, now)
		require.Equal(t, test.ok, ok, test.label)
		require.True(t, test.expect.Equal(got), "%s: got %v", test.label, got)
	}
}

func TestYesterdayAcrossMonth(t *testing.T) {
	now := time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)
	got, ok := ResolveTimestamp("yesterday", now)
	require.True(t, ok)
	require.Equal(t, time.Date(2024, time.February, 29, 12, 0, 0, 0, time.UTC), got)
}

func TestResolveEvents(t *testing.T) {
	now := time.Date(2024, time.March, 14, 16, 30, 0, 0, time.UTC)
	fixed := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	events := []GradeEvent{
		{Subject: "MATH", RawTimestamp: "Yesterday 3:00 PM"},
		{Subject: "ART", RawTimestamp: "whenever"},
		{Subject: "PE", RawTimestamp: "Today", Timestamp: fixed},
	}

	resolved := Resolve(events, now)
	require.Equal(t, time.Date(2024, time.March, 13, 15, 0, 0, 0, time.UTC), resolved[0].Timestamp)
	require.True(t, resolved[1].Timestamp.IsZero())
	require.Equal(t, fixed, resolved[2].Timestamp)
	require.True(t, events[0].Timestamp.IsZero())

	snapshot := Reduce(Resolve([]GradeEvent{
		{Subject: "MATH", RawTimestamp: "Today 8:00 AM", Percentage: pct(70)},
		{Subject: "MATH", RawTimestamp: "Yesterday 11:00 PM", Percentage: pct(95)},
	}, now), nil)
	require.True(t, snapshot["MATH"].Equal(Percentage(70)))
}
