package aggregate

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func pct(v float64) *float64 {
	return &v
}

var t0 = time.Date(2024, time.March, 11, 12, 0, 0, 0, time.UTC)

func at(hours int) time.Time {
	return t0.Add(time.Duration(hours) * time.Hour)
}

func TestReduce(t *testing.T) {
	cases := []struct {
		name   string
		events []GradeEvent
		filter Filter
		expect GradeSnapshot
	}{
		{
			name:   "empty",
			events: nil,
			expect: GradeSnapshot{},
		},
		{
			name: "later event wins regardless of order",
			events: []GradeEvent{
				{Subject: "MATH", Timestamp: at(1), Percentage: pct(90)},
				{Subject: "MATH", Timestamp: at(0), Percentage: pct(80)},
			},
			expect: GradeSnapshot{"MATH": Percentage(90)},
		},
		{
			name: "newer event replaces older",
			events: []GradeEvent{
				{Subject: "MATH", Timestamp: at(0), Percentage: pct(80)},
				{Subject: "MATH", Timestamp: at(1), Letter: "B"},
			},
			expect: GradeSnapshot{"MATH": Letter("B")},
		},
		{
			name: "first seen wins on equal timestamps",
			events: []GradeEvent{
				{Subject: "MATH", Timestamp: at(0), Percentage: pct(80)},
				{Subject: "MATH", Timestamp: at(0), Percentage: pct(95)},
			},
			expect: GradeSnapshot{"MATH": Percentage(80)},
		},
		{
			name: "percentage takes precedence within an event",
			events: []GradeEvent{
				{Subject: "ENGLISH", Timestamp: at(0), Percentage: pct(88.5), Letter: "B+"},
			},
			expect: GradeSnapshot{"ENGLISH": Percentage(88.5)},
		},
		{
			name: "out of range percentage falls back to letter",
			events: []GradeEvent{
				{Subject: "ENGLISH", Timestamp: at(0), Percentage: pct(140), Letter: "A"},
			},
			expect: GradeSnapshot{"ENGLISH": Letter("A")},
		},
		{
			name: "unresolved timestamp never overwrites",
			events: []GradeEvent{
				{Subject: "MATH", Timestamp: at(0), Percentage: pct(80)},
				{Subject: "MATH", RawTimestamp: "sometime", Percentage: pct(99)},
			},
			expect: GradeSnapshot{"MATH": Percentage(80)},
		},
		{
			name: "unresolved timestamp is replaced by any resolved one",
			events: []GradeEvent{
				{Subject: "MATH", RawTimestamp: "sometime", Percentage: pct(99)},
				{Subject: "MATH", Timestamp: at(-100), Percentage: pct(70)},
			},
			expect: GradeSnapshot{"MATH": Percentage(70)},
		},
		{
			name: "events without value or subject are skipped",
			events: []GradeEvent{
				{Subject: "MATH", Timestamp: at(5)},
				{Subject: "  ", Timestamp: at(5), Percentage: pct(50)},
				{Subject: "MATH", Timestamp: at(0), Letter: "C"},
			},
			expect: GradeSnapshot{"MATH": Letter("C")},
		},
		{
			name: "filter",
			events: []GradeEvent{
				{Subject: "MATH", Label: "Semester Grade", Timestamp: at(0), Percentage: pct(81)},
				{Subject: "MATH", Label: "Quarter Grade", Timestamp: at(1), Percentage: pct(99)},
				{Subject: "ART", Label: "semester grade", Timestamp: at(0), Letter: "A"},
			},
			filter: LabelFilter("Semester Grade"),
			expect: GradeSnapshot{"MATH": Percentage(81), "ART": Letter("A")},
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			got := Reduce(test.events, test.filter)
			diff := cmp.Diff(test.expect, got)
			require.Empty(t, diff)
		})
	}
}

func TestReduceIsDeterministic(t *testing.T) {
	events := []GradeEvent{
		{Subject: "MATH", Timestamp: at(2), Percentage: pct(91)},
		{Subject: "SCIENCE", Timestamp: at(0), Letter: "B"},
		{Subject: "MATH", Timestamp: at(2), Percentage: pct(72)},
		{Subject: "SCIENCE", Timestamp: at(3), Percentage: pct(85), Letter: "B"},
		{Subject: "HISTORY", RawTimestamp: "?", Letter: "A-"},
	}

	first := Reduce(events, nil)
	second := Reduce(events, nil)
	require.Empty(t, cmp.Diff(first, second))

	// reducing the reduced output again changes nothing
	var again []GradeEvent
	for _, subject := range first.Subjects() {
		v := first[subject]
		e := GradeEvent{Subject: subject, Timestamp: t0}
		if p, ok := v.Percentage(); ok {
			e.Percentage = &p
		}
		if l, ok := v.Letter(); ok {
			e.Letter = l
		}
		again = append(again, e)
	}
	require.Empty(t, cmp.Diff(first, Reduce(again, nil)))

	require.Empty(t, cmp.Diff(GradeSnapshot{
		"MATH":    Percentage(91),
		"SCIENCE": Percentage(85),
		"HISTORY": Letter("A-"),
	}, first))
}
