package aggregate

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindNone valueKind = iota
	kindPercentage
	kindLetter
)

// GradeValue is either a percentage in [0, 100] or a letter grade token.
// The zero value holds neither.
type GradeValue struct {
	kind   valueKind
	pct    float64
	letter string
}

func Percentage(pct float64) GradeValue {
	return GradeValue{kind: kindPercentage, pct: pct}
}

func Letter(letter string) GradeValue {
	letter = strings.TrimSpace(letter)
	if letter == "" {
		return GradeValue{}
	}
	return GradeValue{kind: kindLetter, letter: letter}
}

func (v GradeValue) IsZero() bool {
	return v.kind == kindNone
}

func (v GradeValue) Percentage() (float64, bool) {
	return v.pct, v.kind == kindPercentage
}

func (v GradeValue) Letter() (string, bool) {
	return v.letter, v.kind == kindLetter
}

func (v GradeValue) Equal(o GradeValue) bool {
	return v.kind == o.kind && v.pct == o.pct && v.letter == o.letter
}

func (v GradeValue) String() string {
	switch v.kind {
	case kindPercentage:
		return strconv.FormatFloat(v.pct, 'f', -1, 64) + "%"
	case kindLetter:
		return v.letter
	}
	return ""
}

// MarshalJSON encodes percentages as numbers and letters as strings.
func (v GradeValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindPercentage:
		return json.Marshal(v.pct)
	case kindLetter:
		return json.Marshal(v.letter)
	}
	return []byte("null"), nil
}

func (v *GradeValue) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*v = GradeValue{}
	case strings.HasPrefix(trimmed, `"`):
		var letter string
		err := json.Unmarshal(data, &letter)
		if err != nil {
			return err
		}
		*v = Letter(letter)
	default:
		var pct float64
		err := json.Unmarshal(data, &pct)
		if err != nil {
			return fmt.Errorf("grade value must be a number or a string: %w", err)
		}
		*v = Percentage(pct)
	}
	return nil
}

// GradeSnapshot maps a subject to its current value.
type GradeSnapshot map[string]GradeValue

// Subjects returns the subject names of the snapshot, sorted.
func (s GradeSnapshot) Subjects() []string {
	out := make([]string, 0, len(s))
	for subject := range s {
		out = append(out, subject)
	}
	sort.Strings(out)
	return out
}
