package aggregate

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	percentRegex = regexp.MustCompile(`\(?\s*(\d{1,3}(?:\.\d+)?)\s*%\s*\)?`)
	letterRegex  = regexp.MustCompile(`(?i)^([A-F][+-]?)(?:\s|\(|$)`)
)

// ParseGradeText pulls a percentage and a letter grade out of text like
// "B+ (88.5%)", "92%" or "A-". Either result may be absent.
func ParseGradeText(text string) (pct *float64, letter string) {
	text = strings.TrimSpace(text)

	if m := percentRegex.FindStringSubmatch(text); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			pct = &value
		}
		text = strings.TrimSpace(strings.Replace(text, m[0], " ", 1))
	}
	if m := letterRegex.FindStringSubmatch(text); m != nil {
		letter = strings.ToUpper(m[1])
	}
	return pct, letter
}

// ParseGradeValue is ParseGradeText resolved to a single value with the
// usual percentage precedence.
func ParseGradeValue(text string) GradeValue {
	pct, letter := ParseGradeText(text)
	return GradeEvent{Percentage: pct, Letter: letter}.Value()
}

// IsBlankGrade reports the placeholders portals show for missing grades.
func IsBlankGrade(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "n/a", "na", "none", "null", "-", "--":
		return true
	}
	return false
}
