package infinitecampus

import (
	"regexp"
	"strings"

	"portalgrades/internal/aggregate"
	"portalgrades/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var (
	courseInPrefix     = regexp.MustCompile(`(?i)^\s*IN\s+`)
	courseLetterSuffix = regexp.MustCompile(`\s+-\s+[A-F][+-]?$`)
)

// normalizeCourse turns a card header like "IN English 7 - A" into
// "ENGLISH 7".
func normalizeCourse(raw string) string {
	course := courseInPrefix.ReplaceAllString(strings.TrimSpace(raw), "")
	course = courseLetterSuffix.ReplaceAllString(course, "")
	return strings.ToUpper(strings.TrimSpace(course))
}

// ParseGradeCards reads the collapsible course cards of the grades page,
// keeping the row whose name contains label.
func ParseGradeCards(doc *goquery.Document, label string) aggregate.GradeSnapshot {
	out := aggregate.GradeSnapshot{}
	wanted := strings.ToLower(label)

	doc.Find("div.collapsible-card.grades__card").Each(func(_ int, card *goquery.Selection) {
		course := normalizeCourse(htmlutil.Text(card.Find(".collapsible-card__header h4")))
		if course == "" {
			return
		}

		card.Find("div.grades__row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
			left := strings.ToLower(htmlutil.Text(row.Find(".grades__flex-row__item--left")))
			if !strings.Contains(left, wanted) {
				return true
			}
			value := aggregate.ParseGradeValue(htmlutil.Text(row.Find(".grades__flex-row__item--right")))
			if value.IsZero() {
				return true
			}
			out[course] = value
			return false
		})
	})
	return out
}
