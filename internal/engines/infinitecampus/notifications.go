package infinitecampus

import (
	"regexp"
	"strconv"
	"strings"

	"portalgrades/internal/aggregate"
	"portalgrades/lib/htmlutil"
	"portalgrades/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

var notificationRegex = regexp.MustCompile(
	`(?i)(?:has an updated grade of|received a new grade of)\s+` +
		`(?:(?P<letter>[A-F][+-]?)\s*)?` +
		`(?:\((?P<pct>\d{1,3}(?:\.\d+)?)%\))?\s+` +
		`in\s+(?P<subject>.+?):\s*(?P<label>[A-Za-z\- ]*?Grade)\b`,
)

var (
	letterGroup  = notificationRegex.SubexpIndex("letter")
	pctGroup     = notificationRegex.SubexpIndex("pct")
	subjectGroup = notificationRegex.SubexpIndex("subject")
	labelGroup   = notificationRegex.SubexpIndex("label")
)

// ParseNotifications reads the grade notifications of a home page, in page
// order. When studentName is set, notifications about other students are
// dropped.
//
// ex. "Jane has an updated grade of D (61.90%) in ALGEBRA II: Semester Grade"
func ParseNotifications(doc *goquery.Document, studentName string) []aggregate.GradeEvent {
	first := textutil.FirstName(studentName)

	var events []aggregate.GradeEvent
	doc.Find("ul.notifications-dropdown__body li.notification__container").Each(func(_ int, li *goquery.Selection) {
		text := htmlutil.Text(li.Find("a.notification__text"))
		date := htmlutil.Text(li.Find("p.notification__date"))
		if text == "" {
			return
		}

		loc := notificationRegex.FindStringSubmatchIndex(text)
		if loc == nil {
			return
		}
		if first != "" {
			who := strings.TrimSpace(text[:loc[0]])
			if who != "" && !textutil.Similar(textutil.FirstName(who), first) {
				return
			}
		}

		group := func(i int) string {
			if loc[2*i] < 0 {
				return ""
			}
			return text[loc[2*i]:loc[2*i+1]]
		}

		event := aggregate.GradeEvent{
			Subject:      strings.TrimSpace(group(subjectGroup)),
			Label:        textutil.CollapseSpace(group(labelGroup)),
			RawTimestamp: date,
			Letter:       strings.ToUpper(group(letterGroup)),
		}
		if raw := group(pctGroup); raw != "" {
			pct, err := strconv.ParseFloat(raw, 64)
			if err == nil {
				event.Percentage = &pct
			}
		}
		events = append(events, event)
	})
	return events
}
