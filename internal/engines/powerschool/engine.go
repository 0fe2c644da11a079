// Package powerschool implements the engine for PowerSchool parent
// portals, reading the quick lookup table of the guardian home page.
package powerschool

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"portalgrades/internal/aggregate"
	"portalgrades/internal/assert"
	"portalgrades/internal/browser"
	"portalgrades/internal/portal"
	"portalgrades/internal/telemetry"
	"portalgrades/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	report_engine_login        = "engine.login"
	report_engine_fetch_grades = "engine.fetch-grades"
	report_engine_logout       = "engine.logout"
)

const (
	accountField  = "#fieldAccount"
	passwordField = "#fieldPassword"
	feedback      = "#feedback-message, .feedback-alert, .alert-danger"
	courseRow     = "tr[id^=ccid_]"
)

var rejectedRegex = regexp.MustCompile(`(?i)(invalid|incorrect|locked|disabled)`)

type Options struct {
	Key string
	// BaseURL is the district's PowerSchool host (ex. https://lts.powerschool.com).
	BaseURL string
}

func (o Options) base() string {
	return strings.TrimSuffix(o.BaseURL, "/")
}

func (o Options) LoginURL() string {
	return o.base() + "/public/home.html"
}

func (o Options) HomeURL() string {
	return o.base() + "/guardian/home.html"
}

func (o Options) LogoffURL() string {
	return o.HomeURL() + "?ac=logoff"
}

type Engine struct {
	opts Options
	tel  telemetry.API
}

func Factory(opts Options, tel telemetry.API) portal.Factory {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.Key)
	assert.NotEmptyStr(opts.BaseURL)

	tel = telemetry.NewScopedAPI(opts.Key, tel)
	return func() portal.Engine {
		return &Engine{opts: opts, tel: tel}
	}
}

func isGuardianPage(page *browser.Page) bool {
	return page != nil && page.URLContains("/guardian/") && page.Doc.Find(passwordField).Length() == 0
}

func (e *Engine) Login(ctx context.Context, session portal.Session, req portal.LoginRequest) error {
	s, err := browser.From(session)
	if err != nil {
		return err
	}

	page, err := s.Navigate(ctx, e.opts.LoginURL())
	if err != nil {
		return err
	}
	form := page.Doc.Find(passwordField).Closest("form")
	if form.Length() == 0 {
		return portal.Transientf("login", "no login form on %s", page.URL.Path)
	}

	values := htmlutil.FormValues(form)
	values.Set(form.Find(accountField).AttrOr("name", "account"), req.Credentials.Username)
	values.Set(form.Find(passwordField).AttrOr("name", "pw"), req.Credentials.Secret)

	page, err = s.Submit(ctx, form.AttrOr("action", e.opts.HomeURL()), values)
	if err != nil {
		return err
	}
	if isGuardianPage(page) {
		return nil
	}

	message := htmlutil.Text(page.Doc.Find(feedback))
	if rejectedRegex.MatchString(message) {
		e.tel.ReportDebug(report_engine_login, "credentials rejected", message)
		return portal.NewAuthError(e.opts.Key, message)
	}
	e.tel.ReportWarning(report_engine_login, "did not reach the guardian home page", page.URL.Path, message)
	return portal.Transientf("login", "landed on %s instead of the guardian home page", page.URL.Path)
}

func (e *Engine) FetchGrades(ctx context.Context, session portal.Session) (portal.RawGradePayload, error) {
	s, err := browser.From(session)
	if err != nil {
		return nil, err
	}

	page := s.Current()
	if !isGuardianPage(page) || page.Doc.Find(courseRow).Length() == 0 {
		page, err = s.Navigate(ctx, e.opts.HomeURL())
		if err != nil {
			return nil, err
		}
	}
	if !isGuardianPage(page) {
		return nil, portal.Transientf("fetch-grades", "expected the guardian home page, landed on %s", page.URL.Path)
	}

	snapshot := ParseQuickLookup(page.Doc)
	if len(snapshot) == 0 {
		e.tel.ReportWarning(report_engine_fetch_grades, "no grades found", page.URL.Path)
	}
	return portal.Snapshot{Subjects: snapshot}, nil
}

func (e *Engine) Logout(ctx context.Context, session portal.Session) {
	s, err := browser.From(session)
	if err != nil {
		return
	}
	_, err = s.Navigate(ctx, e.opts.LogoffURL())
	if err != nil {
		e.tel.ReportDebug(report_engine_logout, err)
	}
}

var (
	courseSuffixRegex = regexp.MustCompile(`\s+Email\s.*$`)
	coursePrefixRegex = regexp.MustCompile(`^[A-Z0-9 ]+-\s*`)
)

// normalizeCourse turns a course cell like
// "SC 08 - Science Email Costa, Tai - Rm: 231" into "Science".
func normalizeCourse(raw string) string {
	course := courseSuffixRegex.ReplaceAllString(raw, "")
	course = coursePrefixRegex.ReplaceAllString(course, "")
	return strings.TrimSpace(course)
}

// linkLines returns the non-empty text nodes of a grade link, a link
// usually reads "B" then "87" on separate lines.
func linkLines(link *goquery.Selection) []string {
	var lines []string
	for _, n := range link.Nodes {
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.TextNode {
				if text := htmlutil.CleanText(n.Data); text != "" {
					lines = append(lines, text)
				}
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(n)
	}
	return lines
}

// ParseQuickLookup reads the course rows of the guardian home page,
// taking the last term link of each row (the current term).
func ParseQuickLookup(doc *goquery.Document) aggregate.GradeSnapshot {
	out := aggregate.GradeSnapshot{}
	doc.Find(courseRow).Each(func(_ int, row *goquery.Selection) {
		course := normalizeCourse(htmlutil.Text(row.Find("td.table-element-text-align-start")))
		if course == "" {
			return
		}
		links := row.Find("a.bold")
		if links.Length() == 0 {
			return
		}

		lines := linkLines(links.Last())
		if len(lines) == 0 {
			return
		}
		var value aggregate.GradeValue
		if len(lines) >= 2 {
			if pct, err := strconv.ParseFloat(lines[1], 64); err == nil && pct >= 0 && pct <= 100 {
				value = aggregate.Percentage(pct)
			}
		}
		if value.IsZero() && !aggregate.IsBlankGrade(lines[0]) {
			value = aggregate.Letter(lines[0])
		}
		if value.IsZero() {
			return
		}
		out[course] = value
	})
	return out
}
