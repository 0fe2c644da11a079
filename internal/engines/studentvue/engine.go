// Package studentvue implements the engine for StudentVUE and ParentVUE
// (Synergy) portals.
package studentvue

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"portalgrades/internal/aggregate"
	"portalgrades/internal/assert"
	"portalgrades/internal/browser"
	"portalgrades/internal/portal"
	"portalgrades/internal/telemetry"
	"portalgrades/lib/htmlutil"
	"portalgrades/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_engine_login          = "engine.login"
	report_engine_select_student = "engine.select-student"
	report_engine_fetch_grades   = "engine.fetch-grades"
)

type Role string

const (
	Student Role = "student"
	Parent  Role = "parent"
)

const (
	usernameField = "#ctl00_MainContent_username"
	passwordField = "#ctl00_MainContent_password"
	submitButton  = "#ctl00_MainContent_Submit1"
	loginError    = "#ctl00_MainContent_ERROR, .ERROR, .error-message, .alert-danger"

	studentSelector = "#ctl00_ctl00_MainContent_StudentSelector"
)

var rejectedRegex = regexp.MustCompile(`(?i)(invalid|incorrect|not valid|locked|disabled)`)

type Options struct {
	Key string
	// BaseURL is the district's Synergy host (ex. https://parentvue.husd.org).
	BaseURL string
	Role    Role
}

func (o Options) base() string {
	return strings.TrimSuffix(o.BaseURL, "/")
}

func (o Options) LoginURL() string {
	if o.Role == Parent {
		return o.base() + "/PXP2_Login_Parent.aspx"
	}
	return o.base() + "/PXP2_Login_Student.aspx?regenerateSessionId=true"
}

// GradebookURL is the gradebook of the student identified by agu, or of
// the only student of the account when agu is empty.
func (o Options) GradebookURL(agu string) string {
	u := o.base() + "/PXP2_Gradebook.aspx"
	if agu != "" {
		u += "?AGU=" + url.QueryEscape(agu)
	}
	return u
}

type Engine struct {
	opts Options
	tel  telemetry.API

	agu string
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

func isLoginPage(page *browser.Page) bool {
	return page.URLContains("PXP2_Login") || page.Doc.Find(passwordField).Length() > 0
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
	values.Set(form.Find(usernameField).AttrOr("name", "ctl00$MainContent$username"), req.Credentials.Username)
	values.Set(form.Find(passwordField).AttrOr("name", "ctl00$MainContent$password"), req.Credentials.Secret)
	if button := form.Find(submitButton); button.Length() > 0 {
		values.Set(button.AttrOr("name", "ctl00$MainContent$Submit1"), button.AttrOr("value", "Login"))
	}

	page, err = s.Submit(ctx, form.AttrOr("action", page.URL.String()), values)
	if err != nil {
		return err
	}

	if isLoginPage(page) {
		message := htmlutil.Text(page.Doc.Find(loginError))
		if rejectedRegex.MatchString(message) {
			e.tel.ReportDebug(report_engine_login, "credentials rejected", message)
			return portal.NewAuthError(e.opts.Key, message)
		}
		e.tel.ReportWarning(report_engine_login, "still on the login page", message)
		return portal.Transientf("login", "still on the login page after submitting")
	}

	if e.opts.Role == Parent {
		return e.selectStudent(page, req.DisambiguationName)
	}
	return nil
}

// ListedStudent is a student offered by the selector of a parent account.
type ListedStudent struct {
	Name string
	AGU  string
}

// ListStudents reads the students of a parent account from the student
// selector of any logged in page.
func ListStudents(doc *goquery.Document) []ListedStudent {
	var students []ListedStudent
	seen := map[string]bool{}
	doc.Find(studentSelector + " .student-info[data-agu]").Each(func(_ int, info *goquery.Selection) {
		agu := strings.TrimSpace(info.AttrOr("data-agu", ""))
		name := htmlutil.Text(info.Find(".student-name"))
		if agu == "" || seen[agu] {
			return
		}
		seen[agu] = true
		students = append(students, ListedStudent{Name: name, AGU: agu})
	})
	return students
}

func (e *Engine) selectStudent(page *browser.Page, name string) error {
	students := ListStudents(page.Doc)
	if len(students) == 0 {
		// single student accounts have no selector
		return nil
	}
	if name == "" {
		if len(students) > 1 {
			e.tel.ReportWarning(report_engine_select_student, "no student name to choose with", len(students))
		}
		e.agu = students[0].AGU
		return nil
	}

	names := make([]string, len(students))
	for i, s := range students {
		names[i] = s.Name
	}
	idx := textutil.BestMatch(textutil.FirstName(name), names)
	if idx < 0 {
		idx = textutil.BestMatch(name, names)
	}
	if idx < 0 {
		e.tel.ReportWarning(report_engine_select_student, "no student matched", names)
		return portal.Transientf("select-student", "no student on the account matches %q", textutil.FirstName(name))
	}
	e.agu = students[idx].AGU
	return nil
}

func (e *Engine) FetchGrades(ctx context.Context, session portal.Session) (portal.RawGradePayload, error) {
	s, err := browser.From(session)
	if err != nil {
		return nil, err
	}
	page, err := s.Navigate(ctx, e.opts.GradebookURL(e.agu))
	if err != nil {
		return nil, err
	}
	if isLoginPage(page) {
		return nil, portal.Transientf("fetch-grades", "session expired before the gradebook loaded")
	}

	snapshot := ParseGradebook(page.Doc)
	if len(snapshot) == 0 {
		e.tel.ReportWarning(report_engine_fetch_grades, "no grades found", page.URL.Path)
	}
	return portal.Snapshot{Subjects: snapshot}, nil
}

// Logout does nothing, dropping the session's cookies ends a Synergy
// session.
func (e *Engine) Logout(context.Context, portal.Session) {}

var coursePrefixRegex = regexp.MustCompile(`^\d+:\s*`)

// ParseGradebook reads the class rows of a gradebook, each course header
// row is followed by a row holding its score or mark.
func ParseGradebook(doc *goquery.Document) aggregate.GradeSnapshot {
	out := aggregate.GradeSnapshot{}
	doc.Find("div.gb-class-header.gb-class-row").Each(func(_ int, header *goquery.Selection) {
		title := htmlutil.Text(header.Find("button.course-title"))
		course := strings.TrimSpace(coursePrefixRegex.ReplaceAllString(title, ""))
		if course == "" {
			return
		}

		row := header.NextAllFiltered("div.gb-class-row").Not(".gb-class-header").First()
		if row.Length() == 0 {
			return
		}

		var value aggregate.GradeValue
		score := htmlutil.Text(row.Find("span.score"))
		mark := htmlutil.Text(row.Find("span.mark"))
		switch {
		case strings.Contains(score, "%"):
			value = aggregate.ParseGradeValue(score)
		case !aggregate.IsBlankGrade(mark):
			value = aggregate.Letter(mark)
		}
		if value.IsZero() {
			return
		}
		out[course] = value
	})
	return out
}
