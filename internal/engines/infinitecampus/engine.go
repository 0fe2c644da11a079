// Package infinitecampus implements the engine for Infinite Campus parent
// and student portals, optionally reached through a picture password
// single sign on gateway.
package infinitecampus

import (
	"context"
	"fmt"
	"strings"

	"portalgrades/internal/aggregate"
	"portalgrades/internal/assert"
	"portalgrades/internal/browser"
	"portalgrades/internal/portal"
	"portalgrades/internal/telemetry"
	"portalgrades/lib/timezone"
)

const (
	report_engine_login        = "engine.login"
	report_engine_fetch_grades = "engine.fetch-grades"
	report_engine_logout       = "engine.logout"
)

type Role string

const (
	Parents  Role = "parents"
	Students Role = "students"
)

// DefaultLabel is the kind of grade kept when Options.Label is empty.
const DefaultLabel = "Semester Grade"

type Options struct {
	// Key is the portal key used in errors and reports.
	Key string
	// BaseURL is the district's campus host (ex. https://alaaz.infinitecampus.org).
	BaseURL string
	// AppName is the district's app name (ex. "ala").
	AppName string
	Role    Role
	// Label selects which grade events count (ex. "Semester Grade").
	Label string
	// Gateway, when set, is logged into first and hands off to the campus.
	Gateway *GatewayOptions
	Clock   timezone.Clock
}

func (o Options) portalSegment() string {
	if o.Role == Students {
		return "student"
	}
	return "parent"
}

func (o Options) base() string {
	return strings.TrimSuffix(o.BaseURL, "/")
}

func (o Options) LoginURL() string {
	return fmt.Sprintf("%s/campus/portal/%s/%s.jsp", o.base(), o.role(), o.AppName)
}

func (o Options) LogoffURL() string {
	return o.LoginURL() + "?status=logoff"
}

func (o Options) HomeURL() string {
	seg := o.portalSegment()
	return fmt.Sprintf("%s/campus/nav-wrapper/%s/portal/%s/home?appName=%s", o.base(), seg, seg, o.AppName)
}

func (o Options) GradesURL() string {
	seg := o.portalSegment()
	return fmt.Sprintf("%s/campus/nav-wrapper/%s/portal/%s/grades?appName=%s", o.base(), seg, seg, o.AppName)
}

func (o Options) role() Role {
	if o.Role == "" {
		return Parents
	}
	return o.Role
}

func (o Options) label() string {
	if o.Label == "" {
		return DefaultLabel
	}
	return o.Label
}

// Engine is created per job, it remembers the student name given at login
// so the grades of siblings on a parent account can be told apart.
type Engine struct {
	opts Options
	tel  telemetry.API

	studentName string
}

// Factory returns a portal.Factory producing engines for the given portal.
func Factory(opts Options, tel telemetry.API) portal.Factory {
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.Key)
	assert.NotEmptyStr(opts.BaseURL)
	assert.NotEmptyStr(opts.AppName)

	if opts.Clock == nil {
		opts.Clock = timezone.StandardClock{}
	}
	tel = telemetry.NewScopedAPI(opts.Key, tel)
	return func() portal.Engine {
		return &Engine{opts: opts, tel: tel}
	}
}

func (e *Engine) Login(ctx context.Context, session portal.Session, req portal.LoginRequest) error {
	s, err := browser.From(session)
	if err != nil {
		return err
	}
	e.studentName = req.DisambiguationName

	if e.opts.Gateway != nil {
		err = e.gatewayLogin(ctx, s, req)
		if err != nil {
			return err
		}
		return e.enterCampus(ctx, s)
	}
	return e.campusLogin(ctx, s, req.Credentials)
}

// FetchGrades reads the notification feed on the home page, falling back
// to the grade cards of the grades page when the feed has no matching
// grade.
func (e *Engine) FetchGrades(ctx context.Context, session portal.Session) (portal.RawGradePayload, error) {
	s, err := browser.From(session)
	if err != nil {
		return nil, err
	}

	home := s.Current()
	if !isHome(home) {
		home, err = s.Navigate(ctx, e.opts.HomeURL())
		if err != nil {
			return nil, err
		}
	}
	if !isHome(home) {
		e.tel.ReportWarning(report_engine_fetch_grades, "not on home page", home.URL.String())
		return nil, portal.Transientf("fetch-grades", "expected the home page, landed on %s", home.URL.Path)
	}

	filter := aggregate.LabelFilter(e.opts.label())
	events := ParseNotifications(home.Doc, e.studentName)
	for _, ev := range events {
		if filter(ev) {
			return portal.EventStream{
				Events: events,
				Filter: filter,
				Now:    e.opts.Clock.Now(),
			}, nil
		}
	}

	e.tel.ReportDebug("no matching notifications, reading grade cards", len(events))
	grades, err := s.Navigate(ctx, e.opts.GradesURL())
	if err != nil {
		return nil, err
	}
	snapshot := ParseGradeCards(grades.Doc, e.opts.label())
	if len(snapshot) == 0 {
		e.tel.ReportWarning(report_engine_fetch_grades, "no grades found", grades.URL.String())
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

func isHome(page *browser.Page) bool {
	return page != nil && page.URLContains("/home")
}
