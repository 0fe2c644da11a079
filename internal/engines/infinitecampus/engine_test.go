package infinitecampus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"portalgrades/internal/aggregate"
	"portalgrades/internal/browser"
	"portalgrades/internal/portal"
	"portalgrades/internal/telemetry"
	"portalgrades/lib/timezone"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(content)
}

func fixtureDoc(t *testing.T, name string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fixture(t, name)))
	require.NoError(t, err)
	return doc
}

type fakeCampus struct {
	t      *testing.T
	server *httptest.Server

	home   string
	grades string

	mu        sync.Mutex
	picks     []string
	loggedOff bool
	requests  int
}

func newFakeCampus(t *testing.T) *fakeCampus {
	c := &fakeCampus{t: t, home: "home.html", grades: "grades.html"}

	mux := http.NewServeMux()
	mux.HandleFunc("/campus/portal/parents/ala.jsp", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") == "logoff" {
			c.mu.Lock()
			c.loggedOff = true
			c.mu.Unlock()
		}
		page := fixture(t, "login.html")
		page = strings.ReplaceAll(page, "{{ERROR}}", "")
		w.Write([]byte(page))
	})
	mux.HandleFunc("/campus/verify.jsp", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "ala", r.PostForm.Get("appName"))
		require.Empty(t, r.PostForm.Get("signin"))

		switch r.PostForm.Get("password") {
		case "good":
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ok", Path: "/"})
			http.Redirect(w, r, "/campus/nav-wrapper/parent/portal/parent/home?appName=ala", http.StatusFound)
		case "maintenance":
			w.Write([]byte(`<h1>Scheduled maintenance</h1>`))
		default:
			http.Redirect(w, r, "/campus/portal/parents/ala.jsp?status=password-error", http.StatusFound)
		}
	})
	mux.HandleFunc("/campus/nav-wrapper/parent/portal/parent/home", func(w http.ResponseWriter, r *http.Request) {
		if !c.authenticated(r) {
			http.Redirect(w, r, "/campus/portal/parents/ala.jsp", http.StatusFound)
			return
		}
		w.Write([]byte(fixture(t, c.home)))
	})
	mux.HandleFunc("/campus/nav-wrapper/parent/portal/parent/grades", func(w http.ResponseWriter, r *http.Request) {
		if !c.authenticated(r) {
			http.Redirect(w, r, "/campus/portal/parents/ala.jsp", http.StatusFound)
			return
		}
		w.Write([]byte(fixture(t, c.grades)))
	})

	mux.HandleFunc("/gateway", func(w http.ResponseWriter, r *http.Request) {
		page := strings.ReplaceAll(fixture(t, "gateway_login.html"), "{{ERROR}}", "")
		w.Write([]byte(page))
	})
	mux.HandleFunc("/authn", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("identification") != "jdoe" || r.PostForm.Get("password") != "good" {
			page := fixture(t, "gateway_login.html")
			page = strings.ReplaceAll(page, "{{ERROR}}", `<div class="alert-danger">Your username or password is incorrect</div>`)
			w.Write([]byte(page))
			return
		}
		w.Write([]byte(strings.ReplaceAll(fixture(t, "gateway_pictograph.html"), "{{STEP}}", "1")))
	})
	mux.HandleFunc("/pick", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.picks = append(c.picks, r.URL.Query().Get("img"))
		c.mu.Unlock()

		step := r.URL.Query().Get("step")
		switch step {
		case "1":
			w.Write([]byte(strings.ReplaceAll(fixture(t, "gateway_pictograph.html"), "{{STEP}}", "2")))
		case "2":
			w.Write([]byte(strings.ReplaceAll(fixture(t, "gateway_pictograph.html"), "{{STEP}}", "3")))
		default:
			w.Write([]byte(fixture(t, "gateway_apps.html")))
		}
	})
	mux.HandleFunc("/campus/sso", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/campus/nav-wrapper/parent/portal/parent/home?appName=ala", http.StatusFound)
	})

	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.requests++
		c.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(c.server.Close)
	return c
}

func (c *fakeCampus) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie("JSESSIONID")
	return err == nil && cookie.Value == "ok"
}

var testNow = time.Date(2024, 3, 14, 18, 0, 0, 0, timezone.Location)

func (c *fakeCampus) options() Options {
	return Options{
		Key:     "infinite_campus_parent_test",
		BaseURL: c.server.URL,
		AppName: "ala",
		Role:    Parents,
		Clock:   timezone.FixedClock(testNow),
	}
}

func newSession(t *testing.T) portal.Session {
	provider, err := browser.NewProvider(browser.Options{Timeout: 5 * time.Second}, &telemetry.MemoryAPI{})
	require.NoError(t, err)
	session, err := provider.Acquire(context.Background(), portal.StudentJob{DatabaseID: 1, PortalKey: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func pct(v float64) *float64 {
	return &v
}

func TestOptionsURLs(t *testing.T) {
	opts := Options{BaseURL: "https://alaaz.infinitecampus.org/", AppName: "ala"}
	require.Equal(t, "https://alaaz.infinitecampus.org/campus/portal/parents/ala.jsp", opts.LoginURL())
	require.Equal(t, "https://alaaz.infinitecampus.org/campus/portal/parents/ala.jsp?status=logoff", opts.LogoffURL())
	require.Equal(t, "https://alaaz.infinitecampus.org/campus/nav-wrapper/parent/portal/parent/home?appName=ala", opts.HomeURL())

	opts.Role = Students
	opts.AppName = "coral"
	require.Equal(t, "https://alaaz.infinitecampus.org/campus/portal/students/coral.jsp", opts.LoginURL())
	require.Equal(t, "https://alaaz.infinitecampus.org/campus/nav-wrapper/student/portal/student/grades?appName=coral", opts.GradesURL())
}

func TestLoginAndFetchNotifications(t *testing.T) {
	campus := newFakeCampus(t)
	engine := Factory(campus.options(), &telemetry.MemoryAPI{})()
	session := newSession(t)
	ctx := context.Background()

	err := engine.Login(ctx, session, portal.LoginRequest{
		Credentials:        portal.Credentials{Username: "jdoe", Secret: "good"},
		DisambiguationName: "Jane Doe",
	})
	require.NoError(t, err)

	payload, err := engine.FetchGrades(ctx, session)
	require.NoError(t, err)
	stream, ok := payload.(portal.EventStream)
	require.True(t, ok, "expected an event stream, got %T", payload)
	require.Equal(t, testNow, stream.Now)
	require.Len(t, stream.Events, 4)

	snapshot := aggregate.Reduce(aggregate.Resolve(stream.Events, stream.Now), stream.Filter)
	expected := aggregate.GradeSnapshot{
		"ALGEBRA II": aggregate.Percentage(61.9),
		"ART 1":      aggregate.Letter("A"),
	}
	require.Empty(t, cmp.Diff(expected, snapshot))

	engine.Logout(ctx, session)
	campus.mu.Lock()
	defer campus.mu.Unlock()
	require.True(t, campus.loggedOff)
}

func TestFetchFallsBackToGradeCards(t *testing.T) {
	campus := newFakeCampus(t)
	campus.home = "home_empty.html"
	engine := Factory(campus.options(), &telemetry.MemoryAPI{})()
	session := newSession(t)
	ctx := context.Background()

	require.NoError(t, engine.Login(ctx, session, portal.LoginRequest{
		Credentials: portal.Credentials{Username: "jdoe", Secret: "good"},
	}))

	payload, err := engine.FetchGrades(ctx, session)
	require.NoError(t, err)
	snapshot, ok := payload.(portal.Snapshot)
	require.True(t, ok, "expected a snapshot, got %T", payload)

	expected := aggregate.GradeSnapshot{
		"ENGLISH 7": aggregate.Percentage(96.5),
		"SCIENCE 7": aggregate.Letter("B-"),
	}
	require.Empty(t, cmp.Diff(expected, snapshot.Subjects))
}

func TestRejectedLoginIsAuthError(t *testing.T) {
	campus := newFakeCampus(t)
	engine := Factory(campus.options(), &telemetry.MemoryAPI{})()

	err := engine.Login(context.Background(), newSession(t), portal.LoginRequest{
		Credentials: portal.Credentials{Username: "jdoe", Secret: "wrong"},
	})
	require.Error(t, err)
	require.True(t, portal.IsAuth(err), "got %v", err)
	require.False(t, portal.IsTransient(err))
}

func TestUnexpectedLandingIsTransient(t *testing.T) {
	campus := newFakeCampus(t)
	tel := &telemetry.MemoryAPI{}
	engine := Factory(campus.options(), tel)()

	err := engine.Login(context.Background(), newSession(t), portal.LoginRequest{
		Credentials: portal.Credentials{Username: "jdoe", Secret: "maintenance"},
	})
	require.Error(t, err)
	require.True(t, portal.IsTransient(err), "got %v", err)
	require.False(t, portal.IsAuth(err))
	require.NotEmpty(t, tel.Find("warning", "infinite_campus_parent_test: "+report_engine_login))
}

func TestUnreachablePortalIsTransient(t *testing.T) {
	campus := newFakeCampus(t)
	opts := campus.options()
	campus.server.Close()

	err := Factory(opts, &telemetry.MemoryAPI{})().Login(context.Background(), newSession(t), portal.LoginRequest{
		Credentials: portal.Credentials{Username: "jdoe", Secret: "good"},
	})
	require.True(t, portal.IsTransient(err), "got %v", err)
}

func gatewayOptions(campus *fakeCampus) Options {
	opts := campus.options()
	opts.Gateway = &GatewayOptions{
		LoginURL:      campus.server.URL + "/gateway",
		CampusTileAlt: "STUDENT INFINITE CAMPUS",
	}
	return opts
}

func TestGatewayLogin(t *testing.T) {
	campus := newFakeCampus(t)
	engine := Factory(gatewayOptions(campus), &telemetry.MemoryAPI{})()
	session := newSession(t)
	ctx := context.Background()

	err := engine.Login(ctx, session, portal.LoginRequest{
		Credentials:          portal.Credentials{Username: "jdoe", Secret: "good"},
		AuxiliaryAuthFactors: []string{"Boat", "Tree", "Cat"},
	})
	require.NoError(t, err)
	campus.mu.Lock()
	require.Equal(t, []string{"boat", "boat", "boat"}, campus.picks)
	campus.mu.Unlock()

	payload, err := engine.FetchGrades(ctx, session)
	require.NoError(t, err)
	require.IsType(t, portal.EventStream{}, payload)
}

func TestGatewayRequiresPictures(t *testing.T) {
	campus := newFakeCampus(t)
	engine := Factory(gatewayOptions(campus), &telemetry.MemoryAPI{})()

	err := engine.Login(context.Background(), newSession(t), portal.LoginRequest{
		Credentials: portal.Credentials{Username: "jdoe", Secret: "good"},
	})
	require.True(t, portal.IsTransient(err), "got %v", err)
	require.False(t, portal.IsAuth(err))

	campus.mu.Lock()
	defer campus.mu.Unlock()
	require.Zero(t, campus.requests)
}

func TestGatewayRejectedPassword(t *testing.T) {
	campus := newFakeCampus(t)
	engine := Factory(gatewayOptions(campus), &telemetry.MemoryAPI{})()

	err := engine.Login(context.Background(), newSession(t), portal.LoginRequest{
		Credentials:          portal.Credentials{Username: "jdoe", Secret: "nope"},
		AuxiliaryAuthFactors: []string{"cat"},
	})
	require.True(t, portal.IsAuth(err), "got %v", err)
}

func TestGatewayUnknownPicturesIsTransient(t *testing.T) {
	campus := newFakeCampus(t)
	engine := Factory(gatewayOptions(campus), &telemetry.MemoryAPI{})()

	err := engine.Login(context.Background(), newSession(t), portal.LoginRequest{
		Credentials:          portal.Credentials{Username: "jdoe", Secret: "good"},
		AuxiliaryAuthFactors: []string{"rocket"},
	})
	require.True(t, portal.IsTransient(err), "got %v", err)
}

func TestParseNotifications(t *testing.T) {
	doc := fixtureDoc(t, "home.html")

	all := ParseNotifications(doc, "")
	require.Len(t, all, 5)

	events := ParseNotifications(doc, "Jane Doe")
	expected := []aggregate.GradeEvent{
		{Subject: "ALGEBRA II", Label: "Semester Grade", RawTimestamp: "Today 3:15 PM", Letter: "D", Percentage: pct(61.9)},
		{Subject: "ALGEBRA II", Label: "Semester Grade", RawTimestamp: "Yesterday 9:00 AM", Letter: "B", Percentage: pct(85)},
		{Subject: "ART 1", Label: "Semester Grade", RawTimestamp: "Tue, 03/12/24", Letter: "A"},
		{Subject: "ART 1", Label: "Quarter Grade", RawTimestamp: "Today 4:00 PM", Percentage: pct(97)},
	}
	require.Empty(t, cmp.Diff(expected, events))
}

func TestNormalizeCourse(t *testing.T) {
	require.Equal(t, "ENGLISH 7", normalizeCourse("IN English 7 - A"))
	require.Equal(t, "INTRO TO ART", normalizeCourse("Intro to Art"))
	require.Equal(t, "ALGEBRA II", normalizeCourse("  algebra II - B+ "))
}
