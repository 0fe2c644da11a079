package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"portalgrades/internal/aggregate"
	"portalgrades/internal/browser"
	"portalgrades/internal/portal"
	"portalgrades/internal/results"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const loginForm = `<html><body><form action="/session" method="post">
<input name="username"><input name="password" type="password">
</form></body></html>`

type fakePortal struct {
	server  *httptest.Server
	logouts atomic.Int32
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{}
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loginForm))
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "secret" {
			http.Redirect(w, r, "/login?failed=1", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>welcome</body></html>`))
	})
	mux.HandleFunc("/grades", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("sid")
		if err != nil || cookie.Value != "ok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.Write([]byte(`<table><tr><td class="subject">Chemistry</td><td class="grade">91.5</td></tr></table>`))
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		p.logouts.Add(1)
		w.Write([]byte(`<html><body>bye</body></html>`))
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

// pageEngine drives a fakePortal through a real browser session.
type pageEngine struct {
	base string
}

func (e pageEngine) Login(ctx context.Context, session portal.Session, req portal.LoginRequest) error {
	s, err := browser.From(session)
	if err != nil {
		return err
	}
	page, err := s.Navigate(ctx, e.base+"/login")
	if err != nil {
		return err
	}
	action, _ := page.Doc.Find("form").Attr("action")
	page, err = s.Submit(ctx, action, url.Values{
		"username": {req.Credentials.Username},
		"password": {req.Credentials.Secret},
	})
	if err != nil {
		return err
	}
	if page.URLContains("/login") {
		return portal.NewAuthError("page", "login form came back")
	}
	return nil
}

func (e pageEngine) FetchGrades(ctx context.Context, session portal.Session) (portal.RawGradePayload, error) {
	s, err := browser.From(session)
	if err != nil {
		return nil, err
	}
	page, err := s.Navigate(ctx, e.base+"/grades")
	if err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(page.Doc.Find("td.subject").Text())
	value, err := strconv.ParseFloat(strings.TrimSpace(page.Doc.Find("td.grade").Text()), 64)
	if err != nil {
		return nil, err
	}
	return portal.Snapshot{Subjects: aggregate.GradeSnapshot{subject: aggregate.Percentage(value)}}, nil
}

func (e pageEngine) Logout(ctx context.Context, session portal.Session) {
	s, err := browser.From(session)
	if err != nil {
		return
	}
	s.Navigate(ctx, e.base+"/logout")
}

func TestBrowserSessionEndToEnd(t *testing.T) {
	fake := newFakePortal(t)
	h := newHarness()
	provider, err := browser.NewProvider(browser.Options{Timeout: 5 * time.Second}, h.tel)
	require.NoError(t, err)
	h.provider = provider
	h.reg.MustRegister("page", func() portal.Engine {
		return pageEngine{base: fake.server.URL}
	})

	rejected := job(2, "page")
	rejected.Credentials.Secret = "wrong"

	summary, err := h.runner(t).Run(context.Background(), []portal.StudentJob{job(1, "page"), rejected})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.ByKind[results.KindAuthentication])

	byID := map[int64]results.JobResult{}
	for _, result := range h.sink.Results() {
		byID[result.DatabaseID] = result
	}
	require.Equal(t, results.Success, byID[1].Outcome, "failure: %+v", byID[1].Failure)
	require.Empty(t, cmp.Diff(aggregate.GradeSnapshot{
		"Chemistry": aggregate.Percentage(91.5),
	}, byID[1].Subjects))
	require.Equal(t, results.KindAuthentication, byID[2].Failure.Kind)

	require.Equal(t, map[int64]bool{2: false}, h.health.updates)
	require.EqualValues(t, 2, fake.logouts.Load())
}

func TestLogoutPanicKeepsResult(t *testing.T) {
	h := newHarness()
	h.reg.MustRegister("ic", func() portal.Engine {
		return fakeEngine{
			fetch: func(ctx context.Context) (portal.RawGradePayload, error) {
				return portal.Snapshot{Subjects: aggregate.GradeSnapshot{"MATH": aggregate.Letter("B")}}, nil
			},
			logout: func() { panic("logout blew up") },
		}
	})

	summary, err := h.runner(t).Run(context.Background(), []portal.StudentJob{job(1, "ic")})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	got := h.sink.Results()[0]
	require.Equal(t, results.Success, got.Outcome)
	require.Nil(t, got.Failure)
	require.True(t, h.sessions.acquired()[0].closed.Load())
}
