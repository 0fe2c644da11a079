package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"portalgrades/internal/portal"
	"portalgrades/internal/telemetry"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "hunter2" {
			w.Write([]byte(`<div class="error">Invalid</div>`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil || c.Value != "abc" {
			w.Write([]byte(`<p id="who">anonymous</p>`))
			return
		}
		w.Write([]byte(`<p id="who">student</p><a href="grades">grades</a>`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func acquire(t *testing.T) *Session {
	provider, err := NewProvider(Options{}, &telemetry.MemoryAPI{})
	require.NoError(t, err)
	sess, err := provider.Acquire(context.Background(), portal.StudentJob{DatabaseID: 1, PortalKey: "test"})
	require.NoError(t, err)
	s, err := From(sess)
	require.NoError(t, err)
	return s
}

func TestSubmitFollowsRedirectAndKeepsCookies(t *testing.T) {
	server := newTestServer(t)
	s := acquire(t)
	ctx := context.Background()

	page, err := s.Submit(ctx, server.URL+"/login", url.Values{"password": {"hunter2"}})
	require.NoError(t, err)
	require.True(t, page.URLContains("/home"))
	require.Equal(t, "student", page.Doc.Find("#who").Text())

	resolved, err := s.Resolve("grades")
	require.NoError(t, err)
	require.Equal(t, server.URL+"/grades", resolved)

	require.NoError(t, s.Close())
	require.Nil(t, s.Current())

	page, err = s.Navigate(ctx, server.URL+"/home")
	require.NoError(t, err)
	require.Equal(t, "anonymous", page.Doc.Find("#who").Text())
}

func TestServerErrorIsTransient(t *testing.T) {
	server := newTestServer(t)
	s := acquire(t)

	_, err := s.Navigate(context.Background(), server.URL+"/broken")
	require.True(t, portal.IsTransient(err))
}

func TestUnreachableIsTransient(t *testing.T) {
	s := acquire(t)
	_, err := s.Navigate(context.Background(), "http://127.0.0.1:1/")
	require.True(t, portal.IsTransient(err))
}

type otherSession struct{}

func (otherSession) Close() error { return nil }

func TestFromRejectsOtherSessions(t *testing.T) {
	_, err := From(otherSession{})
	require.Error(t, err)
}
