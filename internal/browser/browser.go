// Package browser gives engines a cookie-carrying HTTP session that
// navigates pages and submits forms like a person with a browser would.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"portalgrades/internal/assert"
	"portalgrades/internal/portal"
	"portalgrades/internal/telemetry"
	libtelemetry "portalgrades/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	report_session_navigate = "session.navigate"
	report_session_submit   = "session.submit"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Page is a loaded document.
type Page struct {
	// URL is the final url after redirects.
	URL    *url.URL
	Status int
	Body   []byte
	Doc    *goquery.Document
}

// URLContains reports whether the page's final url contains any of parts.
func (p *Page) URLContains(parts ...string) bool {
	if p == nil || p.URL == nil {
		return false
	}
	u := p.URL.String()
	for _, part := range parts {
		if strings.Contains(u, part) {
			return true
		}
	}
	return false
}

// Session implements portal.Session.
type Session struct {
	http    *resty.Client
	current *Page
	tel     telemetry.API
}

func newSession(opts Options, tel telemetry.API) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", opts.userAgent())
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	client.SetTimeout(opts.timeout())

	libtelemetry.InstrumentResty(client, "portalgrades/internal/browser")
	telemetry.InstrumentResty(client, tel)

	return &Session{http: client, tel: tel}, nil
}

// From unwraps the Session handed to an engine.
func From(session portal.Session) (*Session, error) {
	s, ok := session.(*Session)
	if !ok || s == nil {
		return nil, fmt.Errorf("expected a browser session, got %T", session)
	}
	return s, nil
}

// Current is the last loaded page, nil before the first navigation.
func (s *Session) Current() *Page {
	return s.current
}

// Resolve resolves ref against the current page's url.
func (s *Session) Resolve(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if parsed.IsAbs() || s.current == nil || s.current.URL == nil {
		return parsed.String(), nil
	}
	return s.current.URL.ResolveReference(parsed).String(), nil
}

func (s *Session) load(res *resty.Response, err error) (*Page, error) {
	if err != nil {
		return nil, err
	}
	status := res.StatusCode()
	if status >= 500 || status == http.StatusTooManyRequests {
		return nil, fmt.Errorf("unexpected status %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	finalUrl := res.RawResponse.Request.URL
	doc.Url = finalUrl

	page := &Page{
		URL:    finalUrl,
		Status: status,
		Body:   res.Body(),
		Doc:    doc,
	}
	s.current = page
	return page, nil
}

func transient(step string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return portal.Transient(step, err)
}

// Navigate loads target (resolved against the current page). Transport
// failures and 5xx responses come back as *portal.TransientError.
func (s *Session) Navigate(ctx context.Context, target string) (*Page, error) {
	resolved, err := s.Resolve(target)
	if err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	page, err := s.load(s.http.R().SetContext(ctx).Get(resolved))
	if err != nil {
		s.tel.ReportWarning(report_session_navigate, resolved, err)
		return nil, transient("navigate", err)
	}
	return page, nil
}

// Submit posts form to action (resolved against the current page).
func (s *Session) Submit(ctx context.Context, action string, form url.Values) (*Page, error) {
	resolved, err := s.Resolve(action)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	page, err := s.load(
		s.http.R().
			SetContext(ctx).
			SetFormDataFromValues(form).
			Post(resolved),
	)
	if err != nil {
		s.tel.ReportWarning(report_session_submit, resolved, err)
		return nil, transient("submit", err)
	}
	return page, nil
}

// Close drops the session's cookies and idle connections.
func (s *Session) Close() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	s.http.SetCookieJar(jar)
	s.http.GetClient().CloseIdleConnections()
	s.current = nil
	return nil
}

type Options struct {
	Timeout   time.Duration
	UserAgent string
	// DumpDir, when set, receives a text file per http exchange.
	DumpDir string
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 30 * time.Second
	}
	return o.Timeout
}

func (o Options) userAgent() string {
	if o.UserAgent == "" {
		return defaultUserAgent
	}
	return o.UserAgent
}

// Provider hands out a fresh Session per job.
type Provider struct {
	opts Options
	tel  telemetry.API
	dump func(*resty.Client, string)
}

func NewProvider(opts Options, tel telemetry.API) (*Provider, error) {
	assert.NotNil(tel)

	p := &Provider{
		opts: opts,
		tel:  telemetry.NewScopedAPI("browser", tel),
	}
	if opts.DumpDir != "" {
		dump, err := newDumper(opts.DumpDir)
		if err != nil {
			return nil, err
		}
		p.dump = dump
	}
	return p, nil
}

func (p *Provider) Acquire(ctx context.Context, job portal.StudentJob) (portal.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := newSession(p.opts, p.tel)
	if err != nil {
		return nil, err
	}
	if p.dump != nil {
		p.dump(s.http, job.ID())
	}
	return s, nil
}
