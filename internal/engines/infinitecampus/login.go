package infinitecampus

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"portalgrades/internal/browser"
	"portalgrades/internal/portal"
	"portalgrades/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

var rejectedRegex = regexp.MustCompile(
	`(?i)(not successful|incorrect|invalid|not valid|does not match|locked|disabled)`,
)

const errorSelectors = ".has-error, .alert-danger, .error, .error-message, #errorMessage, [role=alert]"

// loginForm finds the form holding a password field, preferring form#login.
func loginForm(doc *goquery.Document) *goquery.Selection {
	form := doc.Find("form#login")
	if form.Length() > 0 {
		return form.First()
	}
	return doc.Find("input[type=password]").First().Closest("form")
}

// credentialFields returns the names of the username and password inputs
// of form.
func credentialFields(form *goquery.Selection) (user, pass string) {
	pass = form.Find("input[type=password]").First().AttrOr("name", "")
	for _, candidate := range []string{"username", "identification", "user", "login"} {
		if form.Find("input[name='"+candidate+"']").Length() > 0 {
			return candidate, pass
		}
	}
	user = form.Find("input[type=text], input[type=email], input:not([type])").First().AttrOr("name", "")
	return user, pass
}

// rejection returns the portal's error message when page positively says
// the credentials were wrong.
func rejection(page *browser.Page) (string, bool) {
	status := strings.ToLower(page.URL.Query().Get("status"))
	if strings.Contains(status, "error") || strings.Contains(status, "fail") {
		return "login rejected (" + status + ")", true
	}

	var message string
	page.Doc.Find(errorSelectors).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := htmlutil.Text(sel)
		if rejectedRegex.MatchString(text) {
			message = text
			return false
		}
		return true
	})
	return message, message != ""
}

func submitCredentials(ctx context.Context, s *browser.Session, page *browser.Page, creds portal.Credentials, step string) (*browser.Page, error) {
	form := loginForm(page.Doc)
	if form.Length() == 0 {
		return nil, portal.Transientf(step, "no login form on %s", page.URL.Path)
	}
	userField, passField := credentialFields(form)
	if userField == "" || passField == "" {
		return nil, portal.Transientf(step, "login form is missing credential fields")
	}

	values := htmlutil.FormValues(form)
	values.Set(userField, creds.Username)
	values.Set(passField, creds.Secret)
	return s.Submit(ctx, form.AttrOr("action", page.URL.String()), values)
}

func (e *Engine) campusLogin(ctx context.Context, s *browser.Session, creds portal.Credentials) error {
	page, err := s.Navigate(ctx, e.opts.LoginURL())
	if err != nil {
		return err
	}
	page, err = submitCredentials(ctx, s, page, creds, "login")
	if err != nil {
		return err
	}
	return e.checkLanding(page)
}

func (e *Engine) checkLanding(page *browser.Page) error {
	if isHome(page) {
		return nil
	}
	if message, rejected := rejection(page); rejected {
		e.tel.ReportDebug(report_engine_login, "credentials rejected", message)
		return portal.NewAuthError(e.opts.Key, message)
	}
	e.tel.ReportWarning(report_engine_login, "did not reach home", page.URL.String())
	return portal.Transientf("login", "landed on %s instead of the home page", redact(page.URL))
}

func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}
