package infinitecampus

import (
	"context"
	"strings"

	"portalgrades/internal/browser"
	"portalgrades/internal/portal"
	"portalgrades/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const report_engine_gateway = "engine.gateway"

// GatewayOptions describe a single sign on portal in front of the campus
// that asks for a username, a password and then a few picture passwords.
type GatewayOptions struct {
	LoginURL string
	// Picks is how many pictures have to be chosen, 3 if zero.
	Picks int
	// CampusTileAlt is the alt text of the tile linking to the campus, the
	// campus home page is opened directly when it is missing.
	CampusTileAlt string
}

const tileSelector = ".pictograph-list img.tile-icon"

func (g GatewayOptions) picks() int {
	if g.Picks <= 0 {
		return 3
	}
	return g.Picks
}

func (e *Engine) gatewayLogin(ctx context.Context, s *browser.Session, req portal.LoginRequest) error {
	gateway := e.opts.Gateway
	if len(req.AuxiliaryAuthFactors) == 0 {
		// nothing was sent, the credentials are neither good nor bad yet
		return portal.Transientf("gateway-login", "%s: picture passwords are required but none are on file", e.opts.Key)
	}

	page, err := s.Navigate(ctx, gateway.LoginURL)
	if err != nil {
		return err
	}

	// username and password may be asked for on the same page or one
	// after the other
	for step := 0; step < 2 && page.Doc.Find(tileSelector).Length() == 0; step++ {
		form := page.Doc.Find("input[type=password], input[name=identification]").First().Closest("form")
		if form.Length() == 0 {
			break
		}
		page, err = submitGatewayStep(ctx, s, page, form, req.Credentials)
		if err != nil {
			return err
		}
		if message, rejected := rejection(page); rejected {
			return portal.NewAuthError(e.opts.Key, message)
		}
	}

	for pick := 0; pick < gateway.picks(); pick++ {
		tiles := page.Doc.Find(tileSelector)
		if tiles.Length() == 0 {
			e.tel.ReportWarning(report_engine_gateway, "pictograph missing", pick)
			return portal.Transientf("gateway", "expected picture passwords on pick %d", pick+1)
		}
		href, ok := matchTile(tiles, req.AuxiliaryAuthFactors)
		if !ok {
			return portal.Transientf("gateway", "none of the known pictures are offered on pick %d", pick+1)
		}
		page, err = s.Navigate(ctx, href)
		if err != nil {
			return err
		}
		if message, rejected := rejection(page); rejected {
			return portal.NewAuthError(e.opts.Key, message)
		}
	}
	return nil
}

func submitGatewayStep(ctx context.Context, s *browser.Session, page *browser.Page, form *goquery.Selection, creds portal.Credentials) (*browser.Page, error) {
	values := htmlutil.FormValues(form)
	if name, ok := form.Find("input[name=identification]").Attr("name"); ok {
		values.Set(name, creds.Username)
	}
	if name, ok := form.Find("input[type=password]").Attr("name"); ok {
		values.Set(name, creds.Secret)
	}
	return s.Submit(ctx, form.AttrOr("action", page.URL.String()), values)
}

// matchTile returns the link of the first offered tile whose alt text is
// one of the known pictures.
func matchTile(tiles *goquery.Selection, known []string) (string, bool) {
	offered := map[string]string{}
	tiles.Each(func(_ int, img *goquery.Selection) {
		alt := strings.ToLower(strings.TrimSpace(img.AttrOr("alt", "")))
		href, ok := img.Closest("a").Attr("href")
		if alt != "" && ok {
			offered[alt] = href
		}
	})
	for _, k := range known {
		if href, ok := offered[strings.ToLower(strings.TrimSpace(k))]; ok {
			return href, true
		}
	}
	return "", false
}

// enterCampus follows the campus tile of the gateway (if any) and lands
// on the campus home page.
func (e *Engine) enterCampus(ctx context.Context, s *browser.Session) error {
	if alt := e.opts.Gateway.CampusTileAlt; alt != "" && s.Current() != nil {
		link := s.Current().Doc.Find("img[alt='" + alt + "']").Closest("a")
		if href, ok := link.Attr("href"); ok {
			_, err := s.Navigate(ctx, href)
			if err != nil {
				return err
			}
		}
	}

	page, err := s.Navigate(ctx, e.opts.HomeURL())
	if err != nil {
		return err
	}
	return e.checkLanding(page)
}
