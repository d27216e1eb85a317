package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

// accountPaths are the conventional authenticated-only pages probed out of
// band. Any one reaching a non-login page with a 2xx counts as evidence.
var accountPaths = []string{"/account", "/my-account", "/orders"}

// HTTPProber checks whether account pages are reachable using the browser's
// cookies, without disturbing the page the run is driving.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewHTTPProber builds a prober with a redirect-following client. Redirects
// are followed so a bounce to the login form is visible in the final URL.
func NewHTTPProber(timeout time.Duration, logger *zap.Logger) *HTTPProber {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		timeout: timeout,
		logger:  logger.Named("http_prober"),
	}
}

// AccountReachable probes the site's account pages concurrently with the
// given cookies. It reports (reachable, loginRedirect): reachable when any
// path served an authenticated-looking page, loginRedirect when every probe
// bounced to a login form.
func (p *HTTPProber) AccountReachable(ctx context.Context, siteKey string, cookies []schemas.Cookie) (bool, bool, error) {
	if siteKey == "" {
		return false, false, fmt.Errorf("http probe requires a site key")
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		mu         sync.Mutex
		reachable  bool
		redirects  int
		completed  int
		headerVals = cookieHeader(cookies)
	)

	g, gctx := errgroup.WithContext(probeCtx)
	for _, path := range accountPaths {
		path := path
		g.Go(func() error {
			ok, redirected, err := p.probeOne(gctx, siteKey, path, headerVals)
			if err != nil {
				// One failed probe is not evidence either way.
				p.logger.Debug("Account probe request failed.",
					zap.String("path", path), zap.Error(err))
				return nil
			}
			mu.Lock()
			completed++
			if ok {
				reachable = true
			}
			if redirected {
				redirects++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, false, err
	}

	allRedirected := completed > 0 && redirects == completed
	return reachable, allRedirected, nil
}

func (p *HTTPProber) probeOne(ctx context.Context, siteKey, path, cookieHdr string) (bool, bool, error) {
	url := "https://" + siteKey + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, false, err
	}
	if cookieHdr != "" {
		req.Header.Set("Cookie", cookieHdr)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, false, err
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	if isLoginURL(finalURL) {
		return false, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, false, nil
	}

	// Cap the body read; account pages front-load their markers.
	body := io.LimitReader(resp.Body, 256*1024)
	looksLikeLogin, err := pageHasPasswordField(body)
	if err != nil {
		return false, false, err
	}
	if looksLikeLogin {
		return false, true, nil
	}
	return true, false, nil
}

// pageHasPasswordField streams the HTML looking for a password input, the
// most reliable marker of a login form.
func pageHasPasswordField(r io.Reader) (bool, error) {
	tok := html.NewTokenizer(r)
	for {
		switch tok.Next() {
		case html.ErrorToken:
			if tok.Err() == io.EOF {
				return false, nil
			}
			// Truncated bodies are expected under the read cap.
			return false, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tok.TagName()
			if string(name) != "input" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = tok.TagAttr()
				if string(key) == "type" && strings.EqualFold(string(val), "password") {
					return true, nil
				}
			}
		}
	}
}

// isLoginURL reports whether a final URL after redirects is a login page.
func isLoginURL(rawurl string) bool {
	lower := strings.ToLower(rawurl)
	for _, marker := range []string{"/login", "/signin", "/sign-in", "/ap/signin", "/identity", "/auth"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// cookieHeader renders harvested cookies into a Cookie header value.
// Domain and path scoping is left to the site; probes only hit its origin.
func cookieHeader(cookies []schemas.Cookie) string {
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
