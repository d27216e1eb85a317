package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
	"github.com/xkilldash9x/cartwright/internal/config"
)

// Page is the single browser tab a run drives. It implements
// schemas.BrowserContext.
type Page struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	// pendingStorage holds a restored localStorage snapshot until the next
	// navigation lands on the site origin, where it can legally be written.
	pendingStorage map[string]map[string]string

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.BrowserContext = (*Page)(nil)

func newPage(initCtx, allocCtx context.Context, cfg *config.Config, logger *zap.Logger) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	pageID := uuid.New().String()
	p := &Page{
		id:     pageID,
		ctx:    tabCtx,
		cancel: cancel,
		logger: logger.Named("page").With(zap.String("page_id", pageID)),
		cfg:    cfg,
	}

	// Force target creation so failures surface here, not on first use.
	createCtx, cancelCreate := combineContext(tabCtx, initCtx)
	defer cancelCreate()
	if err := chromedp.Run(createCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect page target: %w", err)
	}
	return p, nil
}

// ID returns the unique identifier for the page context.
func (p *Page) ID() string {
	return p.id
}

// Navigate loads the URL, waits for the DOM to be ready, then applies any
// pending restored storage and lets the page settle.
func (p *Page) Navigate(ctx context.Context, rawurl string) error {
	navCtx, cancel := p.opContext(ctx, p.cfg.Browser.NavigationTimeout)
	defer cancel()

	p.logger.Debug("Navigating.", zap.String("url", rawurl))
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(rawurl),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", rawurl, err)
	}

	p.applyPendingStorage(navCtx)

	if settle := p.cfg.Browser.SettleWait; settle > 0 {
		select {
		case <-time.After(settle):
		case <-navCtx.Done():
			return navCtx.Err()
		}
	}
	return nil
}

// CurrentURL returns the location of the active page.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	opCtx, cancel := p.opContext(ctx, 10*time.Second)
	defer cancel()

	var loc string
	if err := chromedp.Run(opCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return loc, nil
}

// Evaluate runs a JavaScript expression in the page. out may be nil when the
// result is not needed.
func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	opCtx, cancel := p.opContext(ctx, 30*time.Second)
	defer cancel()

	if err := chromedp.Run(opCtx, chromedp.Evaluate(expression, out)); err != nil {
		return fmt.Errorf("page evaluation failed: %w", err)
	}
	return nil
}

// PageExcerpt returns a whitespace-collapsed text rendering of the visible
// page, truncated to limit runes.
func (p *Page) PageExcerpt(ctx context.Context, limit int) (string, error) {
	var text string
	if err := p.Evaluate(ctx, `document.body ? document.body.innerText : ""`, &text); err != nil {
		return "", err
	}
	text = strings.Join(strings.Fields(text), " ")
	if limit > 0 {
		if r := []rune(text); len(r) > limit {
			text = string(r[:limit])
		}
	}
	return text, nil
}

// HarvestSession collects cookies and localStorage into a SessionRecord for
// the given key pair. Cookies come from CDP; localStorage is read via JS on
// the current origin.
func (p *Page) HarvestSession(ctx context.Context, siteKey, accountKey string) (*schemas.SessionRecord, error) {
	opCtx, cancel := p.opContext(ctx, 30*time.Second)
	defer cancel()

	var cookies []*network.Cookie
	local := map[string]string{}

	err := chromedp.Run(opCtx,
		chromedp.ActionFunc(func(c context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(c)
			return err
		}),
		chromedp.Evaluate(jsReadStorage("localStorage"), &local),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to harvest session state: %w", err)
	}

	now := time.Now().UTC()
	rec := &schemas.SessionRecord{
		SiteKey:        siteKey,
		AccountKey:     accountKey,
		Cookies:        make([]schemas.Cookie, 0, len(cookies)),
		CreatedAt:      now,
		LastVerifiedAt: now,
	}
	for _, c := range cookies {
		rec.Cookies = append(rec.Cookies, schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	if len(local) > 0 {
		rec.Storage = map[string]map[string]string{"localStorage": local}
	}

	p.logger.Debug("Session state harvested.",
		zap.String("site", siteKey),
		zap.Int("cookies", len(rec.Cookies)),
		zap.Int("local_storage_keys", len(local)))
	return rec, nil
}

// RestoreSession injects a previously harvested record. Cookies are set
// browser-wide immediately; localStorage is deferred until the next
// navigation reaches the site, where the origin exists to write into.
func (p *Page) RestoreSession(ctx context.Context, rec *schemas.SessionRecord) error {
	if rec == nil {
		return fmt.Errorf("cannot restore a nil session record")
	}

	opCtx, cancel := p.opContext(ctx, 30*time.Second)
	defer cancel()

	params := make([]*network.CookieParam, 0, len(rec.Cookies))
	for _, c := range rec.Cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			param.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &exp
		}
		params = append(params, param)
	}

	if err := chromedp.Run(opCtx, chromedp.ActionFunc(func(c context.Context) error {
		return storage.SetCookies(params).Do(c)
	})); err != nil {
		return fmt.Errorf("failed to restore cookies: %w", err)
	}

	p.mu.Lock()
	p.pendingStorage = rec.Storage
	p.mu.Unlock()

	p.logger.Debug("Session state restored.",
		zap.String("site", rec.SiteKey),
		zap.Int("cookies", len(params)))
	return nil
}

// Close tears the page context down.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return nil
	}
	p.isClosed = true
	p.mu.Unlock()

	p.logger.Debug("Closing page context.")
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// applyPendingStorage writes a deferred localStorage snapshot once a
// navigation has landed on an origin. Best effort: a SecurityError must not
// fail the navigation.
func (p *Page) applyPendingStorage(ctx context.Context) {
	p.mu.Lock()
	pending := p.pendingStorage
	p.pendingStorage = nil
	p.mu.Unlock()

	local := pending["localStorage"]
	if len(local) == 0 {
		return
	}

	for key, value := range local {
		script := fmt.Sprintf(`try { window.localStorage.setItem(%q, %q); } catch (e) {} null`, key, value)
		if err := chromedp.Run(ctx, chromedp.Evaluate(script, nil)); err != nil {
			p.logger.Debug("Could not restore localStorage entry.", zap.String("key", key), zap.Error(err))
			return
		}
	}
	p.logger.Debug("Restored localStorage snapshot.", zap.Int("keys", len(local)))
}

// opContext bounds an operation by the page lifetime, the caller's context,
// and a timeout.
func (p *Page) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	combined, cancelCombined := combineContext(p.ctx, ctx)
	if timeout <= 0 {
		return combined, cancelCombined
	}
	timed, cancelTimed := context.WithTimeout(combined, timeout)
	return timed, func() {
		cancelTimed()
		cancelCombined()
	}
}

func jsReadStorage(storageType string) string {
	return fmt.Sprintf(`(function() {
        let items = {};
        try {
            const s = window.%s;
            if (s) {
                for (let i = 0; i < s.length; i++) {
                    const k = s.key(i);
                    if (k) { items[k] = s.getItem(k); }
                }
            }
        } catch (e) { /* SecurityError or storage disabled */ }
        return items;
    })()`, storageType)
}

// combineContext derives a context carrying the page context's CDP values
// that is cancelled when either parent ends.
func combineContext(pageCtx, callCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(pageCtx)
	if callCtx == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(callCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
