package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

// jsLoginEvidence inspects the live DOM for authentication signals. Each
// field is an independent probe; the caller ORs the positives.
const jsLoginEvidence = `(() => {
    const count = (sel) => { try { return document.querySelectorAll(sel).length; } catch (e) { return 0; } };
    const accountElements = count('a[href*="account"], span[class*="account"], div[class*="account"], a[class*="account"], [aria-label*="account"], [id*="account"]');
    const userElements = count('span[class*="user"], div[class*="user"], span[id*="user"], div[id*="user"]');
    const signOutElements = count('a[href*="logout"], a[href*="signout"], [class*="logout"], [class*="signout"], [id*="logout"], [id*="signout"]');
    const passwordFields = count('input[type="password"]');
    const text = document.body ? document.body.innerText.slice(0, 5000) : '';
    const greeting = /\b(hello|hi|welcome back|welcome),?\s+[A-Za-z]/i.test(text) && !/\b(sign in|log in)\b/i.test(text.slice(0, 200));
    const href = (window.location && window.location.href) || '';
    const onLoginPage = passwordFields > 0 || /\/(login|signin|sign-in|ap\/signin|identity)/i.test(href);
    return {
        account_indicator: accountElements > 0 || userElements > 0,
        greeting: greeting,
        sign_out_control: signOutElements > 0,
        login_redirect: onLoginPage,
    };
})()`

// jsCartCount reads the cart badge. Returns -1 when the page exposes none,
// so a missing badge is never mistaken for an empty cart.
const jsCartCount = `(() => {
    const sels = ['#nav-cart-count', '[data-cart-count]', '[class*="cart-count"]', '[id*="cart-count"]', '[class*="cart-badge"]', '[class*="cart-quantity"]', '[aria-label*="cart"] [class*="count"]'];
    for (const sel of sels) {
        let el;
        try { el = document.querySelector(sel); } catch (e) { continue; }
        if (!el) continue;
        const raw = (el.getAttribute('data-cart-count') || el.textContent || '').replace(/[^0-9]/g, '');
        if (raw !== '') {
            const n = parseInt(raw, 10);
            if (!isNaN(n)) return n;
        }
    }
    return -1;
})()`

type loginEvidenceResult struct {
	AccountIndicator bool `json:"account_indicator"`
	Greeting         bool `json:"greeting"`
	SignOutControl   bool `json:"sign_out_control"`
	LoginRedirect    bool `json:"login_redirect"`
}

type cartEvidenceResult struct {
	Count         int  `json:"count"`
	Confirmation  bool `json:"confirmation"`
	OnCartPage    bool `json:"on_cart_page"`
	ItemListed    bool `json:"item_listed"`
	LoginRedirect bool `json:"login_redirect"`
}

// Prober evaluates verification evidence against the live page. In-page DOM
// probes come first; the out-of-band HTTP probe runs only when the DOM is
// inconclusive. Every call re-probes.
type Prober struct {
	page    schemas.BrowserContext
	http    *HTTPProber
	siteKey string
	logger  *zap.Logger
}

var _ schemas.EvidenceProber = (*Prober)(nil)

// NewProber wires a prober to the run's page context. httpProber may be nil
// to disable the out-of-band check.
func NewProber(page schemas.BrowserContext, httpProber *HTTPProber, siteKey string, logger *zap.Logger) *Prober {
	return &Prober{
		page:    page,
		http:    httpProber,
		siteKey: siteKey,
		logger:  logger.Named("prober"),
	}
}

// ProbeLogin evaluates the page for authentication signals and, when the DOM
// alone is inconclusive, probes account pages over HTTP with the context's
// current cookies.
func (p *Prober) ProbeLogin(ctx context.Context) (schemas.LoginEvidence, error) {
	var res loginEvidenceResult
	if err := p.page.Evaluate(ctx, jsLoginEvidence, &res); err != nil {
		return schemas.LoginEvidence{}, fmt.Errorf("login evidence probe failed: %w", err)
	}

	ev := schemas.LoginEvidence{
		AccountIndicator: res.AccountIndicator,
		Greeting:         res.Greeting,
		SignOutControl:   res.SignOutControl,
		LoginRedirect:    res.LoginRedirect,
		ObservedAt:       time.Now().UTC(),
	}

	if !ev.Satisfied() && p.http != nil {
		rec, err := p.page.HarvestSession(ctx, p.siteKey, schemas.AnonymousAccountKey)
		if err != nil {
			p.logger.Debug("Skipping HTTP account probe, cookie harvest failed.", zap.Error(err))
			return ev, nil
		}
		reachable, redirected, err := p.http.AccountReachable(ctx, p.siteKey, rec.Cookies)
		if err != nil {
			p.logger.Debug("HTTP account probe failed.", zap.Error(err))
			return ev, nil
		}
		ev.AccountPageReachable = reachable
		ev.LoginRedirect = ev.LoginRedirect || redirected
	}

	return ev, nil
}

// ProbeCart evaluates the page for add-to-cart success signals against the
// pre-mutation baseline count.
func (p *Prober) ProbeCart(ctx context.Context, item schemas.ShoppingItem, baseline int) (schemas.CartEvidence, error) {
	script := buildCartEvidenceScript(item.Name)
	var res cartEvidenceResult
	if err := p.page.Evaluate(ctx, script, &res); err != nil {
		return schemas.CartEvidence{}, fmt.Errorf("cart evidence probe failed: %w", err)
	}

	ev := schemas.CartEvidence{
		Confirmation:   res.Confirmation,
		ItemOnCartPage: res.OnCartPage && res.ItemListed,
		LoginRedirect:  res.LoginRedirect,
	}
	// A count increase only counts when a baseline existed; comparing
	// against -1 would treat a newly appearing badge as proof.
	if baseline >= 0 && res.Count > baseline {
		ev.CountIncreased = true
	}
	return ev, nil
}

// CartCount returns the current cart badge count, or -1 when the page
// exposes none.
func (p *Prober) CartCount(ctx context.Context) (int, error) {
	count := -1
	if err := p.page.Evaluate(ctx, jsCartCount, &count); err != nil {
		return -1, fmt.Errorf("cart count probe failed: %w", err)
	}
	return count, nil
}

// buildCartEvidenceScript renders the cart probe for one item. The item name
// is matched case-insensitively against the cart page body.
func buildCartEvidenceScript(itemName string) string {
	needle := strings.ToLower(strings.TrimSpace(itemName))
	return fmt.Sprintf(`(() => {
    const cartCount = %s;
    const text = document.body ? document.body.innerText : '';
    const lower = text.toLowerCase();
    const confirmation = /(added to (your )?cart|item added|in your cart|added to bag|added to basket)/i.test(text.slice(0, 8000));
    const href = (window.location && window.location.href) || '';
    const onCartPage = /\/(cart|basket|bag)\b/i.test(href);
    let passwordFields = 0;
    try { passwordFields = document.querySelectorAll('input[type="password"]').length; } catch (e) {}
    const loginRedirect = passwordFields > 0 || /\/(login|signin|sign-in|ap\/signin)/i.test(href);
    return {
        count: cartCount,
        confirmation: confirmation,
        on_cart_page: onCartPage,
        item_listed: lower.includes(%q),
        login_redirect: loginRedirect,
    };
})()`, jsCartCount, needle)
}
