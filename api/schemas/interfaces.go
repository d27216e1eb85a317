package schemas

import (
	"context"
	"time"
)

// BrowserContext is the single browser context a run owns. Navigation and
// evaluation block until the page settles or ctx expires.
type BrowserContext interface {
	// Navigate loads the URL and waits for the page to settle.
	Navigate(ctx context.Context, rawurl string) error
	// CurrentURL returns the location of the active page.
	CurrentURL(ctx context.Context) (string, error)
	// Evaluate runs a JavaScript expression in the page and unmarshals the
	// result into out (may be nil).
	Evaluate(ctx context.Context, expression string, out any) error
	// PageExcerpt returns a truncated text rendering of the visible page,
	// used as context for executor intents.
	PageExcerpt(ctx context.Context, limit int) (string, error)
	// HarvestSession collects cookies and localStorage into a SessionRecord.
	HarvestSession(ctx context.Context, siteKey, accountKey string) (*SessionRecord, error)
	// RestoreSession injects a previously harvested record into the context.
	RestoreSession(ctx context.Context, rec *SessionRecord) error
	// Close tears the context down.
	Close(ctx context.Context) error
}

// LoginEvidence is one re-evaluated snapshot of the page signals used to
// decide whether the context is authenticated. The predicate is a logical OR
// across independent probes; no single probe is mandatory.
type LoginEvidence struct {
	AccountIndicator     bool
	Greeting             bool
	SignOutControl       bool
	AccountPageReachable bool
	// LoginRedirect is set when a probe landed on a login form instead of
	// the page it asked for. It is negative evidence, not part of the OR.
	LoginRedirect bool
	ObservedAt    time.Time
}

// Satisfied reports whether any positive probe fired.
func (e LoginEvidence) Satisfied() bool {
	return e.AccountIndicator || e.Greeting || e.SignOutControl || e.AccountPageReachable
}

// CartEvidence is the success probe run after an add-to-cart intent. It is
// independent from login evidence.
type CartEvidence struct {
	CountIncreased bool
	Confirmation   bool
	ItemOnCartPage bool
	LoginRedirect  bool
}

// Satisfied reports whether the mutation is observably successful.
func (e CartEvidence) Satisfied() bool {
	return e.CountIncreased || e.Confirmation || e.ItemOnCartPage
}

// EvidenceProber evaluates verification evidence against the live page.
// Implementations must re-probe on every call, never cache: page state
// changes between checks.
type EvidenceProber interface {
	ProbeLogin(ctx context.Context) (LoginEvidence, error)
	ProbeCart(ctx context.Context, item ShoppingItem, baseline int) (CartEvidence, error)
	// CartCount returns the current cart badge count, or -1 when the page
	// exposes none. Used to take the baseline before a mutation.
	CartCount(ctx context.Context) (int, error)
}

// SessionStore persists SessionRecords keyed by (site, account). Load
// signals absence explicitly instead of erroring. Not safe for concurrent
// writers to the same key; callers serialize runs per (site, account).
type SessionStore interface {
	Load(siteKey, accountKey string) (*SessionRecord, bool, error)
	Save(rec *SessionRecord) error
	Delete(siteKey, accountKey string) error
}
