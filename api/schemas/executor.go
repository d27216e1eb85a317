package schemas

import (
	"context"
	"errors"
)

// ErrExecutorUnavailable indicates the external action executor itself is
// broken (auth failure, network down, provider outage). This is an
// environment problem, not a page-state problem: callers escalate it as a
// fatal run error and never retry the item.
var ErrExecutorUnavailable = errors.New("action executor unavailable")

// ExecStatus is the coarse outcome the controller understands. Everything
// finer grained stays inside the executor.
type ExecStatus string

const (
	ExecSuccess  ExecStatus = "success"
	ExecNotFound ExecStatus = "not_found"
	// ExecBlocked means the executor hit something it cannot traverse on its
	// own: an OTP challenge, a captcha, an unexpected verification page.
	ExecBlocked ExecStatus = "blocked"
	ExecError   ExecStatus = "error"
)

// IntentKind distinguishes the two intent families the controller issues.
type IntentKind string

const (
	IntentLogin     IntentKind = "login"
	IntentAddToCart IntentKind = "add_to_cart"
)

// Intent is a natural-language task plus the structured fields it was
// rendered from. The executor receives the current page context alongside so
// it can ground its actions; the controller never inspects how the executor
// uses either.
type Intent struct {
	Kind        IntentKind
	Site        string
	Task        string
	Item        ShoppingItem
	Credentials Credentials
	PageURL     string
	PageExcerpt string
}

// ExecOutcome is the structural result of one executor invocation.
type ExecOutcome struct {
	Status ExecStatus
	Detail string
}

// ActionExecutor is the opaque capability boundary to the page-manipulation
// agent. Implementations interpret the intent, drive the page however they
// see fit, and report only the coarse status. Execute blocks for the
// duration of the operation and must honor ctx cancellation.
type ActionExecutor interface {
	Execute(ctx context.Context, intent Intent) (ExecOutcome, error)
}
