// Package login drives the session establishment state machine: restore a
// persisted session if one exists, verify it against live page evidence,
// fall back to automated credential entry, and finally to a manual,
// human-in-the-browser step. Authentication is only ever concluded from
// observed page evidence, never from an executor's claim.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/cartwright/api/schemas"
	"github.com/xkilldash9x/cartwright/internal/config"
)

// State is the machine's position in the login lifecycle.
type State string

const (
	StateUnknown             State = "UNKNOWN"
	StateSessionRestored     State = "SESSION_RESTORED"
	StateProbing             State = "PROBING"
	StateAwaitingCredentials State = "AWAITING_CREDENTIALS"
	StateAwaitingManualStep  State = "AWAITING_MANUAL_STEP"
	StateVerifying           State = "VERIFYING"
	StateAuthenticated       State = "AUTHENTICATED"
	StateFailed              State = "FAILED"
)

var (
	// ErrLoginTimeout means the manual wait deadline passed without
	// authentication evidence appearing.
	ErrLoginTimeout = errors.New("login wait deadline exceeded")
	// ErrVerificationAmbiguous means repeated probes produced neither
	// positive evidence nor a definitive login redirect.
	ErrVerificationAmbiguous = errors.New("login verification ambiguous")
)

// ManualPrompter asks the human at the keyboard to complete a login in the
// visible browser window and is polled-around, not blocked-on.
type ManualPrompter interface {
	// PromptManualLogin surfaces the instructions once, at the moment the
	// machine starts waiting.
	PromptManualLogin(ctx context.Context, siteKey string) error
}

// Machine owns one (site, account) login lifecycle. It is not safe for
// concurrent use; a run drives exactly one machine.
type Machine struct {
	page     schemas.BrowserContext
	prober   schemas.EvidenceProber
	store    schemas.SessionStore
	exec     schemas.ActionExecutor
	prompter ManualPrompter
	cfg      config.LoginConfig
	logger   *zap.Logger

	siteKey    string
	accountKey string
	siteURL    string
	creds      schemas.Credentials
	useSession bool

	state State
}

// Params collects the wiring for a Machine.
type Params struct {
	Page       schemas.BrowserContext
	Prober     schemas.EvidenceProber
	Store      schemas.SessionStore
	Executor   schemas.ActionExecutor
	Prompter   ManualPrompter
	Config     config.LoginConfig
	Logger     *zap.Logger
	SiteKey    string
	SiteURL    string
	Creds      schemas.Credentials
	UseSession bool
}

// NewMachine builds a machine in StateUnknown.
func NewMachine(p Params) (*Machine, error) {
	if p.Page == nil || p.Prober == nil || p.Store == nil {
		return nil, fmt.Errorf("login machine requires a page, prober and store")
	}
	if p.SiteKey == "" || p.SiteURL == "" {
		return nil, fmt.Errorf("login machine requires a site")
	}
	return &Machine{
		page:       p.Page,
		prober:     p.Prober,
		store:      p.Store,
		exec:       p.Executor,
		prompter:   p.Prompter,
		cfg:        p.Config,
		logger:     p.Logger.Named("login").With(zap.String("site", p.SiteKey)),
		siteKey:    p.SiteKey,
		accountKey: schemas.AccountKeyFor(p.Creds.Username),
		siteURL:    p.SiteURL,
		creds:      p.Creds,
		useSession: p.UseSession,
		state:      StateUnknown,
	}, nil
}

// State returns the machine's current state.
func (m *Machine) State() State {
	return m.state
}

// AccountKey returns the derived account key for this run.
func (m *Machine) AccountKey() string {
	return m.accountKey
}

func (m *Machine) transition(next State) {
	if next == m.state {
		return
	}
	m.logger.Info("Login state transition.",
		zap.String("from", string(m.state)),
		zap.String("to", string(next)))
	m.state = next
}

// Establish runs the lifecycle to AUTHENTICATED or FAILED. On success the
// live session has been harvested and persisted.
func (m *Machine) Establish(ctx context.Context) error {
	restored, err := m.restoreSession(ctx)
	if err != nil {
		return err
	}

	if err := m.page.Navigate(ctx, m.siteURL); err != nil {
		m.transition(StateFailed)
		return fmt.Errorf("could not reach %s: %w", m.siteURL, err)
	}

	m.transition(StateProbing)
	ev, err := m.prober.ProbeLogin(ctx)
	if err != nil {
		m.transition(StateFailed)
		return err
	}
	if ev.Satisfied() {
		if restored {
			m.logger.Info("Restored session is still valid.")
		} else {
			m.logger.Info("Context is already authenticated.")
		}
		return m.conclude(ctx)
	}
	if restored {
		// The persisted record no longer authenticates; drop it so the
		// next run does not retry a dead session.
		m.logger.Info("Restored session is stale, discarding.")
		if err := m.store.Delete(m.siteKey, m.accountKey); err != nil {
			m.logger.Warn("Could not delete stale session record.", zap.Error(err))
		}
	}

	return m.authenticate(ctx)
}

// Reauthenticate handles a mid-run login demand (a cart action bounced to a
// login form). The page is already on the login page; the machine re-runs
// the credential and manual paths without re-restoring the session.
func (m *Machine) Reauthenticate(ctx context.Context) error {
	m.logger.Info("Re-authentication demanded mid-run.")
	m.transition(StateProbing)

	ev, err := m.prober.ProbeLogin(ctx)
	if err != nil {
		m.transition(StateFailed)
		return err
	}
	if ev.Satisfied() {
		return m.conclude(ctx)
	}
	return m.authenticate(ctx)
}

// authenticate tries automated credential entry, then the manual fallback.
func (m *Machine) authenticate(ctx context.Context) error {
	if m.creds.Provided() && m.exec != nil {
		done, err := m.automatedLogin(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		m.logger.Warn("Automated login did not produce authentication evidence, falling back to manual.")
	}
	return m.manualLogin(ctx)
}

// automatedLogin drives the executor with the credentials and verifies the
// result. It reports done=true only when evidence confirmed the login;
// (false, nil) means fall through to the manual path.
func (m *Machine) automatedLogin(ctx context.Context) (bool, error) {
	m.transition(StateAwaitingCredentials)

	outcome, err := m.exec.Execute(ctx, schemas.Intent{
		Kind:        schemas.IntentLogin,
		Site:        m.siteKey,
		Credentials: m.creds,
	})
	if err != nil {
		// ErrExecutorUnavailable escalates with everything else: the
		// executor itself is broken, and the manual fallback is reserved
		// for steps the executor reports it cannot traverse.
		m.transition(StateFailed)
		return false, err
	}
	if outcome.Status != schemas.ExecSuccess {
		m.logger.Warn("Automated login attempt did not complete.",
			zap.String("status", string(outcome.Status)),
			zap.String("detail", outcome.Detail))
		return false, nil
	}

	verified, err := m.verify(ctx)
	if err != nil {
		if errors.Is(err, ErrVerificationAmbiguous) {
			return false, nil
		}
		return false, err
	}
	if !verified {
		return false, nil
	}
	return true, m.conclude(ctx)
}

// manualLogin hands control to the human and polls the page for evidence
// until the deadline.
func (m *Machine) manualLogin(ctx context.Context) error {
	m.transition(StateAwaitingManualStep)

	if m.prompter != nil {
		if err := m.prompter.PromptManualLogin(ctx, m.siteKey); err != nil {
			m.logger.Warn("Could not surface the manual login prompt.", zap.Error(err))
		}
	}

	deadline := m.cfg.ManualWaitDeadline
	if deadline <= 0 {
		deadline = 2 * time.Minute
	}
	pollEvery := m.cfg.PollInterval
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// The limiter spaces probes out; a human mid-login does not need to be
	// raced by the page being re-evaluated continuously.
	limiter := rate.NewLimiter(rate.Every(pollEvery), 1)

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			m.transition(StateFailed)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrLoginTimeout
		}

		ev, err := m.prober.ProbeLogin(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil {
				continue
			}
			m.logger.Debug("Manual wait probe failed, will retry.", zap.Error(err))
			continue
		}
		if ev.Satisfied() {
			m.logger.Info("Manual login detected.")
			m.transition(StateVerifying)
			return m.conclude(ctx)
		}
	}
}

// verify re-probes the page up to VerifyAttempts times. It distinguishes a
// confirmed login, a definitive bounce back to the login form, and
// ambiguity.
func (m *Machine) verify(ctx context.Context) (bool, error) {
	m.transition(StateVerifying)

	attempts := m.cfg.VerifyAttempts
	if attempts <= 0 {
		attempts = 3
	}
	pollEvery := m.cfg.PollInterval
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}

	redirects := 0
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(pollEvery):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}

		ev, err := m.prober.ProbeLogin(ctx)
		if err != nil {
			return false, err
		}
		if ev.Satisfied() {
			return true, nil
		}
		if ev.LoginRedirect {
			redirects++
		}
	}

	if redirects == attempts {
		// Every probe landed on the login form: definitively not logged in.
		return false, nil
	}
	return false, ErrVerificationAmbiguous
}

// conclude records success: harvest the live session, persist it, and move
// to AUTHENTICATED. A persistence failure is logged, not fatal; the run
// still holds a working session.
func (m *Machine) conclude(ctx context.Context) error {
	rec, err := m.page.HarvestSession(ctx, m.siteKey, m.accountKey)
	if err != nil {
		m.logger.Warn("Could not harvest session state after login.", zap.Error(err))
	} else if m.useSession {
		if err := m.store.Save(rec); err != nil {
			m.logger.Warn("Could not persist session record.", zap.Error(err))
		}
	}
	m.transition(StateAuthenticated)
	return nil
}

// restoreSession loads and injects a persisted record, if enabled and
// present. It reports whether a record was injected.
func (m *Machine) restoreSession(ctx context.Context) (bool, error) {
	if !m.useSession {
		return false, nil
	}
	rec, ok, err := m.store.Load(m.siteKey, m.accountKey)
	if err != nil {
		return false, fmt.Errorf("failed to load session record: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := m.page.RestoreSession(ctx, rec); err != nil {
		m.logger.Warn("Could not inject persisted session, continuing unauthenticated.", zap.Error(err))
		return false, nil
	}
	m.transition(StateSessionRestored)
	m.logger.Info("Persisted session injected.",
		zap.Time("last_verified", rec.LastVerifiedAt))
	return true, nil
}
