// Package orchestrator sequences a run: restore and establish the session,
// add every item through the cart protocol, leave the browser on the cart
// page for review, and persist the final session state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
	"github.com/xkilldash9x/cartwright/internal/cart"
	"github.com/xkilldash9x/cartwright/internal/config"
	"github.com/xkilldash9x/cartwright/internal/login"
)

// Deps are the run's wired components. Everything is an interface so the
// orchestrator's sequencing can be exercised without a browser.
type Deps struct {
	Page     schemas.BrowserContext
	Prober   schemas.EvidenceProber
	Executor schemas.ActionExecutor
	Store    schemas.SessionStore
	Prompter login.ManualPrompter
}

// Request describes one run.
type Request struct {
	Website    string
	Items      []schemas.ShoppingItem
	Creds      schemas.Credentials
	UseSession bool
}

// Orchestrator drives one run end to end.
type Orchestrator struct {
	deps   Deps
	cfg    *config.Config
	logger *zap.Logger
}

// New validates the wiring and returns an orchestrator.
func New(deps Deps, cfg *config.Config, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Page == nil || deps.Prober == nil || deps.Executor == nil || deps.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a page, prober, executor and store")
	}
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("orchestrator"),
	}, nil
}

// Run executes the request. The returned result is always usable, one
// outcome per requested item in order, even when the run failed or was
// cancelled.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*schemas.RunResult, error) {
	runID := uuid.New().String()
	siteKey := schemas.SiteKeyFor(req.Website)
	log := o.logger.With(zap.String("run_id", runID), zap.String("site", siteKey))

	result := &schemas.RunResult{
		RunID: runID,
		Site:  siteKey,
	}
	if siteKey == "" {
		return nil, fmt.Errorf("a website is required")
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("no items to add")
	}

	items := make([]schemas.ShoppingItem, len(req.Items))
	copy(items, req.Items)
	for i := range items {
		if err := items[i].Normalize(); err != nil {
			return nil, fmt.Errorf("invalid item: %w", err)
		}
	}

	log.Info("Run starting.",
		zap.Int("items", len(items)),
		zap.Bool("credentials", req.Creds.Provided()),
		zap.Bool("use_session", req.UseSession))

	machine, err := login.NewMachine(login.Params{
		Page:       o.deps.Page,
		Prober:     o.deps.Prober,
		Store:      o.deps.Store,
		Executor:   o.deps.Executor,
		Prompter:   o.deps.Prompter,
		Config:     o.cfg.Login,
		Logger:     o.logger,
		SiteKey:    siteKey,
		SiteURL:    siteURL(req.Website, siteKey),
		Creds:      req.Creds,
		UseSession: req.UseSession,
	})
	if err != nil {
		return nil, err
	}

	if err := machine.Establish(ctx); err != nil {
		if ctx.Err() != nil {
			log.Warn("Run cancelled during login.")
			o.fillOutcomes(result, items, schemas.CartSkipped, "run cancelled")
			result.Status = schemas.RunAborted
			return result, nil
		}
		if errors.Is(err, schemas.ErrExecutorUnavailable) {
			// The environment broke, not the credentials; nothing was
			// attempted and retrying an item cannot help.
			log.Error("Executor unavailable during login, aborting run.", zap.Error(err))
			o.fillOutcomes(result, items, schemas.CartSkipped, err.Error())
			result.Status = schemas.RunAborted
			return result, nil
		}
		log.Error("Session could not be established.", zap.Error(err))
		o.fillOutcomes(result, items, schemas.CartLoginRequired, err.Error())
		result.Status = schemas.RunLoginFailed
		return result, nil
	}

	protocol := cart.NewProtocol(
		o.deps.Executor,
		o.deps.Prober,
		machine.Reauthenticate,
		o.cfg.Cart,
		siteKey,
		o.logger,
	)
	outcomes, aborted := protocol.AddItems(ctx, items)
	result.Outcomes = outcomes

	o.visitCartPage(ctx, siteKey, log)
	o.persistFinalSession(ctx, machine, siteKey, req.UseSession, log)

	// A dead executor is a fatal run condition, same as cancellation: the
	// summary must not read Completed when items were never attempted.
	if aborted || ctx.Err() != nil {
		result.Status = schemas.RunAborted
	} else {
		result.Status = schemas.RunCompleted
	}

	counts := result.Counts()
	log.Info("Run finished.",
		zap.String("status", string(result.Status)),
		zap.Int("added", counts[schemas.CartAdded]),
		zap.Int("not_found", counts[schemas.CartNotFound]),
		zap.Int("failed", counts[schemas.CartFailed]),
		zap.Int("login_required", counts[schemas.CartLoginRequired]),
		zap.Int("skipped", counts[schemas.CartSkipped]))
	return result, nil
}

// visitCartPage leaves the browser on the cart so the user can review what
// was added. Best effort.
func (o *Orchestrator) visitCartPage(ctx context.Context, siteKey string, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	if err := o.deps.Page.Navigate(ctx, "https://"+siteKey+"/cart"); err != nil {
		log.Debug("Could not navigate to the cart page for review.", zap.Error(err))
	}
}

// persistFinalSession re-harvests after the cart mutations so the stored
// record carries the freshest cookies. Even a cancelled run persists what it
// can: the session is valuable regardless.
func (o *Orchestrator) persistFinalSession(ctx context.Context, machine *login.Machine, siteKey string, useSession bool, log *zap.Logger) {
	if !useSession || machine.State() != login.StateAuthenticated {
		return
	}

	harvestCtx := ctx
	if ctx.Err() != nil {
		// The run context is already dead; give the harvest its own grace.
		var cancel context.CancelFunc
		harvestCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	rec, err := o.deps.Page.HarvestSession(harvestCtx, siteKey, machine.AccountKey())
	if err != nil {
		log.Warn("Could not harvest final session state.", zap.Error(err))
		return
	}
	if err := o.deps.Store.Save(rec); err != nil {
		log.Warn("Could not persist final session record.", zap.Error(err))
	}
}

func (o *Orchestrator) fillOutcomes(result *schemas.RunResult, items []schemas.ShoppingItem, status schemas.CartStatus, detail string) {
	result.Outcomes = make([]schemas.CartOutcome, 0, len(items))
	for _, it := range items {
		result.Outcomes = append(result.Outcomes, schemas.CartOutcome{
			Item:   it,
			Status: status,
			Detail: detail,
		})
	}
}

// siteURL builds the navigation target from the raw website argument,
// defaulting to https when no scheme was given.
func siteURL(website, siteKey string) string {
	w := strings.TrimSpace(website)
	if strings.Contains(w, "://") {
		return w
	}
	return "https://" + siteKey
}

// IsLoginFailure reports whether a run result means the session could not be
// established at all.
func IsLoginFailure(result *schemas.RunResult) bool {
	return result != nil && result.Status == schemas.RunLoginFailed
}
