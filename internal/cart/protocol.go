// Package cart runs the act-then-verify mutation protocol: every add-to-cart
// intent is followed by an evidence probe against the live page, and only
// the probe's verdict decides the item's outcome. Items are processed
// strictly in order; a cart is shared mutable state and concurrent mutation
// would make the evidence unattributable.
package cart

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
	"github.com/xkilldash9x/cartwright/internal/config"
)

var (
	// ErrItemNotFound means the site observably does not carry the item.
	ErrItemNotFound = errors.New("item not found on site")
	// ErrItemFailed means the retry budget ran out without verified success.
	ErrItemFailed = errors.New("item could not be added")
)

// Reauthenticator is the mid-run login detour: invoked when a cart action
// bounces to a login form, it must leave the context authenticated or fail.
type Reauthenticator func(ctx context.Context) error

// Protocol adds a run's items to the cart one at a time.
type Protocol struct {
	exec    schemas.ActionExecutor
	prober  schemas.EvidenceProber
	reauth  Reauthenticator
	cfg     config.CartConfig
	logger  *zap.Logger
	siteKey string
}

// NewProtocol wires the protocol. reauth may be nil, in which case a login
// bounce finishes the item as LoginRequired instead of detouring.
func NewProtocol(exec schemas.ActionExecutor, prober schemas.EvidenceProber, reauth Reauthenticator, cfg config.CartConfig, siteKey string, logger *zap.Logger) *Protocol {
	return &Protocol{
		exec:    exec,
		prober:  prober,
		reauth:  reauth,
		cfg:     cfg,
		logger:  logger.Named("cart").With(zap.String("site", siteKey)),
		siteKey: siteKey,
	}
}

// AddItems processes the items in order. It never aborts the whole list for
// a single item's failure; only cancellation or a dead executor stops the
// run, and then every unprocessed item is marked Skipped. The second return
// reports a terminal abort: the executor itself broke and the run cannot
// finish, so the caller must not classify it as completed.
func (p *Protocol) AddItems(ctx context.Context, items []schemas.ShoppingItem) ([]schemas.CartOutcome, bool) {
	outcomes := make([]schemas.CartOutcome, 0, len(items))

	abort := false
	var abortReason string
	for _, item := range items {
		if abort || ctx.Err() != nil {
			if abortReason == "" {
				abortReason = "run cancelled"
			}
			outcomes = append(outcomes, schemas.CartOutcome{
				Item:   item,
				Status: schemas.CartSkipped,
				Detail: abortReason,
			})
			continue
		}

		outcome, terminal := p.addOne(ctx, item)
		outcomes = append(outcomes, outcome)

		if terminal {
			abort = true
			abortReason = outcome.Detail
		}
	}
	return outcomes, abort
}

// addOne runs the act-then-verify loop for a single item. The attempt
// counter advances on genuine failures only; one login detour per item is
// allowed without consuming an attempt. terminal=true means the run cannot
// make progress on any further item.
func (p *Protocol) addOne(ctx context.Context, item schemas.ShoppingItem) (_ schemas.CartOutcome, terminal bool) {
	log := p.logger.With(zap.String("item", item.Name))
	outcome := schemas.CartOutcome{Item: item}

	maxAttempts := p.cfg.RetryBound + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	detoured := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome.Attempts = attempt
		if ctx.Err() != nil {
			outcome.Status = schemas.CartSkipped
			outcome.Detail = "run cancelled"
			return outcome, false
		}

		baseline := -1
		if count, err := p.prober.CartCount(ctx); err == nil {
			baseline = count
		} else {
			log.Debug("Could not take cart baseline.", zap.Error(err))
		}

		exec, err := p.exec.Execute(ctx, schemas.Intent{
			Kind: schemas.IntentAddToCart,
			Site: p.siteKey,
			Item: item,
		})
		if err != nil {
			if errors.Is(err, schemas.ErrExecutorUnavailable) {
				outcome.Status = schemas.CartFailed
				outcome.Detail = fmt.Sprintf("executor unavailable: %v", err)
				return outcome, true
			}
			if ctx.Err() != nil {
				outcome.Status = schemas.CartSkipped
				outcome.Detail = "run cancelled"
				return outcome, false
			}
			log.Warn("Add-to-cart intent errored.", zap.Int("attempt", attempt), zap.Error(err))
			outcome.Detail = err.Error()
			continue
		}

		switch exec.Status {
		case schemas.ExecNotFound:
			// Definitive: retrying a search that found nothing changes
			// nothing.
			outcome.Status = schemas.CartNotFound
			outcome.Detail = detailOr(exec.Detail, ErrItemNotFound.Error())
			return outcome, false
		case schemas.ExecBlocked, schemas.ExecError:
			log.Warn("Add-to-cart attempt did not complete.",
				zap.Int("attempt", attempt),
				zap.String("status", string(exec.Status)),
				zap.String("detail", exec.Detail))
			outcome.Detail = detailOr(exec.Detail, string(exec.Status))
			continue
		}

		ev, err := p.prober.ProbeCart(ctx, item, baseline)
		if err != nil {
			log.Warn("Cart evidence probe failed.", zap.Int("attempt", attempt), zap.Error(err))
			outcome.Detail = err.Error()
			continue
		}

		if ev.LoginRedirect && !ev.Satisfied() {
			if p.reauth == nil || detoured {
				outcome.Status = schemas.CartLoginRequired
				outcome.Detail = "cart action requires login"
				return outcome, false
			}
			log.Info("Cart action bounced to login, re-authenticating.")
			if err := p.reauth(ctx); err != nil {
				if errors.Is(err, schemas.ErrExecutorUnavailable) {
					outcome.Status = schemas.CartFailed
					outcome.Detail = fmt.Sprintf("executor unavailable: %v", err)
					return outcome, true
				}
				outcome.Status = schemas.CartLoginRequired
				outcome.Detail = fmt.Sprintf("re-authentication failed: %v", err)
				return outcome, false
			}
			detoured = true
			// The detour does not consume an attempt; retry this item.
			attempt--
			continue
		}

		if ev.Satisfied() {
			log.Info("Item verified in cart.", zap.Int("attempt", attempt))
			outcome.Status = schemas.CartAdded
			outcome.Detail = evidenceSummary(ev)
			return outcome, false
		}

		log.Warn("Executor acted but no cart evidence appeared.", zap.Int("attempt", attempt))
		outcome.Detail = "no cart evidence after action"
	}

	outcome.Status = schemas.CartFailed
	outcome.Detail = detailOr(outcome.Detail, ErrItemFailed.Error())
	return outcome, false
}

func detailOr(detail, fallback string) string {
	if detail != "" {
		return detail
	}
	return fallback
}

func evidenceSummary(ev schemas.CartEvidence) string {
	switch {
	case ev.CountIncreased:
		return "cart count increased"
	case ev.Confirmation:
		return "confirmation message observed"
	case ev.ItemOnCartPage:
		return "item listed on cart page"
	default:
		return ""
	}
}
