package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

// Driver is the schemas.ActionExecutor: it asks the planner for steps and
// applies them to the page. It reports what it did, never whether it
// worked; the caller's evidence probes decide that.
type Driver struct {
	planner planner
	page    schemas.BrowserContext
	logger  *zap.Logger

	excerptLimit int
	stepTimeout  time.Duration
}

var _ schemas.ActionExecutor = (*Driver)(nil)

// NewDriver wires a planner to the run's page context.
func NewDriver(p planner, page schemas.BrowserContext, excerptLimit int, stepTimeout time.Duration, logger *zap.Logger) *Driver {
	if excerptLimit <= 0 {
		excerptLimit = 4000
	}
	return &Driver{
		planner:      p,
		page:         page,
		logger:       logger.Named("executor"),
		excerptLimit: excerptLimit,
		stepTimeout:  stepTimeout,
	}
}

// Execute plans and applies one intent against the live page.
func (d *Driver) Execute(ctx context.Context, intent schemas.Intent) (schemas.ExecOutcome, error) {
	if err := d.snapshotPage(ctx, &intent); err != nil {
		return schemas.ExecOutcome{Status: schemas.ExecError, Detail: err.Error()}, err
	}

	plan, err := d.planner.Plan(ctx, intent)
	if err != nil {
		return schemas.ExecOutcome{Status: schemas.ExecError, Detail: err.Error()}, err
	}

	switch plan.Outcome {
	case PlanOutcomeNotFound:
		return schemas.ExecOutcome{Status: schemas.ExecNotFound, Detail: plan.Detail}, nil
	case PlanOutcomeBlocked:
		return schemas.ExecOutcome{Status: schemas.ExecBlocked, Detail: plan.Detail}, nil
	}

	for i, step := range plan.Steps {
		if err := d.applyStep(ctx, step); err != nil {
			detail := fmt.Sprintf("step %d (%s) failed: %v", i, step.Kind, err)
			d.logger.Warn("Plan step failed.",
				zap.Int("step", i),
				zap.String("action", string(step.Kind)),
				zap.Error(err))
			return schemas.ExecOutcome{Status: schemas.ExecError, Detail: detail}, nil
		}
	}

	return schemas.ExecOutcome{Status: schemas.ExecSuccess, Detail: plan.Detail}, nil
}

// snapshotPage fills the intent with the current URL and page excerpt so the
// planner sees what the page actually shows.
func (d *Driver) snapshotPage(ctx context.Context, intent *schemas.Intent) error {
	url, err := d.page.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot page url: %w", err)
	}
	excerpt, err := d.page.PageExcerpt(ctx, d.excerptLimit)
	if err != nil {
		return fmt.Errorf("failed to snapshot page excerpt: %w", err)
	}
	intent.PageURL = url
	intent.PageExcerpt = excerpt
	return nil
}

func (d *Driver) applyStep(ctx context.Context, step Step) error {
	stepCtx := ctx
	if d.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, d.stepTimeout)
		defer cancel()
	}

	switch step.Kind {
	case StepNavigate:
		return d.page.Navigate(stepCtx, step.Value)
	case StepClick:
		return d.evalOnSelector(stepCtx, step.Selector, "el.click()")
	case StepType:
		script := fmt.Sprintf(
			`el.focus(); el.value = %q; el.dispatchEvent(new Event('input', {bubbles: true})); el.dispatchEvent(new Event('change', {bubbles: true}))`,
			step.Value)
		return d.evalOnSelector(stepCtx, step.Selector, script)
	case StepSubmit:
		return d.evalOnSelector(stepCtx, step.Selector,
			`const form = el.form || (el.tagName === 'FORM' ? el : el.closest('form'));
    if (form && form.requestSubmit) { form.requestSubmit(); }
    else if (form) { form.submit(); }
    else { el.click(); }`)
	case StepWait:
		ms, err := strconv.Atoi(step.Value)
		if err != nil || ms < 0 {
			return fmt.Errorf("invalid wait duration %q", step.Value)
		}
		if ms > 30000 {
			ms = 30000
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return nil
		case <-stepCtx.Done():
			return stepCtx.Err()
		}
	default:
		return fmt.Errorf("unknown action %q", step.Kind)
	}
}

// evalOnSelector runs a snippet with `el` bound to the first match of the
// selector, failing when nothing matches.
func (d *Driver) evalOnSelector(ctx context.Context, selector, snippet string) error {
	script := fmt.Sprintf(`(() => {
    const el = document.querySelector(%q);
    if (!el) { return 'missing'; }
    %s;
    return 'ok';
})()`, selector, snippet)

	var result string
	if err := d.page.Evaluate(ctx, script, &result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("no element matches selector %q", selector)
	}
	return nil
}
