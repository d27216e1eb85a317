package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

type stubPlanner struct {
	plan    *Plan
	err     error
	sawItem string
	sawURL  string
}

func (s *stubPlanner) Plan(ctx context.Context, intent schemas.Intent) (*Plan, error) {
	s.sawItem = intent.Item.Name
	s.sawURL = intent.PageURL
	if s.err != nil {
		return nil, s.err
	}
	return s.plan, nil
}

// stubBrowser records the actions the driver applies.
type stubBrowser struct {
	url        string
	excerpt    string
	navigated  []string
	evaluated  []string
	missingSel string
}

func (s *stubBrowser) Navigate(ctx context.Context, rawurl string) error {
	s.navigated = append(s.navigated, rawurl)
	return nil
}
func (s *stubBrowser) CurrentURL(ctx context.Context) (string, error) { return s.url, nil }
func (s *stubBrowser) PageExcerpt(ctx context.Context, limit int) (string, error) {
	return s.excerpt, nil
}
func (s *stubBrowser) HarvestSession(ctx context.Context, siteKey, accountKey string) (*schemas.SessionRecord, error) {
	return &schemas.SessionRecord{SiteKey: siteKey, AccountKey: accountKey}, nil
}
func (s *stubBrowser) RestoreSession(ctx context.Context, rec *schemas.SessionRecord) error {
	return nil
}
func (s *stubBrowser) Close(ctx context.Context) error { return nil }

func (s *stubBrowser) Evaluate(ctx context.Context, script string, out any) error {
	s.evaluated = append(s.evaluated, script)
	if res, ok := out.(*string); ok {
		if s.missingSel != "" && strings.Contains(script, s.missingSel) {
			*res = "missing"
		} else {
			*res = "ok"
		}
	}
	return nil
}

func newTestDriver(p planner, page schemas.BrowserContext) *Driver {
	return NewDriver(p, page, 4000, 5*time.Second, zap.NewNop())
}

func TestDriverExecutesPlanSteps(t *testing.T) {
	page := &stubBrowser{url: "https://example.com/", excerpt: "Search USB Cable Add to Cart"}
	pl := &stubPlanner{plan: &Plan{
		Steps: []Step{
			{Kind: StepNavigate, Value: "https://example.com/s?k=usb"},
			{Kind: StepClick, Selector: "#add-to-cart"},
		},
		Outcome: PlanOutcomeActed,
	}}

	d := newTestDriver(pl, page)
	outcome, err := d.Execute(context.Background(), schemas.Intent{
		Kind: schemas.IntentAddToCart,
		Site: "example.com",
		Item: schemas.ShoppingItem{Name: "USB Cable", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.ExecSuccess, outcome.Status)
	assert.Equal(t, []string{"https://example.com/s?k=usb"}, page.navigated)
	require.Len(t, page.evaluated, 1)
	assert.Contains(t, page.evaluated[0], "#add-to-cart")

	// The planner must have seen the live page snapshot.
	assert.Equal(t, "https://example.com/", pl.sawURL)
	assert.Equal(t, "USB Cable", pl.sawItem)
}

func TestDriverMapsAdvisoryOutcomes(t *testing.T) {
	page := &stubBrowser{}

	for planOutcome, want := range map[string]schemas.ExecStatus{
		PlanOutcomeNotFound: schemas.ExecNotFound,
		PlanOutcomeBlocked:  schemas.ExecBlocked,
	} {
		pl := &stubPlanner{plan: &Plan{Outcome: planOutcome, Detail: "because"}}
		d := newTestDriver(pl, page)

		outcome, err := d.Execute(context.Background(), schemas.Intent{Kind: schemas.IntentAddToCart})
		require.NoError(t, err)
		assert.Equal(t, want, outcome.Status)
		assert.Equal(t, "because", outcome.Detail)
	}
}

func TestDriverMissingSelectorIsAnError(t *testing.T) {
	page := &stubBrowser{missingSel: "#gone"}
	pl := &stubPlanner{plan: &Plan{
		Steps:   []Step{{Kind: StepClick, Selector: "#gone"}},
		Outcome: PlanOutcomeActed,
	}}

	d := newTestDriver(pl, page)
	outcome, err := d.Execute(context.Background(), schemas.Intent{Kind: schemas.IntentAddToCart})
	require.NoError(t, err, "a failed step is an outcome, not a transport error")
	assert.Equal(t, schemas.ExecError, outcome.Status)
	assert.Contains(t, outcome.Detail, "#gone")
}

func TestDriverPropagatesPlannerUnavailability(t *testing.T) {
	wrapped := fmt.Errorf("%w: quota exhausted", schemas.ErrExecutorUnavailable)
	pl := &stubPlanner{err: wrapped}
	d := newTestDriver(pl, &stubBrowser{})

	outcome, err := d.Execute(context.Background(), schemas.Intent{Kind: schemas.IntentLogin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, schemas.ErrExecutorUnavailable))
	assert.Equal(t, schemas.ExecError, outcome.Status)
}

func TestRenderIntentIncludesCredentialsAndGuidance(t *testing.T) {
	prompt := renderIntent(schemas.Intent{
		Kind:        schemas.IntentLogin,
		Site:        "amazon.com",
		Credentials: schemas.Credentials{Username: "casey@example.com", Password: "hunter2"},
		PageURL:     "https://amazon.com/ap/signin",
		PageExcerpt: "Sign in Email or mobile phone number",
	})

	assert.Contains(t, prompt, "casey@example.com")
	assert.Contains(t, prompt, "hunter2")
	assert.Contains(t, prompt, "multi-step")
	assert.Contains(t, prompt, "Sign in Email")
}

func TestRenderIntentOrdersItemOptions(t *testing.T) {
	intent := schemas.Intent{
		Kind: schemas.IntentAddToCart,
		Site: "example.com",
		Item: schemas.ShoppingItem{
			Name:     "Shirt",
			Quantity: 2,
			Options:  map[string]string{"size": "M", "color": "blue"},
		},
	}

	first := renderIntent(intent)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, renderIntent(intent))
	}
	assert.Contains(t, first, "color: blue")
	assert.Contains(t, first, "size: M")
}
