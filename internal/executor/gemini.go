package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/cartwright/api/schemas"
	"github.com/xkilldash9x/cartwright/internal/config"
)

// planner produces an action plan for one intent. Implemented by the Gemini
// backend; tests substitute their own.
type planner interface {
	Plan(ctx context.Context, intent schemas.Intent) (*Plan, error)
}

// GeminiPlanner plans browser steps with the Gemini API. Transient API
// failures are retried with exponential backoff; exhausting the retry budget
// surfaces as schemas.ErrExecutorUnavailable so callers can stop cleanly.
type GeminiPlanner struct {
	client *genai.Client
	cfg    config.ExecutorConfig
	logger *zap.Logger
}

var _ planner = (*GeminiPlanner)(nil)

// NewGeminiPlanner initializes the backend. The API key is required.
func NewGeminiPlanner(ctx context.Context, cfg config.ExecutorConfig, logger *zap.Logger) (*GeminiPlanner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiPlanner{
		client: client,
		cfg:    cfg,
		logger: logger.Named("executor.gemini"),
	}, nil
}

// Plan sends the rendered intent to the model and parses the returned step
// list.
func (g *GeminiPlanner) Plan(ctx context.Context, intent schemas.Intent) (*Plan, error) {
	userPrompt := renderIntent(intent)

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(g.cfg.Temperature)),
		ResponseMIMEType:  "application/json",
	}
	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = g.cfg.MaxRetryElapsed
	b.MaxInterval = 30 * time.Second

	var plan *Plan
	operation := func() error {
		callCtx := ctx
		if g.cfg.APITimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.cfg.APITimeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := g.client.Models.GenerateContent(callCtx, g.cfg.Model, contents, genCfg)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			g.logger.Warn("Gemini request failed, retrying...", zap.Error(err))
			return fmt.Errorf("gemini request failed: %w", err)
		}

		text := resp.Text()
		if text == "" {
			return fmt.Errorf("gemini returned an empty response")
		}

		parsed, err := ParsePlan(text)
		if err != nil {
			// A malformed plan is worth one more round trip, not a crash.
			g.logger.Warn("Gemini returned an unparsable plan, retrying...", zap.Error(err))
			return err
		}

		g.logger.Debug("Plan generated.",
			zap.Duration("duration", time.Since(start)),
			zap.Int("steps", len(parsed.Steps)),
			zap.String("outcome", parsed.Outcome))
		plan = parsed
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", schemas.ErrExecutorUnavailable, err)
	}
	return plan, nil
}

// IsUnavailable reports whether err means the executor backend cannot serve
// any further intents.
func IsUnavailable(err error) bool {
	return errors.Is(err, schemas.ErrExecutorUnavailable)
}
