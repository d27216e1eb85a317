package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
	"github.com/xkilldash9x/cartwright/internal/config"
)

// ProviderGemini is the only planner backend currently wired.
const ProviderGemini = "gemini"

// New builds the ActionExecutor for the configured provider, bound to the
// run's page context.
func New(ctx context.Context, cfg config.ExecutorConfig, page schemas.BrowserContext, stepTimeout time.Duration, logger *zap.Logger) (schemas.ActionExecutor, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		p, err := NewGeminiPlanner(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewDriver(p, page, cfg.PageExcerptLimit, stepTimeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown executor provider %q, supported: [%s]", cfg.Provider, ProviderGemini)
	}
}
