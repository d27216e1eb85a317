package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
	"github.com/xkilldash9x/cartwright/internal/browser"
	"github.com/xkilldash9x/cartwright/internal/config"
	"github.com/xkilldash9x/cartwright/internal/executor"
	"github.com/xkilldash9x/cartwright/internal/login"
	"github.com/xkilldash9x/cartwright/internal/observability"
	"github.com/xkilldash9x/cartwright/internal/orchestrator"
	"github.com/xkilldash9x/cartwright/internal/sessionstore"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [items...]",
		Short: "Adds the shopping list to a site's cart, logging in as needed",
		Long: `Run opens a browser on the target site, establishes an authenticated
session (restoring a persisted one when available), and adds every item on
the shopping list to the cart. Items can be given as arguments or loaded
from a file with --items.`,
		Example: `  cartwright run --site amazon.com "usb c cable" "wireless mouse"
  cartwright run --site walmart.com --items list.txt --username me@mail.com --password secret
  cartwright run --site target.com --items list.json --no-session`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Flag values override config file and environment settings.
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("login.manual_wait_deadline", cmd.Flags().Lookup("manual-wait")); err != nil {
				return err
			}
			if err := viper.BindPFlag("cart.retry_bound", cmd.Flags().Lookup("retries")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			site, _ := cmd.Flags().GetString("site")
			if site == "" {
				return fmt.Errorf("--site is required")
			}

			items, err := collectItems(cmd, args)
			if err != nil {
				return err
			}

			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			noSession, _ := cmd.Flags().GetBool("no-session")
			useSession := cfg.Session.UseSession && !noSession

			if cfg.Browser.Headless && !(schemas.Credentials{Username: username, Password: password}).Provided() {
				logger.Warn("Headless mode without credentials: a manual login step will not be visible.")
			}

			result, err := executeRun(ctx, cfg, logger, orchestrator.Request{
				Website:    site,
				Items:      items,
				Creds:      schemas.Credentials{Username: username, Password: password},
				UseSession: useSession,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("run aborted by user signal")
				}
				return err
			}

			printSummary(result)

			if orchestrator.IsLoginFailure(result) {
				return fmt.Errorf("could not establish a session on %s", result.Site)
			}
			return nil
		},
	}

	runCmd.Flags().StringP("site", "s", "", "Target website, e.g. amazon.com (required)")
	runCmd.Flags().StringP("items", "i", "", "Items file: JSON array or one 'name | description | qty | key:value' per line")
	runCmd.Flags().StringP("username", "u", "", "Account username for automated login")
	runCmd.Flags().StringP("password", "p", "", "Account password for automated login")
	runCmd.Flags().Bool("headless", false, "Run the browser headless. Manual login steps need a visible window. (Overrides config/env)")
	runCmd.Flags().Bool("no-session", false, "Do not restore or persist the session for this run")
	runCmd.Flags().Duration("manual-wait", 0, "How long to wait for a manual login before failing. (Overrides config/env)")
	runCmd.Flags().Int("retries", 0, "Retries per item after the first attempt. (Overrides config/env)")

	return runCmd
}

// collectItems merges positional item names with the --items file.
func collectItems(cmd *cobra.Command, args []string) ([]schemas.ShoppingItem, error) {
	var items []schemas.ShoppingItem

	if itemsFile, _ := cmd.Flags().GetString("items"); itemsFile != "" {
		fileItems, err := loadItems(itemsFile)
		if err != nil {
			return nil, err
		}
		items = append(items, fileItems...)
	}
	for _, name := range args {
		items = append(items, schemas.ShoppingItem{Name: name, Quantity: 1})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no items given; pass item names as arguments or use --items")
	}
	return items, nil
}

// executeRun wires the run's components and drives the orchestrator. The
// browser and page are torn down before it returns.
func executeRun(ctx context.Context, cfg *config.Config, logger *zap.Logger, req orchestrator.Request) (*schemas.RunResult, error) {
	store, err := sessionstore.New(cfg.Session.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	manager, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown failed.", zap.Error(err))
		}
	}()

	page, err := manager.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close(context.Background())

	siteKey := schemas.SiteKeyFor(req.Website)
	httpProber := browser.NewHTTPProber(cfg.Login.ProbeTimeout, logger)
	prober := browser.NewProber(page, httpProber, siteKey, logger)

	exec, err := executor.New(ctx, cfg.Executor, page, cfg.Cart.StepTimeout, logger)
	if err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Deps{
		Page:     page,
		Prober:   prober,
		Executor: exec,
		Store:    store,
		Prompter: login.NewConsolePrompter(os.Stderr, page, logger),
	}, cfg, logger)
	if err != nil {
		return nil, err
	}

	result, err := orch.Run(ctx, req)
	if err == nil && result.Status == schemas.RunCompleted && !cfg.Browser.Headless {
		reviewPause(ctx, 10*time.Second)
	}
	return result, err
}

// reviewPause keeps the browser on the cart page briefly so the user can see
// what was added before teardown. The cart itself survives in the persisted
// session either way.
func reviewPause(ctx context.Context, d time.Duration) {
	fmt.Fprintln(os.Stderr, "Leaving the browser open briefly so you can review the cart...")
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// printSummary renders the per-item outcome table on stdout.
func printSummary(result *schemas.RunResult) {
	fmt.Printf("\nRun %s on %s: %s\n\n", result.RunID, result.Site, result.Status)
	for _, outcome := range result.Outcomes {
		line := fmt.Sprintf("  [%-13s] %s", outcome.Status, outcome.Item.Name)
		if outcome.Item.Quantity > 1 {
			line += fmt.Sprintf(" (x%d)", outcome.Item.Quantity)
		}
		if outcome.Detail != "" {
			line += " - " + outcome.Detail
		}
		fmt.Println(line)
	}

	counts := result.Counts()
	fmt.Printf("\n%d added, %d not found, %d failed, %d login required, %d skipped\n",
		counts[schemas.CartAdded],
		counts[schemas.CartNotFound],
		counts[schemas.CartFailed],
		counts[schemas.CartLoginRequired],
		counts[schemas.CartSkipped])
}
