package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/cartwright/api/schemas"
	"github.com/xkilldash9x/cartwright/internal/config"
	"github.com/xkilldash9x/cartwright/internal/observability"
	"github.com/xkilldash9x/cartwright/internal/sessionstore"
)

// newSessionCmd creates the `session` command group for inspecting and
// clearing persisted browser sessions.
func newSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage persisted site sessions",
	}
	sessionCmd.AddCommand(newSessionListCmd())
	sessionCmd.AddCommand(newSessionPurgeCmd())
	return sessionCmd
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists all persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			records, err := store.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No persisted sessions.")
				return nil
			}
			fmt.Printf("Sessions in %s:\n", store.Dir())
			for _, rec := range records {
				fmt.Printf("  %-30s account %-12s  %d cookies, last verified %s\n",
					rec.SiteKey, rec.AccountKey, len(rec.Cookies),
					rec.LastVerifiedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newSessionPurgeCmd() *cobra.Command {
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Deletes persisted sessions",
		Long: `Purge deletes the persisted session for --site (and optionally a
specific --username), or every persisted session when --all is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			all, _ := cmd.Flags().GetBool("all")
			site, _ := cmd.Flags().GetString("site")
			username, _ := cmd.Flags().GetString("username")

			if all {
				records, err := store.List()
				if err != nil {
					return err
				}
				for _, rec := range records {
					if err := store.Delete(rec.SiteKey, rec.AccountKey); err != nil {
						return err
					}
				}
				fmt.Printf("Deleted %d session(s).\n", len(records))
				return nil
			}

			if site == "" {
				return fmt.Errorf("either --site or --all is required")
			}

			siteKey := schemas.SiteKeyFor(site)
			if username != "" {
				accountKey := schemas.AccountKeyFor(username)
				if err := store.Delete(siteKey, accountKey); err != nil {
					return err
				}
				fmt.Printf("Deleted session for %s (account %s).\n", siteKey, accountKey)
				return nil
			}

			// No username: drop every account's record for the site.
			records, err := store.List()
			if err != nil {
				return err
			}
			deleted := 0
			for _, rec := range records {
				if rec.SiteKey != siteKey {
					continue
				}
				if err := store.Delete(rec.SiteKey, rec.AccountKey); err != nil {
					return err
				}
				deleted++
			}
			fmt.Printf("Deleted %d session(s) for %s.\n", deleted, siteKey)
			return nil
		},
	}

	purgeCmd.Flags().StringP("site", "s", "", "Website whose session to delete")
	purgeCmd.Flags().StringP("username", "u", "", "Only delete the session for this account")
	purgeCmd.Flags().Bool("all", false, "Delete every persisted session")
	return purgeCmd
}

func openStore() (*sessionstore.Store, error) {
	cfg, err := config.NewConfigFromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return sessionstore.New(cfg.Session.Dir, observability.GetLogger())
}
