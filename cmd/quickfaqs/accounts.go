package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/quickfaqs/quickfaqs-api/internal/server"
	"github.com/spf13/cobra"
)

func newAccountsCmd() *cobra.Command {
	var (
		tierFlag string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts with their tier and credits",
		Example: `  # Every premium account
  quickfaqs accounts --tier premium`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := entitlement.ListOptions{Limit: limit}
			if tierFlag != "" {
				tier, err := entitlement.ParseTier(tierFlag)
				if err != nil {
					return err
				}
				opts.Tier = tier
			}

			cfg, err := server.LoadStoreConfig()
			if err != nil {
				return err
			}
			stores, err := server.OpenStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			accounts, err := stores.Accounts.ListAccounts(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list accounts: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tTIER\tCREDITS\tSTRIPE CUSTOMER\tCREATED")
			for _, a := range accounts {
				credits := fmt.Sprint(a.Credits)
				if !a.Tier.Metered() {
					credits = "unlimited"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.Email, a.Tier, credits, dashIfEmpty(a.StripeCustomerID), a.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&tierFlag, "tier", "", "only list accounts on this tier (free, basic, premium)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of accounts to list")
	return cmd
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
