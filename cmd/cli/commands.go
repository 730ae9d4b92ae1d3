package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/treasury/internal/adapter/http/dto"
	"github.com/iho/treasury/internal/domain"
	"github.com/iho/treasury/internal/infrastructure/auth"
	"github.com/iho/treasury/internal/infrastructure/config"
	"github.com/iho/treasury/internal/infrastructure/logger"
	"github.com/iho/treasury/internal/infrastructure/postgres"
	"github.com/iho/treasury/internal/usecase"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	open := func(cmd *cobra.Command) (*postgres.Migrator, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		log := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console", Output: cmd.ErrOrStderr()})
		return postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := open(cmd)
				if err != nil {
					return err
				}
				return m.Up()
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := open(cmd)
				if err != nil {
					return err
				}
				return m.Down()
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := open(cmd)
				if err != nil {
					return err
				}
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			},
		},
	)

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "API token utilities",
	}

	var subject, role string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed API token using JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			r := domain.Role(role)
			if !r.IsValid() {
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration).
				Generate(domain.Principal{ID: subject, Role: r})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "Principal id recorded as the actor")
	issue.Flags().StringVar(&role, "role", string(domain.RoleViewer), "Role: admin, operator or viewer")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}

func treasuryCmd(api *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treasury",
		Short: "Treasury overview",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show balances, shares and reserve health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status usecase.TreasuryStatus
			if err := api.do(cmd.Context(), http.MethodGet, "/api/v1/treasury/status", nil, &status); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total balance: %s across %d active accounts\n", status.TotalBalance, status.ActiveAccounts)
			tw := newTable(out)
			fmt.Fprintln(tw, "NAME\tTYPE\tBALANCE\tSHARE %")
			for _, a := range status.Accounts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", truncate(a.Name, 24), a.Type, a.Balance, a.Percentage.StringFixed(2))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			health := "HEALTHY"
			if !status.Reserve.IsHealthy {
				health = "BELOW TARGET"
			}
			fmt.Fprintf(out, "Reserve: %s%% of target %s%% (%s)\n",
				status.Reserve.ActualPercentage.StringFixed(2), status.Reserve.TargetPercentage, health)
			return nil
		},
	})

	return cmd
}

func accountsCmd(api *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Account operations",
	}

	var includeInactive bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("include_inactive", strconv.FormatBool(includeInactive))
			q.Set("limit", strconv.Itoa(domain.MaxPageSize))

			var resp dto.ListAccountsResponse
			if err := api.do(cmd.Context(), http.MethodGet, "/api/v1/accounts?"+q.Encode(), nil, &resp); err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tBALANCE\tACTIVE")
			for _, a := range resp.Accounts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", a.ID, truncate(a.Name, 24), a.Type, a.Balance, a.IsActive)
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&includeInactive, "all", false, "Include deactivated accounts")

	cmd.AddCommand(list)
	return cmd
}

func rulesCmd(api *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Allocation rule operations",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: `Dry-run rule entries read from a JSON file ({"entries":[...]}), "-" for stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var req dto.ValidateRuleRequest
			if err := json.NewDecoder(r).Decode(&req); err != nil {
				return fmt.Errorf("invalid rule file: %w", err)
			}

			var verdict usecase.RuleValidation
			if err := api.do(cmd.Context(), http.MethodPost, "/api/v1/allocation-rules/validate", req, &verdict); err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), verdict); err != nil {
				return err
			}
			if !verdict.Valid {
				return fmt.Errorf("rule is invalid: %s", verdict.Reason)
			}
			return nil
		},
	}
	validate.Flags().StringVarP(&file, "file", "f", "-", "Path to the rule entries JSON")

	cmd.AddCommand(validate)
	return cmd
}

func allocationsCmd(api *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "allocations",
		Short: "Allocation operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "apply <transaction-id>",
		Short: "Apply allocation rules to a completed deposit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result usecase.AllocationResult
			path := "/api/v1/transactions/" + url.PathEscape(args[0]) + "/allocations"
			if err := api.do(cmd.Context(), http.MethodPost, path, nil, &result); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch result.Status {
			case usecase.AllocationAlreadyApplied:
				fmt.Fprintf(out, "Allocations for %s were already applied\n", args[0])
				return nil
			case usecase.AllocationNoRule:
				fmt.Fprintf(out, "No active rule matches %s\n", args[0])
				return nil
			}

			fmt.Fprintf(out, "Applied rule %s: %s allocated, residual %s\n", result.RuleName, result.TotalAllocated, result.Residual)
			tw := newTable(out)
			fmt.Fprintln(tw, "ACCOUNT\tPERCENT\tAMOUNT\tTRANSACTION")
			for _, b := range result.Breakdown {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", truncate(b.AccountName, 24), b.Percentage, b.Amount, b.TransactionID)
			}
			for _, s := range result.Skipped {
				fmt.Fprintf(tw, "%s\t%s\t%s\tskipped: %s\n", s.AccountID, s.Percentage, s.Amount, s.Reason)
			}
			return tw.Flush()
		},
	})

	return cmd
}

func reconcileCmd(api *apiClient) *cobra.Command {
	var (
		external          string
		source            string
		notes             string
		failOnDiscrepancy bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare the ledger total against an external balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, err := decimal.NewFromString(external)
			if err != nil {
				return fmt.Errorf("invalid --external balance %q: %w", external, err)
			}

			var rec dto.ReconciliationResponse
			req := dto.CreateReconciliationRequest{ExternalBalance: balance, ExternalSource: source, Notes: notes}
			if err := api.do(cmd.Context(), http.MethodPost, "/api/v1/reconciliations", req, &rec); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: internal %s, external %s, discrepancy %s (%s%%) [%s]\n",
				rec.Status, rec.InternalBalance, rec.ExternalBalance, rec.Discrepancy, rec.DiscrepancyPercentage, rec.ID)

			if failOnDiscrepancy && rec.Status != string(domain.ReconciliationMatched) {
				return fmt.Errorf("discrepancy of %s detected", rec.Discrepancy)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&external, "external", "", "Externally reported balance")
	cmd.Flags().StringVar(&source, "source", "", "Where the external balance came from")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	cmd.Flags().BoolVar(&failOnDiscrepancy, "fail-on-discrepancy", false, "Exit non-zero unless the balances match")
	_ = cmd.MarkFlagRequired("external")

	return cmd
}
