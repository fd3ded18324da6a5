package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/billing"
)

func newMigrateCommand(rt *Runtime) *Command {
	return &Command{
		Name:        "migrate",
		Description: "Create or upgrade the accounts schema",
		Run: func(ctx context.Context, args []string) error {
			if rt.Migrate == nil {
				return errors.New("migrations are not available for this store")
			}
			if err := rt.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(rt.Out, "Schema is up to date")
			return nil
		},
	}
}

type accountView struct {
	*accounts.Account
	QuotesRemaining *int `json:"quotesRemaining"`
}

func newAccountCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "account",
		Description: "Show an account and its quota by email",
		Flags:       flag.NewFlagSet("account", flag.ContinueOnError),
	}
	email := cmd.Flags.String("email", "", "Account email (required)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *email == "" {
			return errors.New("email is required")
		}

		acct, err := rt.Store.GetByEmail(ctx, accounts.NormalizeEmail(*email))
		if err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}

		view := accountView{Account: acct}
		if rt.Tracker != nil {
			view.QuotesRemaining = rt.Tracker.Status(acct).QuotesRemaining
		}
		return printJSON(rt.Out, view)
	}
	return cmd
}

func newSetPlanCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "set-plan",
		Description: "Assign a plan to the account with the given email",
		Flags:       flag.NewFlagSet("set-plan", flag.ContinueOnError),
	}
	email := cmd.Flags.String("email", "", "Account email (required)")
	plan := cmd.Flags.String("plan", "", "Plan: free, pro or business (required)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *email == "" {
			return errors.New("email is required")
		}
		p := accounts.Plan(*plan)
		if !p.Valid() {
			return fmt.Errorf("%w: %q", accounts.ErrInvalidPlan, *plan)
		}

		found, err := rt.Store.SetPlanByEmail(ctx, accounts.NormalizeEmail(*email), p)
		if err != nil {
			return fmt.Errorf("failed to set plan: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: %s", accounts.ErrNotFound, *email)
		}
		rt.logger().WithFields(map[string]interface{}{
			"email":  accounts.NormalizeEmail(*email),
			"plan":   string(p),
			"source": "admin",
		}).Warn("Plan overridden by operator")
		fmt.Fprintf(rt.Out, "%s is now on the %s plan\n", accounts.NormalizeEmail(*email), p)
		return nil
	}
	return cmd
}

func newRestoreCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "restore",
		Description: "Restore access from an active provider subscription",
		Flags:       flag.NewFlagSet("restore", flag.ContinueOnError),
	}
	provider := cmd.Flags.String("provider", string(billing.ProviderPaddle), "Billing provider: paddle or lemonsqueezy")
	email := cmd.Flags.String("email", "", "Customer email (required)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		restorer, ok := rt.Restorers[billing.Provider(*provider)]
		if !ok || restorer == nil {
			return fmt.Errorf("unknown provider: %s", *provider)
		}

		result, err := restorer.Restore(ctx, *email)
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		return printJSON(rt.Out, result)
	}
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
