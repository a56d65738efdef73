package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/payables/internal/erpsync"
	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/internal/users"
)

// passwordEnv is read when --password is omitted so secrets stay out of shell history.
const passwordEnv = "PAYABLES_ADMIN_PASSWORD"

func newMigrateCommand(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				applied, err := b.Migrate(ctx)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					printf(cmd.OutOrStdout(), "schema up to date\n")
					return nil
				}
				for _, v := range applied {
					printf(cmd.OutOrStdout(), "applied %s\n", v)
				}
				return nil
			})
		},
	}
}

func newUsersCommand(open Opener) *cobra.Command {
	usersCmd := &cobra.Command{Use: "users", Short: "Manage user accounts"}

	var req users.CreateUserRequest
	var role string
	bootstrap := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create an account without logging in, typically the first admin",
		Example: `  payablesctl users bootstrap --username admin --full-name "Site Admin"
  PAYABLES_ADMIN_PASSWORD=secret payablesctl users bootstrap --username ops --role accountant`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Password == "" {
				req.Password = os.Getenv(passwordEnv)
			}
			if req.Password == "" {
				return fmt.Errorf("password required: pass --password or set %s", passwordEnv)
			}
			req.Role = shared.Role(strings.ToLower(role))
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				u, err := b.BootstrapUser(ctx, req)
				if errors.Is(err, shared.ErrConflict) {
					return fmt.Errorf("user %q already exists", req.Username)
				}
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "created user %s (id %d, role %s)\n", u.Username, u.ID, u.Role)
				return nil
			})
		},
	}
	bootstrap.Flags().StringVar(&req.Username, "username", "admin", "login name")
	bootstrap.Flags().StringVar(&req.Password, "password", "", "initial password (default $"+passwordEnv+")")
	bootstrap.Flags().StringVar(&req.FullName, "full-name", "Administrator", "display name")
	bootstrap.Flags().StringVar(&req.Email, "email", "", "contact email")
	bootstrap.Flags().StringVar(&role, "role", string(shared.RoleAdmin), "one of admin, accountant, approver, viewer")

	usersCmd.AddCommand(bootstrap)
	return usersCmd
}

// syncKinds expands the positional kind argument; "all" runs vendors first.
func syncKinds(args []string) ([]string, error) {
	kind := "all"
	if len(args) > 0 {
		kind = strings.ToLower(args[0])
	}
	switch kind {
	case "all":
		return []string{erpsync.KindVendors, erpsync.KindInvoices}, nil
	case erpsync.KindVendors, erpsync.KindInvoices:
		return []string{kind}, nil
	default:
		return nil, fmt.Errorf("unknown sync kind %q (want vendors, invoices or all)", kind)
	}
}

func newSyncCommand(open Opener) *cobra.Command {
	syncCmd := &cobra.Command{Use: "sync", Short: "Import vendors and pending bills from Tally"}

	var actorID int64
	run := &cobra.Command{
		Use:   "run [vendors|invoices|all]",
		Short: "Run the import in this process",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := syncKinds(args)
			if err != nil {
				return err
			}
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				if actorID > 0 {
					ctx = shared.ContextWithActor(ctx, shared.Actor{UserID: actorID})
				}
				for _, kind := range kinds {
					res, err := b.RunSync(ctx, kind)
					if err != nil {
						return fmt.Errorf("sync %s: %w", kind, err)
					}
					printf(cmd.OutOrStdout(), "%s: imported %d, skipped %d\n", kind, res.Imported, res.Skipped)
				}
				return nil
			})
		},
	}
	run.Flags().Int64Var(&actorID, "actor", 0, "user id recorded in the audit log")

	var enqueueActor int64
	enqueue := &cobra.Command{
		Use:   "enqueue [vendors|invoices|all]",
		Short: "Hand the import to the worker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := syncKinds(args); err != nil {
				return err
			}
			kind := ""
			if len(args) > 0 && strings.ToLower(args[0]) != "all" {
				kind = strings.ToLower(args[0])
			}
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				id, err := b.EnqueueSync(ctx, kind, enqueueActor)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "enqueued %s\n", id)
				return nil
			})
		},
	}
	enqueue.Flags().Int64Var(&enqueueActor, "actor", 0, "user id recorded in the audit log")

	syncCmd.AddCommand(run, enqueue)
	return syncCmd
}

func newReportsCommand(open Opener) *cobra.Command {
	reportsCmd := &cobra.Command{Use: "reports", Short: "Report cache maintenance"}

	var async bool
	warmup := &cobra.Command{
		Use:   "warmup",
		Short: "Refill the dashboard and aging caches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				if async {
					id, err := b.EnqueueWarmup(ctx)
					if err != nil {
						return err
					}
					printf(cmd.OutOrStdout(), "enqueued %s\n", id)
					return nil
				}
				if err := b.Warmup(ctx); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "report cache warmed\n")
				return nil
			})
		},
	}
	warmup.Flags().BoolVar(&async, "async", false, "enqueue for the worker instead of running here")

	reportsCmd.AddCommand(warmup)
	return reportsCmd
}

func newJobsCommand(open Opener) *cobra.Command {
	jobsCmd := &cobra.Command{Use: "jobs", Short: "Inspect and trigger background jobs"}

	var asJSON bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				st, err := b.QueueStats(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}
				printf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
					st.Queue, st.Pending, st.Active, st.Scheduled, st.Retry, st.Archived)
				return nil
			})
		},
	}
	stats.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	var retention int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Enqueue an idempotency key purge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if retention < 0 {
				return errors.New("retention must not be negative")
			}
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				id, err := b.EnqueueCleanup(ctx, retention)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "enqueued %s\n", id)
				return nil
			})
		},
	}
	cleanup.Flags().IntVar(&retention, "retention-hours", 0, "keep keys newer than this (0 uses the worker default)")

	jobsCmd.AddCommand(stats, cleanup)
	return jobsCmd
}
