package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/payables/internal/erpsync"
	"github.com/odyssey-erp/payables/internal/users"
)

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// Backend is everything the operator commands touch.
type Backend interface {
	Migrate(ctx context.Context) ([]string, error)
	BootstrapUser(ctx context.Context, req users.CreateUserRequest) (users.User, error)
	RunSync(ctx context.Context, kind string) (erpsync.Result, error)
	EnqueueSync(ctx context.Context, kind string, actorID int64) (string, error)
	Warmup(ctx context.Context) error
	EnqueueWarmup(ctx context.Context) (string, error)
	EnqueueCleanup(ctx context.Context, retentionHours int) (string, error)
	QueueStats(ctx context.Context) (QueueStats, error)
	Close() error
}

// Opener connects a Backend. Commands open it lazily so --help works
// without a database.
type Opener func(ctx context.Context) (Backend, error)

// NewRootCommand assembles the payablesctl command tree.
func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "payablesctl",
		Short:         "Operator tooling for the payables service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCommand(open),
		newUsersCommand(open),
		newSyncCommand(open),
		newReportsCommand(open),
		newJobsCommand(open),
	)
	return root
}

// withBackend opens the backend, runs fn and always closes it.
func withBackend(cmd *cobra.Command, open Opener, fn func(ctx context.Context, b Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := open(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = b.Close() }()
	return fn(ctx, b)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
