package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/payables/cmd/payablesctl/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.OpenLive).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "payablesctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
