package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nmthangdn2000/web-automation-tools/cmd"
	"github.com/nmthangdn2000/web-automation-tools/internal/observability"
)

func main() {
	// Cancelling the context aborts the running workflow; sessions are still closed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		stop()
		os.Exit(1)
	}
}
