package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/firefly-engineering/modhost/cmd"
	"github.com/firefly-engineering/modhost/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
