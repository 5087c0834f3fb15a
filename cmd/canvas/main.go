package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkeye/Canvas/cmd/canvas/commands"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	commands.SetVersion(version)
	// errors are already printed by the printer package
	if err := commands.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
