package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"schedcore/internal/cli"
	appLog "schedcore/internal/log"
)

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	appLog.Close()
	if err != nil {
		os.Exit(1)
	}
}
