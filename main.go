package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/linlay/agent-webclient/cmd/root"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.Execute(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]...); err != nil {
		stop()
		os.Exit(1)
	}
}
