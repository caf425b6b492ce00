package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pipable/pipable/internal/cli/pipablectl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := pipablectl.Run(ctx, os.Args[1:], pipablectl.Options{
		EnvFiles: []string{".env"},
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	})
	stop()
	os.Exit(code)
}
