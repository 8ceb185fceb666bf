package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	exitFailure     = 1
	exitInterrupted = 130
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCMD().ExecuteContext(ctx)
	code := exitCode(ctx, err)
	stop()
	os.Exit(code)
}

func newRootCMD() *cobra.Command {
	root := &cobra.Command{
		Use:           "marketresearch",
		Short:         "Plan, execute and synthesize market research reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCMD(), serveCMD(), runsCMD(), migrateCMD())
	return root
}

func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "interrupted")
		return exitInterrupted
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return exitFailure
}
