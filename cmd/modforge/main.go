package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/modforge/internal/app"
	"github.com/vk/modforge/internal/cli"
	"github.com/vk/modforge/internal/hcl_adapter"
)

// main is the entrypoint for the modforge application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Run failures come back as an ExitError with code 1.
func run(ctx context.Context, outW io.Writer, args []string) (err error) {
	inv, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Handler registration panics on programmer errors; report them as a
	// failed run instead of a stack trace.
	defer func() {
		if r := recover(); r != nil {
			err = &cli.ExitError{Code: 1, Message: fmt.Sprintf("application startup panicked: %v", r)}
		}
	}()

	modforge := app.NewApp(outW, inv.Config, hcl_adapter.NewLoader())
	defer modforge.Close()

	switch inv.Command {
	case cli.CommandPlan:
		err = modforge.WritePreview(ctx, outW)
	default:
		err = modforge.Run(ctx)
	}
	if err != nil {
		return &cli.ExitError{Code: 1, Message: err.Error()}
	}
	return nil
}
