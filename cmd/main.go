package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/mixgen/internal/shared"
)

const version = "0.1.0"

// Exit codes returned by the binary.
const (
	exitOK = iota
	exitError
	exitUsage
	exitConfig
	exitAuth
	exitNoResults
)

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadEnvFiles(); err != nil {
		logger.Warn("failed to load .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{Logger: logger})
	if err := runner.app().Run(ctx, os.Args); err != nil {
		code := exitCode(err)
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted")
		} else {
			logger.Error("application error", "error", err)
		}
		stop()
		os.Exit(code)
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, shared.ErrInvalidFlag),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidInput):
		return exitUsage
	case errors.Is(err, shared.ErrMissingConfig),
		errors.Is(err, shared.ErrInvalidConfig),
		errors.Is(err, shared.ErrMissingCredentials):
		return exitConfig
	case errors.Is(err, shared.ErrAuthFailed),
		errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrSessionExpired),
		errors.Is(err, shared.ErrTimeout):
		return exitAuth
	case errors.Is(err, shared.ErrNoResults):
		return exitNoResults
	default:
		return exitError
	}
}
