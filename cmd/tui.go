package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/mixgen/internal/shared"
	"github.com/desertthunder/mixgen/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)

	wf, err := r.newWorkflow()
	if err != nil {
		return err
	}
	defer wf.Logout()

	err = ui.Run(ctx, ui.Options{
		Workflow: wf,
		Login: func(ctx context.Context, authURL string) (string, error) {
			return r.redirect(ctx, authURL, false)
		},
		Opener:   r.opener,
		Defaults: r.config.Workflow,
		Logger:   r.logger,
	})
	if err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
