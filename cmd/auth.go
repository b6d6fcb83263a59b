package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/mixgen/internal/auth"
	"github.com/desertthunder/mixgen/internal/server"
	"github.com/desertthunder/mixgen/internal/shared"
	"github.com/desertthunder/mixgen/internal/workflow"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// sessionInfo is the JSON shape printed by the login command.
type sessionInfo struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login runs the implicit grant in the browser and prints the profile of the signed in user.
//
// Sessions live only as long as the process, so the session is discarded before returning.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	wf, err := r.newWorkflow()
	if err != nil {
		return err
	}

	if err := r.login(ctx, wf, true); err != nil {
		return err
	}
	defer wf.Logout()

	snap := wf.Snapshot()
	if cmd.Bool("json") {
		return r.writeJSON(sessionInfo{UserID: snap.UserID, DisplayName: snap.DisplayName, ExpiresAt: snap.ExpiresAt}, true)
	}

	if snap.UserID == "" {
		r.writePlainln("✓ Authorization successful")
		r.writePlain("⚠ Profile could not be loaded\n")
	} else {
		name := snap.DisplayName
		if name == "" {
			name = snap.UserID
		}
		r.writePlainln("✓ Logged in as %s", name)
		r.writePlain("  User ID: %s\n", snap.UserID)
	}
	r.writePlain("  Session expires: %s\n", snap.ExpiresAt.Local().Format(time.Kitchen))
	return nil
}

// login drives wf from logged out to ready through the browser.
//
// A session whose profile could not be loaded is kept; the profile is fetched again when a playlist is created.
func (r *Runner) login(ctx context.Context, wf *workflow.Workflow, announce bool) error {
	authURL, err := wf.StartLogin()
	if err != nil {
		return err
	}

	fragment, err := r.redirect(ctx, authURL, announce)
	if err != nil {
		wf.Logout()
		return err
	}

	if err := wf.CompleteLogin(ctx, fragment); err != nil {
		if errors.Is(err, shared.ErrProfileUnavailable) {
			r.logger.Warn("logged in without a profile", "error", err)
			return nil
		}
		return err
	}

	if !wf.Snapshot().LoggedIn {
		reason := auth.DeniedReason(fragment)
		if reason == "" {
			reason = "no access token was returned"
		}
		return fmt.Errorf("%w: %s", shared.ErrAuthFailed, reason)
	}
	return nil
}

// waitForRedirect runs the callback server, sends the user to authURL and blocks until the redirect fragment
// arrives or the login timeout passes.
func (r *Runner) waitForRedirect(ctx context.Context, authURL string, announce bool) (string, error) {
	redirect, err := url.Parse(r.config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: redirect_uri: %v", shared.ErrInvalidConfig, err)
	}

	srv := server.NewCallbackServer(server.CallbackServerOpts{
		Addr:         r.config.Server.Addr(),
		CallbackPath: redirect.Path,
		Metrics:      r.metrics.Handler(),
		Logger:       shared.WithLogger(r.logger, "component", "callback"),
	})
	if err := srv.Listen(); err != nil {
		return "", err
	}

	timeout := r.config.Server.LoginTimeout()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(waitCtx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if announce {
		r.writeStatus("→ Opening browser for Spotify authorization...\n")
	}
	if err := r.opener(authURL); err != nil {
		r.logger.Warn("failed to open browser automatically", "error", err)
		if announce {
			r.writeStatus("\n⚠ Could not open browser automatically.\n")
			r.writeStatus("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}
	if announce {
		r.writeStatus("→ Waiting for authorization (%s timeout)...\n", timeout)
	}

	var fragment string
	g.Go(func() error {
		defer cancel()
		select {
		case result := <-srv.Result():
			if err := result.Error(); err != nil {
				return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
			}
			fragment = result.Fragment
			return nil
		case <-gctx.Done():
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
			}
			return gctx.Err()
		}
	})

	if err := g.Wait(); err != nil {
		return "", err
	}
	return fragment, nil
}
