package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/mixgen/internal/formatter"
	"github.com/desertthunder/mixgen/internal/workflow"
	"github.com/urfave/cli/v3"
)

// generateResult is the JSON shape printed by the generate command.
type generateResult struct {
	Pending *workflow.PendingPlaylist `json:"pending"`
	Created *workflow.CreatedPlaylist `json:"created,omitempty"`
}

// Generate logs in, generates recommendations, shows the preview and creates the playlist once confirmed.
func (r *Runner) Generate(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		format = formatter.JSON
	}

	req := workflow.RecommendationRequest{
		DesiredCount: cmd.Int("count"),
		Genre:        strings.TrimSpace(cmd.String("genre")),
	}
	if req.DesiredCount == 0 {
		req.DesiredCount = r.config.Workflow.DefaultCount
	}
	if req.Genre == "" {
		req.Genre = r.config.Workflow.DefaultGenre
	}
	if clamped := workflow.ClampCount(req.DesiredCount); clamped != req.DesiredCount {
		r.writeStatus("⚠ Track count adjusted to %d (allowed range %d-%d)\n", clamped, workflow.MinTracks, workflow.MaxTracks)
	}

	wf, err := r.newWorkflow()
	if err != nil {
		return err
	}
	if err := r.login(ctx, wf, true); err != nil {
		return err
	}
	defer wf.Logout()

	var pending *workflow.PendingPlaylist
	err = r.spin(ctx, "Generating recommendations...", func(ctx context.Context) error {
		var err error
		pending, err = wf.GenerateRecommendations(ctx, req)
		return err
	})
	if err != nil {
		return err
	}
	if pending.Seeds.Fallback {
		r.writeStatus("⚠ No recent top tracks, seeded from fallback tracks\n")
	}

	result := generateResult{Pending: pending}
	if format != formatter.JSON || cmd.String("output") != "" {
		if err := r.writePreview(pending, format, cmd.String("output")); err != nil {
			return err
		}
	}

	if cmd.Bool("dry-run") {
		r.writeStatus("→ Dry run, playlist not created\n")
		return r.finishJSON(format, result)
	}

	name := strings.TrimSpace(cmd.String("name"))
	if !cmd.Bool("yes") {
		title := name
		if title == "" {
			title = pending.Name
		}
		ok, err := r.confirm(fmt.Sprintf("Create playlist %q with %d tracks?", title, min(len(pending.Tracks), workflow.MaxTracks)))
		if err != nil {
			return err
		}
		if !ok {
			if err := wf.ResetForNewPlaylist(); err != nil {
				return err
			}
			r.writeStatus("→ Playlist discarded\n")
			return r.finishJSON(format, result)
		}
	}

	var created *workflow.CreatedPlaylist
	err = r.spin(ctx, "Creating playlist...", func(ctx context.Context) error {
		var err error
		created, err = wf.ConfirmPlaylist(ctx, name)
		return err
	})
	if err != nil {
		return err
	}
	result.Created = created

	if cmd.Bool("open") && created.ExternalURL != "" {
		if err := r.opener(created.ExternalURL); err != nil {
			r.logger.Warn("failed to open playlist", "url", created.ExternalURL, "error", err)
		}
	}

	if format == formatter.JSON {
		return r.writeJSON(result, true)
	}
	return r.writePlainln("%s", strings.TrimRight(string(formatter.CreatedToText(created)), "\n"))
}

// writePreview renders the preview to stdout or, when path is set, to a file.
func (r *Runner) writePreview(pending *workflow.PendingPlaylist, format formatter.Format, path string) error {
	data, err := formatter.RenderPending(pending, format)
	if err != nil {
		return err
	}

	if path != "" {
		if err := formatter.WriteFile(path, data); err != nil {
			return err
		}
		r.logger.Info("preview saved", "path", path, "tracks", len(pending.Tracks))
		r.writeStatus("✓ Preview saved to %s\n", path)
		return nil
	}

	return r.writePlain("%s", data)
}

func (r *Runner) finishJSON(format formatter.Format, result generateResult) error {
	if format != formatter.JSON {
		return nil
	}
	return r.writeJSON(result, true)
}
