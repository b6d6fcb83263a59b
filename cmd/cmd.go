// submodule cmd contains command definitions
package main

import (
	"fmt"

	"github.com/desertthunder/mixgen/internal/workflow"
	"github.com/urfave/cli/v3"
)

// app builds the root command.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "mixgen",
		Usage:   "Generate Spotify playlists from your recent listening",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Only log errors",
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

// loginCommand verifies the login flow end to end.
func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in with Spotify in the browser and show the signed in profile",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Login,
	}
}

// generateCommand runs the whole workflow once: login, generate, preview and create.
func generateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "generate",
		Aliases: []string{"gen"},
		Usage:   "Generate a playlist from your recent top tracks",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   fmt.Sprintf("Number of tracks (%d-%d, defaults to workflow.default_count)", workflow.MinTracks, workflow.MaxTracks),
			},
			&cli.StringFlag{
				Name:    "genre",
				Aliases: []string{"g"},
				Usage:   "Bias recommendations towards a genre (\"any\" for none)",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Playlist name (defaults to workflow.default_name)",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Create the playlist without asking",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Stop after the preview",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the created playlist in the browser",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Preview format: text, markdown, csv or json",
				Value:   "text",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON (same as --format json)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the preview to a file instead of stdout",
			},
		},
		Action: r.Generate,
	}
}

// tuiCommand returns the top-level TUI command for the interactive workflow.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive playlist generator",
		Action:  r.TUI,
	}
}

// configCommand manages the configuration file.
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the example configuration to --config",
				Action: r.ConfigInit,
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "validate",
						Usage: "Fail when the configuration cannot run the workflow",
					},
				},
				Action: r.ConfigShow,
			},
		},
	}
}
