package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/auth"
	"github.com/desertthunder/mixgen/internal/observability"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/shared"
	"github.com/desertthunder/mixgen/internal/workflow"
	"github.com/urfave/cli/v3"
)

// ConfirmFunc asks the user a yes/no question.
type ConfirmFunc func(title string) (bool, error)

// SpinFunc runs action while showing title.
type SpinFunc func(ctx context.Context, title string, action func(context.Context) error) error

// RedirectFunc sends the user to authURL and returns the redirect fragment.
type RedirectFunc func(ctx context.Context, authURL string, announce bool) (string, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	status     io.Writer
	metrics    *observability.Metrics
	catalog    services.Catalog
	opener     shared.BrowserOpener
	confirm    ConfirmFunc
	spin       SpinFunc
	redirect   RedirectFunc
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config   *shared.Config // loaded from --config when nil
	Logger   *log.Logger
	Output   io.Writer // command results
	Status   io.Writer // progress lines, defaults to stderr
	Metrics  *observability.Metrics
	Catalog  services.Catalog // defaults to a SpotifyService built from the config
	Opener   shared.BrowserOpener
	Confirm  ConfirmFunc
	Spin     SpinFunc
	Redirect RedirectFunc
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Status == nil {
		opts.Status = os.Stderr
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics("mixgen")
	}
	if opts.Opener == nil {
		opts.Opener = shared.OpenBrowser
	}
	if opts.Confirm == nil {
		opts.Confirm = confirmPrompt
	}
	if opts.Spin == nil {
		opts.Spin = spin
	}

	r := &Runner{
		config:   opts.Config,
		logger:   opts.Logger,
		output:   opts.Output,
		status:   opts.Status,
		metrics:  opts.Metrics,
		catalog:  opts.Catalog,
		opener:   opts.Opener,
		confirm:  opts.Confirm,
		spin:     opts.Spin,
		redirect: opts.Redirect,
	}
	if r.redirect == nil {
		r.redirect = r.waitForRedirect
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		loginCommand, generateCommand, tuiCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger used by commands and the workflows they build.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// before loads the configuration and applies the log level flags.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	r.configPath = cmd.String("config")
	if r.config == nil {
		config, err := shared.LoadConfigOrDefault(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	if level, err := log.ParseLevel(r.config.Log.Level); err == nil {
		shared.SetLogLevel(r.logger, level)
	} else if r.config.Log.Level != "" {
		r.logger.Warn("unknown log level, keeping default", "level", r.config.Log.Level)
	}

	switch {
	case cmd.Bool("verbose"):
		shared.SetLogLevel(r.logger, log.DebugLevel)
	case cmd.Bool("quiet"):
		shared.SetLogLevel(r.logger, log.ErrorLevel)
	}
	return ctx, nil
}

// newWorkflow validates the configuration and wires a workflow to the catalog, authorizer and metrics.
func (r *Runner) newWorkflow() (*workflow.Workflow, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	spotify := r.config.Credentials.Spotify
	authorizer, err := auth.NewAuthorizer(spotify.ClientID, spotify.RedirectURI, spotify.AuthURL)
	if err != nil {
		return nil, err
	}

	catalog := r.catalog
	if catalog == nil {
		catalog = services.NewSpotifyService(services.SpotifyOpts{
			BaseURL:    r.config.Catalog.BaseURL,
			HTTPClient: &http.Client{Timeout: r.config.Catalog.Timeout()},
			RateLimit:  r.config.Catalog.RateLimit,
			Logger:     shared.WithLogger(r.logger, "service", "spotify"),
			Observer:   r.metrics,
		})
	}

	return workflow.New(workflow.Options{
		Catalog:    catalog,
		Authorizer: authorizer,
		Logger:     r.logger,
		Recorder:   r.metrics,
		Config:     r.config.Workflow,
	}), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// writeStatus writes a progress line that must not mix with command results.
func (r *Runner) writeStatus(format string, args ...any) {
	fmt.Fprintf(r.status, format, args...)
}

func confirmPrompt(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Create").
		Negative("Discard").
		Value(&ok).
		Run()
	return ok, err
}

func spin(ctx context.Context, title string, action func(context.Context) error) error {
	return spinner.New().Title(title).Context(ctx).ActionWithErr(action).Run()
}
