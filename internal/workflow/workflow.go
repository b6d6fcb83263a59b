package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/auth"
	"github.com/desertthunder/mixgen/internal/services"
	"github.com/desertthunder/mixgen/internal/shared"
	"golang.org/x/oauth2"
)

// Recorder receives state transitions and operation outcomes.
type Recorder interface {
	RecordTransition(from, to string)
	RecordOperation(op, outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string) {}
func (nopRecorder) RecordOperation(string, string, time.Duration) {}

// Options configures a [Workflow].
type Options struct {
	Catalog    services.Catalog      // required
	Authorizer *auth.Authorizer      // required for StartLogin
	Clock      shared.Clock          // defaults to shared.SystemClock
	Logger     *log.Logger           // defaults to shared.NewLogger(nil)
	Recorder   Recorder              // optional
	Config     shared.WorkflowConfig // playlist defaults and fallback seeds
}

// Workflow owns the session token and drives login, generation and playlist creation.
//
// All methods are safe for concurrent use. The mutex is never held across a catalog call.
type Workflow struct {
	catalog    services.Catalog
	authorizer *auth.Authorizer
	clock      shared.Clock
	logger     *log.Logger
	recorder   Recorder
	cfg        shared.WorkflowConfig

	mu         sync.Mutex
	state      State
	session    *Session
	loginState string
	timer      shared.Timer
	epoch      uint64 // bumped whenever the session is replaced or cleared
	busy       bool
	pending    *PendingPlaylist
	created    *CreatedPlaylist
	remote     *services.SpotifyPlaylist // created but not yet populated
	lastErr    error
	onExpire   func()
	progress   chan<- ProgressUpdate
}

// New creates a logged out workflow.
func New(opts Options) *Workflow {
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Config.DefaultName == "" {
		opts.Config.DefaultName = shared.DefaultPlaylistName
	}
	if len(opts.Config.FallbackSeeds) == 0 {
		opts.Config.FallbackSeeds = shared.DefaultFallbackSeeds
	}

	return &Workflow{
		catalog:    opts.Catalog,
		authorizer: opts.Authorizer,
		clock:      opts.Clock,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
		cfg:        opts.Config,
		state:      LoggedOut,
	}
}

// SetExpireHook registers fn to run after the session is cleared by expiry or a 401.
func (w *Workflow) SetExpireHook(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onExpire = fn
}

// SetProgress registers a channel that receives progress updates. Sends never block.
func (w *Workflow) SetProgress(ch chan<- ProgressUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.progress = ch
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns a copy of the workflow for rendering.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		State:     w.state,
		Pending:   w.pending.clone(),
		Created:   w.created.clone(),
		LastError: w.lastErr,
	}
	if w.session != nil {
		s.LoggedIn = true
		s.UserID = w.session.UserID
		s.DisplayName = w.session.DisplayName
		s.ExpiresAt = w.session.ExpiresAt
	}
	return s
}

// StartLogin discards any existing session and returns the authorize URL the user must visit.
func (w *Workflow) StartLogin() (string, error) {
	if w.authorizer == nil {
		return "", fmt.Errorf("%w: no authorizer configured", shared.ErrMissingConfig)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.clearLocked()
	w.loginState = state
	w.transitionLocked(Authenticating)
	w.logger.Info("login started", "redirect_uri", w.authorizer.RedirectURI())
	return w.authorizer.URL(state), nil
}

// CompleteLogin consumes the redirect fragment from the identity provider.
//
// A fragment without a token changes nothing and returns nil, except that a pending login falls back to [LoggedOut].
// A token whose state does not match the one issued by [Workflow.StartLogin] is rejected with [shared.ErrAuthFailed],
// as is a state-carrying token when no login is pending. Otherwise the session is stored, its
// expiry is scheduled and the user's profile is fetched. A failed profile fetch keeps the session and returns
// an error wrapping [shared.ErrProfileUnavailable].
func (w *Workflow) CompleteLogin(ctx context.Context, fragment string) error {
	start := w.clock.Now()
	grant, ok := auth.ParseFragment(fragment)

	w.mu.Lock()
	if !ok {
		if w.state == Authenticating {
			w.clearLocked()
			w.transitionLocked(LoggedOut)
		}
		w.mu.Unlock()
		if reason := auth.DeniedReason(fragment); reason != "" {
			w.logger.Warn("login denied", "reason", reason)
		}
		w.recordOperation("login", nil, start)
		return nil
	}

	if grant.State != w.loginState {
		if w.state == Authenticating {
			w.clearLocked()
			w.transitionLocked(LoggedOut)
			w.lastErr = shared.ErrAuthFailed
		}
		w.mu.Unlock()
		err := fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)
		w.recordOperation("login", err, start)
		return err
	}

	w.clearLocked()
	now := w.clock.Now()
	w.session = &Session{Token: grant.Token(now), ExpiresAt: now.Add(grant.ExpiresIn)}
	epoch := w.epoch
	w.timer = w.clock.AfterFunc(grant.ExpiresIn, func() { w.expire(epoch, "timer") })
	w.busy = true
	w.transitionLocked(Ready)
	token := w.session.Token
	w.mu.Unlock()

	w.logger.Info("login completed", "expires_in", grant.ExpiresIn)

	_, err := w.fetchProfile(ctx, epoch, token, 1, 1)
	if !w.finish(epoch, Ready, func() { w.lastErr = err }) {
		err = expiredError(err)
	}
	w.recordOperation("login", err, start)
	return err
}

// fetchProfile stores the token owner's ID and display name on the session and returns the ID.
func (w *Workflow) fetchProfile(ctx context.Context, epoch uint64, token *oauth2.Token, step, total int) (string, error) {
	if err := w.check(epoch); err != nil {
		return "", err
	}
	w.sendProgress(fetchProfileUpdate(step, total))

	user, err := w.catalog.CurrentUser(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrSessionExpired) {
			w.expire(epoch, "profile")
			return "", err
		}
		w.logger.Warn("profile fetch failed", "error", err)
		return "", fmt.Errorf("%w: %v", shared.ErrProfileUnavailable, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.epoch || w.session == nil {
		return "", expiredError(nil)
	}
	w.session.UserID = user.ID
	w.session.DisplayName = user.DisplayName
	return user.ID, nil
}

// ResetForNewPlaylist discards the preview or the completed playlist and returns to [Ready].
func (w *Workflow) ResetForNewPlaylist() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.busy {
		return shared.ErrBusy
	}
	if w.state != Previewing && w.state != Completed {
		return fmt.Errorf("%w: cannot reset from %s", shared.ErrInvalidState, w.state)
	}

	w.pending = nil
	w.created = nil
	w.remote = nil
	w.lastErr = nil
	w.transitionLocked(Ready)
	return nil
}

// Logout clears the session and every playlist from any state.
func (w *Workflow) Logout() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.clearLocked()
	w.lastErr = nil
	w.transitionLocked(LoggedOut)
	w.logger.Info("logged out")
}

// clearLocked drops the session and run data and invalidates in-flight operations.
func (w *Workflow) clearLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.epoch++
	w.session = nil
	w.loginState = ""
	w.busy = false
	w.pending = nil
	w.created = nil
	w.remote = nil
}

// expire clears the session if it still belongs to epoch and runs the expire hook.
func (w *Workflow) expire(epoch uint64, cause string) {
	w.mu.Lock()
	if epoch != w.epoch || w.session == nil {
		w.mu.Unlock()
		return
	}
	w.clearLocked()
	w.lastErr = shared.ErrSessionExpired
	w.transitionLocked(LoggedOut)
	hook := w.onExpire
	w.mu.Unlock()

	w.logger.Warn("session expired", "cause", cause)
	if hook != nil {
		hook()
	}
}

// check fails when the session of epoch is gone or its token has passed its declared expiry.
func (w *Workflow) check(epoch uint64) error {
	w.mu.Lock()
	if epoch != w.epoch || w.session == nil {
		w.mu.Unlock()
		return expiredError(nil)
	}
	expired := !w.clock.Now().Before(w.session.ExpiresAt)
	w.mu.Unlock()

	if expired {
		w.expire(epoch, "clock")
		return expiredError(nil)
	}
	return nil
}

// begin claims the single-flight slot for an operation that moves from one of the given states to next.
func (w *Workflow) begin(next State, from ...State) (uint64, *Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.session == nil || !w.clock.Now().Before(w.session.ExpiresAt) {
		return 0, nil, shared.ErrNotAuthenticated
	}
	if w.busy {
		return 0, nil, shared.ErrBusy
	}

	allowed := false
	for _, s := range from {
		if w.state == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return 0, nil, fmt.Errorf("%w: cannot move to %s from %s", shared.ErrInvalidState, next, w.state)
	}

	w.busy = true
	w.transitionLocked(next)
	session := *w.session
	return w.epoch, &session, nil
}

// finish releases the single-flight slot and moves to next if the session of epoch is still current.
func (w *Workflow) finish(epoch uint64, next State, apply func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if epoch != w.epoch {
		return false
	}
	w.busy = false
	if apply != nil {
		apply()
	}
	w.transitionLocked(next)
	return true
}

func (w *Workflow) transitionLocked(next State) {
	prev := w.state
	w.state = next
	if prev != next {
		w.recorder.RecordTransition(prev.String(), next.String())
		w.logger.Debug("state changed", "from", prev, "to", next)
	}
}

func (w *Workflow) recordOperation(op string, err error, start time.Time) {
	w.recorder.RecordOperation(op, Outcome(err), w.clock.Now().Sub(start))
}

// Outcome classifies an operation error into a short label for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrSessionExpired):
		return "expired"
	case errors.Is(err, shared.ErrNotAuthenticated):
		return "unauthenticated"
	case errors.Is(err, shared.ErrNoResults):
		return "no_results"
	case errors.Is(err, shared.ErrBusy):
		return "busy"
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrEmptyPlaylist):
		return "rejected"
	case errors.Is(err, shared.ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, shared.ErrProfileUnavailable):
		return "profile_unavailable"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// expiredError returns err if it already reports an expired session, otherwise a fresh one.
func expiredError(err error) error {
	if err != nil && errors.Is(err, shared.ErrSessionExpired) {
		return err
	}
	return fmt.Errorf("%w: session ended during operation", shared.ErrSessionExpired)
}
