package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixgen/internal/formatter"
	"github.com/desertthunder/mixgen/internal/shared"
	"github.com/desertthunder/mixgen/internal/workflow"
)

const (
	fieldCount = iota
	fieldGenre
	fieldName
)

// LoginFunc sends the user to authURL and blocks until the redirect fragment arrives.
type LoginFunc func(ctx context.Context, authURL string) (string, error)

// Options configures a [Model].
type Options struct {
	Workflow *workflow.Workflow
	Login    LoginFunc
	Opener   shared.BrowserOpener  // defaults to [shared.OpenBrowser]
	Defaults shared.WorkflowConfig // pre-fills the form
	Logger   *log.Logger
}

// Model is the root bubbletea model. Every view is derived from the workflow's state.
type Model struct {
	ctx    context.Context
	wf     *workflow.Workflow
	login  LoginFunc
	opener shared.BrowserOpener
	logger *log.Logger

	width  int
	height int

	inputs  []textinput.Model
	focus   int
	name    string
	tracks  list.Model
	spinner spinner.Model

	progressChan chan workflow.ProgressUpdate
	progress     *workflow.ProgressUpdate
	running      string // label of the in-flight operation
	authURL      string
	notice       string
	err          error

	help help.Model
	keys keyMap
}

// NewModel builds the TUI model and subscribes it to the workflow's progress updates.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.Opener == nil {
		opts.Opener = shared.OpenBrowser
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.cursor

	delegate := list.NewDefaultDelegate()
	tracks := list.New([]list.Item{}, delegate, 0, 0)
	tracks.SetShowTitle(false)
	tracks.SetShowHelp(false)
	tracks.SetFilteringEnabled(false)

	m := &Model{
		ctx:          ctx,
		wf:           opts.Workflow,
		login:        opts.Login,
		opener:       opts.Opener,
		logger:       opts.Logger,
		inputs:       newInputs(opts.Defaults),
		tracks:       tracks,
		spinner:      sp,
		progressChan: make(chan workflow.ProgressUpdate, 16),
		help:         help.New(),
		keys:         newKeyMap(),
	}
	m.wf.SetProgress(m.progressChan)
	return m
}

func newInputs(cfg shared.WorkflowConfig) []textinput.Model {
	count := textinput.New()
	count.Prompt = ""
	count.CharLimit = 3
	count.Placeholder = strconv.Itoa(workflow.ClampCount(cfg.DefaultCount))
	if cfg.DefaultCount > 0 {
		count.SetValue(strconv.Itoa(cfg.DefaultCount))
	}
	count.Focus()

	genre := textinput.New()
	genre.Prompt = ""
	genre.CharLimit = 40
	genre.Placeholder = "any"
	genre.SetValue(cfg.DefaultGenre)

	name := textinput.New()
	name.Prompt = ""
	name.CharLimit = 100
	name.Placeholder = cfg.DefaultName
	if name.Placeholder == "" {
		name.Placeholder = shared.DefaultPlaylistName
	}

	return []textinput.Model{count, genre, name}
}

// Run starts the TUI and blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	m := NewModel(ctx, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	opts.Workflow.SetExpireHook(func() { p.Send(SessionExpiredMsg()) })
	defer opts.Workflow.SetExpireHook(nil)
	defer opts.Workflow.SetProgress(nil)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForProgress())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.tracks.SetSize(msg.Width, max(msg.Height-10, 5))
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		if m.running == "" {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case Msg:
		return m.handleMsg(msg)
	}

	if m.wf.State() == workflow.Ready {
		return m, m.updateInputs(msg)
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		update := msg.data.(workflow.ProgressUpdate)
		m.progress = &update
		return m, m.waitForProgress()
	case MsgLoginComplete:
		m.running, m.authURL, m.progress = "", "", nil
		err := errorOf(msg.data)
		switch {
		case errors.Is(err, shared.ErrProfileUnavailable):
			m.notice = "Logged in, but the profile could not be loaded. It will be retried on create."
		case err != nil:
			m.err = err
		case !m.wf.Snapshot().LoggedIn:
			m.notice = "Authorization was not granted."
		default:
			m.notice = ""
		}
		return m, m.focusInput(m.focus)
	case MsgGenerated:
		m.running, m.progress = "", nil
		data := msg.data.(generatedData)
		switch {
		case errors.Is(data.err, shared.ErrNoResults):
			m.notice = "No recommendations came back. Try a different genre."
		case errors.Is(data.err, shared.ErrSessionExpired):
			m.notice = "Session expired. Log in again."
		case data.err != nil:
			m.err = data.err
		default:
			m.tracks.SetItems(trackItems(data.pending.Tracks))
			m.tracks.ResetSelected()
		}
		return m, nil
	case MsgCreated:
		m.running, m.progress = "", nil
		data := msg.data.(createdData)
		switch {
		case errors.Is(data.err, shared.ErrSessionExpired):
			m.notice = "Session expired. Log in again."
		case data.err != nil:
			m.err = data.err
		default:
			m.tracks.SetItems(nil)
		}
		return m, nil
	case MsgSessionExpired:
		m.running, m.progress = "", nil
		m.tracks.SetItems(nil)
		m.notice = "Session expired. Log in again."
		return m, nil
	case MsgOpened:
		if err := errorOf(msg.data); err != nil {
			m.err = fmt.Errorf("could not open browser: %w", err)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.abort) {
		return m, tea.Quit
	}
	if m.busy(m.wf.State()) {
		return m, nil
	}

	m.err = nil
	switch m.wf.State() {
	case workflow.LoggedOut:
		return m.handleLoggedOutKeys(msg)
	case workflow.Ready:
		return m.handleFormKeys(msg)
	case workflow.Previewing:
		return m.handlePreviewKeys(msg)
	case workflow.Completed:
		return m.handleCompletedKeys(msg)
	}
	if key.Matches(msg, m.keys.quit) {
		return m, tea.Quit
	}
	return m, nil
}

// busy reports whether an operation is in flight, whether started here or by another caller of the workflow.
func (m *Model) busy(state workflow.State) bool {
	return m.running != "" || state.Busy()
}

func (m *Model) handleLoggedOutKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.login):
		return m, m.startLogin()
	}
	return m, nil
}

func (m *Model) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	case key.Matches(msg, m.keys.generate):
		return m, m.generate()
	case key.Matches(msg, m.keys.next):
		return m, m.focusInput((m.focus + 1) % len(m.inputs))
	case key.Matches(msg, m.keys.prev):
		return m, m.focusInput((m.focus + len(m.inputs) - 1) % len(m.inputs))
	case msg.Type == tea.KeyEsc:
		return m, tea.Quit
	}
	return m, m.updateInputs(msg)
}

func (m *Model) handlePreviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	case key.Matches(msg, m.keys.yes):
		return m, m.confirm()
	case key.Matches(msg, m.keys.no):
		return m, m.restart()
	}

	var cmd tea.Cmd
	m.tracks, cmd = m.tracks.Update(msg)
	return m, cmd
}

func (m *Model) handleCompletedKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.logout):
		return m, m.logout()
	case key.Matches(msg, m.keys.open):
		created := m.wf.Snapshot().Created
		if created == nil || created.ExternalURL == "" {
			return m, nil
		}
		url, opener := created.ExternalURL, m.opener
		return m, func() tea.Msg { return openedMsg(opener(url)) }
	case key.Matches(msg, m.keys.restart):
		return m, m.restart()
	}
	return m, nil
}

func (m *Model) startLogin() tea.Cmd {
	if m.login == nil {
		m.err = fmt.Errorf("%w: no login handler", shared.ErrMissingConfig)
		return nil
	}

	authURL, err := m.wf.StartLogin()
	if err != nil {
		m.err = err
		return nil
	}

	m.authURL, m.notice, m.running = authURL, "", "Waiting for authorization"
	ctx, wf, login, logger := m.ctx, m.wf, m.login, m.logger
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		fragment, err := login(ctx, authURL)
		if err != nil {
			logger.Error("login failed", "error", err)
			wf.Logout()
			return loginCompleteMsg(err)
		}
		return loginCompleteMsg(wf.CompleteLogin(ctx, fragment))
	})
}

// formRequest reads the form into a recommendation request and playlist name.
func (m *Model) formRequest() (workflow.RecommendationRequest, string, error) {
	req := workflow.RecommendationRequest{DesiredCount: workflow.ClampCount(0)}

	raw := strings.TrimSpace(m.inputs[fieldCount].Value())
	if raw == "" {
		raw = m.inputs[fieldCount].Placeholder
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return req, "", fmt.Errorf("%w: track count must be a number", shared.ErrInvalidInput)
	}
	req.DesiredCount = count
	req.Genre = strings.TrimSpace(m.inputs[fieldGenre].Value())

	return req, strings.TrimSpace(m.inputs[fieldName].Value()), nil
}

func (m *Model) generate() tea.Cmd {
	req, name, err := m.formRequest()
	if err != nil {
		m.err = err
		return nil
	}
	if clamped := workflow.ClampCount(req.DesiredCount); clamped != req.DesiredCount {
		m.notice = fmt.Sprintf("Track count adjusted to %d.", clamped)
		m.inputs[fieldCount].SetValue(strconv.Itoa(clamped))
	} else {
		m.notice = ""
	}

	m.name, m.running = name, "Generating recommendations"
	ctx, wf := m.ctx, m.wf
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		pending, err := wf.GenerateRecommendations(ctx, req)
		return generatedMsg(pending, err)
	})
}

func (m *Model) confirm() tea.Cmd {
	m.running, m.notice = "Creating playlist", ""
	ctx, wf, name := m.ctx, m.wf, m.name
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		created, err := wf.ConfirmPlaylist(ctx, name)
		return createdMsg(created, err)
	})
}

func (m *Model) restart() tea.Cmd {
	if err := m.wf.ResetForNewPlaylist(); err != nil {
		m.err = err
		return nil
	}
	m.tracks.SetItems(nil)
	m.notice = ""
	return m.focusInput(fieldCount)
}

func (m *Model) logout() tea.Cmd {
	m.wf.Logout()
	m.tracks.SetItems(nil)
	m.notice = "Logged out."
	return nil
}

func (m *Model) focusInput(i int) tea.Cmd {
	m.focus = i
	var cmd tea.Cmd
	for j := range m.inputs {
		if j == i {
			cmd = m.inputs[j].Focus()
			continue
		}
		m.inputs[j].Blur()
	}
	return cmd
}

func (m *Model) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return cmd
}

// waitForProgress is a [tea.Cmd] that receives the next progress update from the workflow.
func (m *Model) waitForProgress() tea.Cmd {
	ch := m.progressChan
	return func() tea.Msg {
		return progressUpdateMsg(<-ch)
	}
}

func (m *Model) View() string {
	snap := m.wf.Snapshot()

	var b strings.Builder
	b.WriteString(styles.title.Render("mixgen"))
	if snap.LoggedIn {
		who := snap.DisplayName
		if who == "" {
			who = snap.UserID
		}
		if who != "" {
			b.WriteString(styles.help.Render("  " + who))
		}
	}
	b.WriteString("\n")

	switch {
	case m.busy(snap.State):
		b.WriteString(m.renderRunning())
	case snap.State == workflow.LoggedOut:
		b.WriteString(m.renderLogin())
	case snap.State == workflow.Ready:
		b.WriteString(m.renderForm())
	case snap.State == workflow.Previewing:
		b.WriteString(m.renderPreview(snap))
	case snap.State == workflow.Completed:
		b.WriteString(m.renderCompleted(snap))
	default:
		b.WriteString(m.renderRunning())
	}

	if m.notice != "" {
		b.WriteString("\n" + styles.warn.Render(m.notice) + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + styles.err.Render("Error: "+m.err.Error()) + "\n")
	}
	return b.String()
}

func (m *Model) renderLogin() string {
	var b strings.Builder
	b.WriteString("Log in with Spotify to generate a playlist from your recent listening.\n\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.login, m.keys.quit}))
	return b.String()
}

func (m *Model) renderRunning() string {
	var b strings.Builder
	label := m.running
	if label == "" {
		label = "Working"
	}
	if m.progress != nil && m.progress.Message != "" {
		label = fmt.Sprintf("[%d/%d] %s", m.progress.Step, m.progress.Total, m.progress.Message)
	}
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), label)

	if m.authURL != "" {
		b.WriteString("\n" + styles.help.Render("If your browser did not open, visit:") + "\n")
		b.WriteString(m.authURL + "\n")
	}
	b.WriteString("\n" + m.help.ShortHelpView([]key.Binding{m.keys.abort}))
	return b.String()
}

func (m *Model) renderForm() string {
	labels := []string{"Tracks", "Genre", "Name"}

	var rows []string
	for i, input := range m.inputs {
		label := styles.label.Render(labels[i])
		if i == m.focus {
			label = styles.cursor.Render("> ") + label
		} else {
			label = "  " + label
		}
		rows = append(rows, label+" "+input.View())
	}

	var b strings.Builder
	b.WriteString(styles.box.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	b.WriteString("\n")
	b.WriteString(styles.help.Render(fmt.Sprintf("Between %d and %d tracks. Leave genre blank for any.", workflow.MinTracks, workflow.MaxTracks)))
	b.WriteString("\n\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.generate, m.keys.next, m.keys.logout, m.keys.abort}))
	return b.String()
}

func (m *Model) renderPreview(snap workflow.Snapshot) string {
	var b strings.Builder
	if snap.Pending != nil {
		name := m.name
		if name == "" {
			name = snap.Pending.Name
		}
		fmt.Fprintf(&b, "%s  %s\n", styles.ok.Render(name), styles.help.Render(fmt.Sprintf("%d tracks", len(snap.Pending.Tracks))))
		if cover := formatter.CoverURL(snap.Pending); cover != "" {
			b.WriteString(styles.help.Render("Cover: "+cover) + "\n")
		}
		if snap.Pending.Seeds.Fallback {
			b.WriteString(styles.warn.Render("Seeded from fallback tracks.") + "\n")
		}
	}
	b.WriteString("\n" + m.tracks.View() + "\n\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.logout, m.keys.quit}))
	return b.String()
}

func (m *Model) renderCompleted(snap workflow.Snapshot) string {
	var b strings.Builder
	if snap.Created != nil {
		b.WriteString(styles.ok.Render(strings.TrimRight(string(formatter.CreatedToText(snap.Created)), "\n")))
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.open, m.keys.restart, m.keys.logout, m.keys.quit}))
	return b.String()
}

var _ tea.Model = (*Model)(nil)
