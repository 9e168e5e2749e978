package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/gpyt/internal/tasks"
	"github.com/dustin/go-humanize"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ProgressView ViewState = iota
	FormView
	ResultView
)

// maxLogLines is how many progress messages the progress view keeps.
const maxLogLines = 8

// Engine runs a migration. [*tasks.MigrationEngine] satisfies it.
type Engine interface {
	Run(ctx context.Context, prog chan<- tasks.ProgressUpdate, opts tasks.RunOpts) (*tasks.RunResult, error)
}

// Model drives one migration run: live progress, a form for every item the [Prompter] asks
// about, and a browsable list of outcomes at the end.
type Model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	engine   Engine
	opts     tasks.RunOpts
	prompter *Prompter

	view         ViewState
	width        int
	height       int
	progressChan chan tasks.ProgressUpdate
	done         chan runOutcome
	progress     tasks.ProgressUpdate
	chunk        *tasks.ChunkProgress
	lines        []string
	form         *form
	aborting     bool
	outcome      runOutcome
	results      list.Model
	spinner      spinner.Model
	help         help.Model
	keys         keyMap
}

// NewModel creates a model for a run. The engine must have been built with prompter as its target
// provider; a nil prompter means the run never asks.
func NewModel(ctx context.Context, engine Engine, prompter *Prompter, opts tasks.RunOpts) *Model {
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		ctx:      ctx,
		cancel:   cancel,
		engine:   engine,
		opts:     opts,
		prompter: prompter,
		view:     ProgressView,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.bar)),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Result is the outcome of the run once the program has exited.
func (m *Model) Result() (*tasks.RunResult, error) {
	return m.outcome.result, m.outcome.err
}

// Init starts the run in the background.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startRun(), m.waitForPrompt())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view == ResultView && msg.Height > 8 {
			m.results.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.record(msg.data.(tasks.ProgressUpdate))
			return m, m.waitForProgress()

		case MsgTargetRequested:
			m.form = newForm(msg.data.(*targetRequest), m.width)
			m.view = FormView
			return m, nil

		case MsgRunComplete:
			m.cancel()
			m.outcome = msg.data.(runOutcome)
			m.form = nil
			m.view = ResultView
			m.results = list.New(outcomeItems(m.outcome.result), list.NewDefaultDelegate(), 0, 0)
			m.results.Title = "Migration results"
			if m.height > 8 {
				m.results.SetSize(m.width-4, m.height-8)
			}
			return m, nil
		}
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.view {
	case ResultView:
		if key.Matches(msg, m.keys.done) && m.results.FilterState() != list.Filtering {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return m, cmd

	default:
		if key.Matches(msg, m.keys.quit) {
			if m.aborting {
				return m, tea.Quit
			}
			// the engine abandons the item in flight and returns what it finished
			m.aborting = true
			m.cancel()
			m.form = nil
			m.view = ProgressView
			return m, nil
		}
		if m.view != FormView || m.form == nil {
			return m, nil
		}

		answered, cmd := m.form.update(msg, m.keys)
		if answered {
			m.form = nil
			m.view = ProgressView
			return m, tea.Batch(cmd, m.waitForPrompt())
		}
		return m, cmd
	}
}

func (m *Model) record(update tasks.ProgressUpdate) {
	m.progress = update
	if chunk, ok := update.Data.(tasks.ChunkProgress); ok {
		m.chunk = &chunk
		return
	}
	if update.Phase != tasks.ProbeItem {
		m.chunk = nil
	}
	m.lines = append(m.lines, update.Message)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
}

func (m *Model) startRun() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.done = make(chan runOutcome, 1)

	go func() {
		result, err := m.engine.Run(m.ctx, m.progressChan, m.opts)
		m.done <- runOutcome{result: result, err: err}
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	ch, done := m.progressChan, m.done
	return func() tea.Msg {
		if update, ok := <-ch; ok {
			return progressUpdateMsg(update)
		}
		outcome := <-done
		return runCompleteMsg(outcome.result, outcome.err)
	}
}

func (m *Model) waitForPrompt() tea.Cmd {
	if m.prompter == nil {
		return nil
	}
	requests, ctx := m.prompter.requests, m.ctx
	return func() tea.Msg {
		select {
		case req := <-requests:
			return targetRequestedMsg(req)
		case <-ctx.Done():
			return nil
		}
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case FormView:
		return m.renderForm()
	case ResultView:
		return m.renderResult()
	default:
		return m.renderProgress()
	}
}

func (m *Model) renderProgress() string {
	var b strings.Builder
	title := "Migrating Google Photos videos to YouTube"
	if m.opts.DryRun {
		title += " (dry run)"
	}
	b.WriteString(styles.title.Render(title))
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.progress.Message)
	if m.chunk != nil {
		pct := 100
		if m.chunk.Total > 0 {
			pct = int(m.chunk.Confirmed * 100 / m.chunk.Total)
		}
		fmt.Fprintf(&b, "\n%s %3d%%  %s / %s\n", progressBar(pct, 40), pct,
			humanize.IBytes(uint64(m.chunk.Confirmed)), humanize.IBytes(uint64(m.chunk.Total)))
	}

	if len(m.lines) > 0 {
		b.WriteString("\n")
		for _, line := range m.lines {
			b.WriteString(styles.help.Render(line))
			b.WriteString("\n")
		}
	}

	if m.aborting {
		b.WriteString("\n" + styles.warn.Render("Stopping after the current item... press ctrl+c again to exit now") + "\n")
	}
	b.WriteString("\n" + m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	return b.String()
}

func (m *Model) renderForm() string {
	if m.form == nil {
		return m.renderProgress()
	}
	helpView := m.help.FullHelpView(m.keys.FullHelp())
	return fmt.Sprintf("%s\n%s", m.form.view(), helpView)
}

func (m *Model) renderResult() string {
	result, err := m.outcome.result, m.outcome.err

	var b strings.Builder
	if err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Migration stopped: %v", err)))
		b.WriteString("\n")
	} else {
		b.WriteString(styles.ok.Render("✓ Migration run complete"))
		b.WriteString("\n")
	}

	if result != nil {
		fmt.Fprintf(&b, "\nPages: %d  Migrated: %d (%s)  Skipped: %d  Declined: %d  Pending: %d  Failed: %d\n",
			result.Pages, result.Migrated, humanize.IBytes(uint64(result.Bytes)),
			result.Skipped, result.Declined, result.Pending, result.Failed)
		if result.NextPageToken != "" {
			fmt.Fprintf(&b, "%s\n", styles.warn.Render("Resume with --start-token "+result.NextPageToken))
		}
		if len(result.Items) > 0 && m.height > 8 {
			b.WriteString("\n" + m.results.View())
		}
	}

	b.WriteString("\n" + m.help.ShortHelpView([]key.Binding{m.keys.done}))
	return b.String()
}
