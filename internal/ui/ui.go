package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	prgs "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/gdx/internal/formatter"
	"github.com/desertthunder/gdx/internal/ingest"
	"github.com/desertthunder/gdx/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	FormView ViewState = iota
	ProgressView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	view      ViewState
	session   *ingest.Session
	outputDir string
	logger    *log.Logger

	width  int
	height int

	labelInput   textinput.Model
	picker       filepicker.Model
	bar          prgs.Model
	labelFocused bool

	snap      ingest.Snapshot
	notice    string
	savedPath string
	help      help.Model
	keys      keyMap
}

type sessionUpdateMsg ingest.Snapshot

type sessionClosedMsg struct{}

type resultSavedMsg struct {
	path string
	err  error
}

// NewModel creates a new TUI model around one upload session.
func NewModel(ctx context.Context, session *ingest.Session, outputDir string, logger *log.Logger) *Model {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	input := textinput.New()
	input.Placeholder = "Guideline label"
	input.CharLimit = 120
	input.Focus()

	picker := filepicker.New()
	picker.AllowedTypes = []string{".pdf"}
	picker.DirAllowed = false
	picker.FileAllowed = true
	if wd, err := os.Getwd(); err == nil {
		picker.CurrentDirectory = wd
	}

	return &Model{
		ctx:          ctx,
		view:         FormView,
		session:      session,
		outputDir:    outputDir,
		logger:       logger,
		labelInput:   input,
		picker:       picker,
		bar:          prgs.New(prgs.WithDefaultGradient()),
		labelFocused: true,
		snap:         session.Snapshot(),
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init starts the file picker and the session update pump.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.picker.Init(), textinput.Blink, m.waitForUpdate())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.picker.Height = max(msg.Height-14, 5)
		m.bar.Width = min(msg.Width-8, 60)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case FormView:
			return m.handleFormKeys(msg)
		case ProgressView:
			return m.handleProgressKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case sessionUpdateMsg:
		m.snap = ingest.Snapshot(msg)
		switch {
		case m.snap.Status.Terminal():
			m.view = ResultView
		case m.snap.Status != ingest.StatusIdle:
			m.view = ProgressView
		}
		return m, m.waitForUpdate()

	case sessionClosedMsg:
		return m, tea.Quit

	case resultSavedMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("save failed: %v", msg.err)
		} else {
			m.savedPath = msg.path
			m.notice = ""
		}
		return m, nil
	}

	return m.updateComponents(msg)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case FormView:
		return m.renderForm()
	case ProgressView:
		return m.renderProgress()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleFormKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.session.Dispose()
		return m, tea.Quit

	case key.Matches(msg, m.keys.focus):
		m.labelFocused = !m.labelFocused
		if m.labelFocused {
			m.labelInput.Focus()
		} else {
			m.labelInput.Blur()
		}
		return m, nil

	case key.Matches(msg, m.keys.remove):
		if files := m.snap.Files; len(files) > 0 {
			m.session.RemoveFile(files[len(files)-1])
		}
		return m, nil

	case key.Matches(msg, m.keys.submit):
		m.session.SetLabel(strings.TrimSpace(m.labelInput.Value()))
		if !m.session.CanUpload() {
			m.notice = "a label and at least one PDF are required"
			return m, nil
		}
		if err := m.session.Start(m.ctx); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.notice = ""
		m.view = ProgressView
		return m, nil
	}

	if m.labelFocused {
		var cmd tea.Cmd
		m.labelInput, cmd = m.labelInput.Update(msg)
		m.session.SetLabel(strings.TrimSpace(m.labelInput.Value()))
		return m, cmd
	}

	return m.updateComponents(msg)
}

func (m *Model) handleProgressKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.session.Dispose()
		return m, tea.Quit
	case key.Matches(msg, m.keys.discard):
		m.session.Discard()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.session.Dispose()
		return m, tea.Quit
	case "s":
		if m.snap.Status == ingest.StatusSucceeded && m.savedPath == "" {
			return m, m.saveResult()
		}
		return m, nil
	case "r":
		// Reset in place: the form comes back empty and the next upload
		// starts without relaunching.
		m.session.Reset()
		m.labelInput.SetValue("")
		m.labelInput.Focus()
		m.labelFocused = true
		m.notice = ""
		m.savedPath = ""
		m.view = FormView
		return m, nil
	}
	return m, nil
}

func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != FormView {
		return m, nil
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)

	if ok, path := m.picker.DidSelectFile(msg); ok {
		if rejected := m.session.AddFiles(path); len(rejected) > 0 {
			m.notice = fmt.Sprintf("%s is not a PDF", filepath.Base(path))
		} else {
			m.notice = ""
		}
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		m.notice = fmt.Sprintf("%s is not a PDF", filepath.Base(path))
	}

	return m, cmd
}

// waitForUpdate pumps one session snapshot into the message loop.
func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.session.Updates()
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionUpdateMsg(snap)
	}
}

func (m *Model) saveResult() tea.Cmd {
	snap := m.snap
	return func() tea.Msg {
		path, err := formatter.WriteResult(snap.Result, m.outputDir, snap.Label)
		return resultSavedMsg{path: path, err: err}
	}
}

func (m *Model) renderForm() string {
	title := styles.title.Render("Ingest a Guideline")

	focusHint := "files"
	if m.labelFocused {
		focusHint = "label"
	}

	var files strings.Builder
	if len(m.snap.Files) == 0 {
		files.WriteString(styles.help.Render("no files selected"))
	} else {
		for _, f := range m.snap.Files {
			files.WriteString(fmt.Sprintf("  • %s\n", filepath.Base(f)))
		}
	}

	var notice string
	if m.notice != "" {
		notice = "\n" + styles.warn.Render(m.notice)
	}

	helpKeys := []key.Binding{m.keys.focus, m.keys.submit, m.keys.remove, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf(
		"%s\nLabel: %s\n\nSelect PDFs (focus: %s):\n%s\n\nSelected:\n%s%s\n\n%s",
		title, m.labelInput.View(), focusHint, m.picker.View(), files.String(), notice, helpView,
	)
}

func (m *Model) renderProgress() string {
	title := styles.title.Render(fmt.Sprintf("Processing '%s'", m.snap.Label))

	bar := m.bar.ViewAs(float64(m.snap.Progress) / 100)
	status := fmt.Sprintf("%s: %s", m.snap.Status, m.snap.Message)
	if m.snap.SessionID != "" {
		status += styles.help.Render(fmt.Sprintf("  (session %s)", m.snap.SessionID))
	}

	helpKeys := []key.Binding{m.keys.discard, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, bar, status, helpView)
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.save, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	switch m.snap.Status {
	case ingest.StatusSucceeded:
		title := styles.ok.Render("✓ Processing Complete")
		payload, err := formatter.Pretty(m.snap.Result)
		if err != nil {
			payload = m.snap.Result
		}
		saved := ""
		if m.savedPath != "" {
			saved = "\n" + styles.help.Render("saved to "+m.savedPath)
		}
		notice := ""
		if m.notice != "" {
			notice = "\n" + styles.warn.Render(m.notice)
		}
		return fmt.Sprintf("%s\n%s%s%s\n\n%s", title, payload, saved, notice, helpView)

	case ingest.StatusCancelled:
		return fmt.Sprintf("%s\n\n%s", styles.warn.Render("Upload cancelled"), helpView)

	default:
		title := styles.err.Render("✗ Processing Failed")
		detail := m.snap.Message
		if m.snap.Err != nil {
			detail = fmt.Sprintf("%s\n%v", detail, m.snap.Err)
		}
		return fmt.Sprintf("%s\n%s\n\n%s", title, detail, helpView)
	}
}
