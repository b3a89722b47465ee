package tui

import (
	"fmt"

	"companion/internal/app"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Dispatcher receives the actions produced by key handling. *app.Loop
// satisfies it.
type Dispatcher interface {
	Dispatch(a app.Action) bool
}

// Mode is the modal editing state of the terminal.
type Mode int

const (
	ModeNormal Mode = iota
	ModeInsert
	ModeCommand
)

func (m Mode) String() string {
	switch m {
	case ModeInsert:
		return "INSERT"
	case ModeCommand:
		return "COMMAND"
	default:
		return "NORMAL"
	}
}

// SnapshotMsg carries a new view state from the event loop.
type SnapshotMsg struct {
	Snapshot app.Snapshot
}

// LoopClosedMsg tells the program that the event loop stopped.
type LoopClosedMsg struct{}

type Options struct {
	// MarkdownStyle is a glamour standard style name; empty picks one from the
	// terminal background.
	MarkdownStyle string
	SidebarWidth  int
}

const (
	defaultSidebarWidth = 28
	composerHeight      = 3
	maxTaskRows         = 5
	maxMenuItems        = 8
	markdownCacheSize   = 256
)

type renderKey struct {
	content string
	width   int
}

func newRenderCache() *lru.Cache[renderKey, string] {
	// lru.New only errors on a non-positive size.
	cache, _ := lru.New[renderKey, string](markdownCacheSize)
	return cache
}

// Model is the bubbletea model for the companion terminal.
type Model struct {
	dispatch Dispatcher
	opts     Options

	composer textarea.Model
	command  textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	rendered *lru.Cache[renderKey, string]

	snap     app.Snapshot
	activeID string
	mode     Mode

	width, height int
	ready         bool
	follow        bool
	ggPending     bool
	menuIndex     int

	showSidebar  bool
	showTasks    bool
	showThinking bool
	localFlash   string

	err error
}

func New(dispatch Dispatcher, opts Options) Model {
	if opts.SidebarWidth <= 0 {
		opts.SidebarWidth = defaultSidebarWidth
	}

	ta := textarea.New()
	ta.Placeholder = "Message Claude... (Enter to send, Alt+Enter for newline)"
	ta.Prompt = "> "
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(composerHeight)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	ta.Blur()

	ti := textinput.New()
	ti.Prompt = ":"

	sp := spinner.New(spinner.WithSpinner(spinner.MiniDot))

	return Model{
		dispatch:    dispatch,
		opts:        opts,
		composer:    ta,
		command:     ti,
		viewport:    viewport.New(80, 20),
		spinner:     sp,
		rendered:    newRenderCache(),
		mode:        ModeNormal,
		follow:      true,
		showSidebar: true,
		showTasks:   true,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width != m.width {
			m.renderer = nil
			m.rendered.Purge()
		}
		m.width = msg.Width
		m.height = msg.Height
		m.ensureRenderer()
		m.ready = true
		m.refresh()
		return m, nil

	case SnapshotMsg:
		m.applySnapshot(msg.Snapshot)
		return m, nil

	case LoopClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.anyBusy() {
			m.refresh()
		}
		return m, cmd

	case tea.KeyMsg:
		cmd := m.handleKey(msg)
		m.refresh()
		return m, cmd
	}

	var cmd tea.Cmd
	if m.mode == ModeInsert {
		m.composer, cmd = m.composer.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) ensureRenderer() {
	if m.renderer != nil || m.width == 0 {
		return
	}
	wrap := m.contentWidth() - 4
	if wrap < 20 {
		wrap = 20
	}
	styleOpt := glamour.WithAutoStyle()
	if m.opts.MarkdownStyle != "" {
		styleOpt = glamour.WithStandardStyle(m.opts.MarkdownStyle)
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(wrap))
	if err != nil {
		m.err = fmt.Errorf("failed to initialize renderer: %w", err)
		return
	}
	m.renderer = renderer
}

func (m *Model) applySnapshot(snap app.Snapshot) {
	m.snap = snap
	id := ""
	if snap.Active != nil {
		id = snap.Active.ID
	}
	if id != m.activeID {
		m.activeID = id
		m.follow = true
		m.menuIndex = 0
	}
	m.refresh()
}

func (m Model) active() *app.SessionView {
	return m.snap.Active
}

func (m Model) anyBusy() bool {
	for _, s := range m.snap.Sessions {
		if s.Status.Busy() {
			return true
		}
	}
	return false
}

// send forwards an action to the loop and reports whether it was accepted.
func (m Model) send(a app.Action) bool {
	if m.dispatch == nil {
		return false
	}
	return m.dispatch.Dispatch(a)
}

func (m *Model) quit() tea.Cmd {
	m.send(app.Quit{})
	return tea.Quit
}

func (m *Model) setMode(mode Mode) tea.Cmd {
	m.mode = mode
	m.ggPending = false
	switch mode {
	case ModeInsert:
		m.command.Blur()
		return m.composer.Focus()
	case ModeCommand:
		m.composer.Blur()
		m.command.Reset()
		return m.command.Focus()
	default:
		m.composer.Blur()
		m.command.Blur()
		return nil
	}
}

func (m Model) contentWidth() int {
	w := m.width
	if m.showSidebar {
		w -= m.sidebarWidth()
	}
	if w < 1 {
		w = 1
	}
	return w
}

func (m Model) sidebarWidth() int {
	w := m.opts.SidebarWidth
	if third := m.width / 3; w > third {
		w = third
	}
	return w
}

// refresh recomputes the layout and the chat transcript.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	content := m.contentWidth()
	m.composer.SetWidth(content)
	m.command.Width = m.width - 2

	chatHeight := m.height - 1 - composerHeight
	chatHeight -= lineCount(m.overlayView(content))
	chatHeight -= lineCount(m.tasksView(content))
	chatHeight -= lineCount(m.menuView(content))
	if chatHeight < 1 {
		chatHeight = 1
	}
	m.viewport.Width = content
	m.viewport.Height = chatHeight

	m.viewport.SetContent(m.transcript(content))
	if m.follow {
		m.viewport.GotoBottom()
	}
}
