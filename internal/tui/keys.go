package tui

import (
	"strings"

	"companion/internal/app"
	"companion/internal/session"

	tea "github.com/charmbracelet/bubbletea"
)

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	m.localFlash = ""
	if key == "ctrl+q" && m.mode != ModeCommand {
		return m.quit()
	}
	if m.mode != ModeCommand {
		if handled, cmd := m.handleOverlayKey(key); handled {
			return cmd
		}
	}

	switch m.mode {
	case ModeInsert:
		return m.handleInsertKey(msg)
	case ModeCommand:
		return m.handleCommandKey(msg)
	default:
		return m.handleNormalKey(key)
	}
}

// handleOverlayKey routes keys to a pending permission or question of the
// active session. Unrelated keys fall through to the current mode.
func (m *Model) handleOverlayKey(key string) (bool, tea.Cmd) {
	s := m.active()
	if s == nil {
		return false, nil
	}
	if s.Permission != nil {
		switch key {
		case "y", "Y":
			m.send(app.ApprovePermission{})
		case "n", "N":
			m.send(app.DenyPermission{})
		case "a", "A":
			m.send(app.AlwaysAllowPermission{})
		default:
			return false, nil
		}
		return true, nil
	}
	if s.Question != nil {
		switch key {
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			m.send(app.SelectQuestionOption{N: int(key[0] - '0')})
		case "up", "k":
			m.send(app.MoveQuestionCursor{Delta: -1})
		case "down", "j":
			m.send(app.MoveQuestionCursor{Delta: 1})
		case "enter":
			m.send(app.ConfirmQuestion{})
		case "esc":
			m.send(app.DismissQuestion{})
		default:
			return false, nil
		}
		return true, nil
	}
	return false, nil
}

// interrupt sends an interrupt when the active turn can take one.
func (m *Model) interrupt() bool {
	s := m.active()
	if s == nil || s.Status != session.StatusRunning || s.InterruptSent {
		return false
	}
	m.send(app.Interrupt{})
	return true
}

func (m *Model) handleNormalKey(key string) tea.Cmd {
	if m.ggPending {
		m.ggPending = false
		if key == "g" {
			m.follow = false
			m.viewport.GotoTop()
			return nil
		}
	}

	switch key {
	case "ctrl+c":
		if m.interrupt() {
			return nil
		}
		return m.quit()
	case "ctrl+n":
		m.send(app.RunCommand{Text: "new"})
		return m.setMode(ModeInsert)
	case "ctrl+d":
		m.viewport.LineDown(m.viewport.Height / 2)
		m.follow = m.viewport.AtBottom()
	case "ctrl+u":
		m.viewport.LineUp(m.viewport.Height / 2)
		m.follow = false
	case "i", "a":
		return m.setMode(ModeInsert)
	case "A":
		cmd := m.setMode(ModeInsert)
		m.composer.CursorEnd()
		return cmd
	case ":":
		return m.setMode(ModeCommand)
	case "j", "down":
		m.viewport.LineDown(1)
		m.follow = m.viewport.AtBottom()
	case "k", "up":
		m.viewport.LineUp(1)
		m.follow = false
	case "pgdown":
		m.viewport.LineDown(m.viewport.Height)
		m.follow = m.viewport.AtBottom()
	case "pgup":
		m.viewport.LineUp(m.viewport.Height)
		m.follow = false
	case "G":
		m.follow = true
		m.viewport.GotoBottom()
	case "g":
		m.ggPending = true
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		m.send(app.SwitchSession{Index: int(key[0] - '1')})
	case "]":
		m.send(app.NextSession{})
	case "[":
		m.send(app.PrevSession{})
	case "tab":
		m.showSidebar = !m.showSidebar
		m.renderer = nil
		m.rendered.Purge()
		m.ensureRenderer()
	case "t":
		m.showTasks = !m.showTasks
	case "T":
		m.showThinking = !m.showThinking
		if m.showThinking {
			m.localFlash = "Thinking: shown"
		} else {
			m.localFlash = "Thinking: hidden"
		}
	case "p":
		m.send(app.TogglePlanMode{})
	}
	return nil
}

func (m *Model) handleInsertKey(msg tea.KeyMsg) tea.Cmd {
	items := m.menuItems()
	switch msg.String() {
	case "ctrl+c":
		if m.interrupt() {
			return nil
		}
		return m.setMode(ModeNormal)
	case "esc":
		return m.setMode(ModeNormal)
	case "up":
		if len(items) > 0 {
			if m.menuIndex > 0 {
				m.menuIndex--
			}
			return nil
		}
	case "down":
		if len(items) > 0 {
			if m.menuIndex+1 < len(items) {
				m.menuIndex++
			}
			return nil
		}
	case "tab":
		if len(items) > 0 {
			m.completeMenu(items)
			return nil
		}
	case "enter":
		if len(items) > 0 {
			m.completeMenu(items)
		}
		m.submit()
		return nil
	}

	before := m.composer.Value()
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	if m.composer.Value() != before {
		m.menuIndex = 0
	}
	return cmd
}

func (m *Model) completeMenu(items []string) {
	idx := m.menuIndex
	if idx >= len(items) {
		idx = 0
	}
	m.composer.SetValue("/" + items[idx])
	m.menuIndex = 0
}

// submit sends the composer contents. A leading @path attaches an image.
func (m *Model) submit() {
	text := strings.TrimSpace(m.composer.Value())
	if text == "" {
		return
	}
	if img, ok, err := parseImageAttachment(text); ok {
		if err != nil {
			m.localFlash = "Image not attached: " + err.Error()
			return
		}
		m.send(app.SendImage{Text: img.Text, Data: img.Data, MediaType: img.MediaType})
	} else {
		m.send(app.SendText{Text: text})
	}
	m.composer.Reset()
	m.follow = true
}

func (m *Model) handleCommandKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "ctrl+q", "esc":
		return m.setMode(ModeNormal)
	case "enter":
		text := strings.TrimSpace(m.command.Value())
		cmd := m.setMode(ModeNormal)
		if text == "" {
			return cmd
		}
		if _, isQuit := app.ParseCommand(text).(app.QuitCommand); isQuit {
			return m.quit()
		}
		m.send(app.RunCommand{Text: text})
		return cmd
	case "backspace":
		if m.command.Value() == "" {
			return m.setMode(ModeNormal)
		}
	}
	var cmd tea.Cmd
	m.command, cmd = m.command.Update(msg)
	return cmd
}

// menuItems lists slash commands matching the composer while it holds a
// single "/word".
func (m Model) menuItems() []string {
	s := m.active()
	if m.mode != ModeInsert || s == nil || len(s.SlashCommands) == 0 {
		return nil
	}
	value := m.composer.Value()
	if !strings.HasPrefix(value, "/") || strings.ContainsAny(value, " \n") {
		return nil
	}
	filter := strings.TrimPrefix(value, "/")
	var items []string
	for _, name := range s.SlashCommands {
		if strings.HasPrefix(name, filter) && name != filter {
			items = append(items, name)
		}
	}
	return items
}
