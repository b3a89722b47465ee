package tui

import (
	"fmt"
	"os"
	"strings"

	"companion/internal/app"
	"companion/internal/protocol"
	"companion/internal/session"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.width < 20 || m.height < 6 {
		return "Terminal too small"
	}
	content := m.contentWidth()

	parts := []string{m.viewport.View()}
	for _, block := range []string{m.overlayView(content), m.tasksView(content), m.menuView(content)} {
		if block != "" {
			parts = append(parts, block)
		}
	}
	parts = append(parts, m.composerView())
	main := lipgloss.JoinVertical(lipgloss.Left, parts...)

	body := main
	if m.showSidebar {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(m.height-1), main)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusBar())
}

func (m Model) composerView() string {
	if m.mode == ModeInsert {
		return m.composer.View()
	}
	value := m.composer.Value()
	if value == "" {
		value = styleDim.Render("Press i to type, : for commands")
	}
	lines := []string{"  " + value}
	for len(lines) < composerHeight {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// transcript renders the chat history of the active session.
func (m *Model) transcript(width int) string {
	s := m.active()
	if s == nil {
		return styleDim.Render("No active session. Press Ctrl+N to create one.")
	}

	var blocks []string
	for _, msg := range s.Messages {
		blocks = append(blocks, m.renderMessage(msg, width))
	}

	if s.Streaming != "" {
		blocks = append(blocks, styleAssistant.Render(wrap("Claude: "+s.Streaming, width)))
		if !s.StreamStart.IsZero() {
			elapsed := m.snap.Taken.Sub(s.StreamStart).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(s.StreamTokens) / elapsed
			}
			blocks = append(blocks, styleDim.Render(fmt.Sprintf("%.1fs │ ~%d tokens │ %.0f tok/s", elapsed, s.StreamTokens, rate)))
		}
	}

	switch s.Status {
	case session.StatusWaitingForCLI:
		if len(blocks) == 0 {
			blocks = append(blocks, styleDim.Render("Waiting for Claude CLI to connect..."))
		}
	case session.StatusRunning:
		if s.Streaming == "" && len(s.Messages) > 0 && s.Messages[len(s.Messages)-1].Role == session.RoleUser {
			blocks = append(blocks, styleDim.Render(m.spinner.View()+" Claude is thinking..."))
		}
	case session.StatusCompacting:
		blocks = append(blocks, styleSystem.Render("Compacting context..."))
	}
	return strings.Join(blocks, "\n\n")
}

func (m *Model) renderMessage(msg session.ChatMessage, width int) string {
	switch msg.Role {
	case session.RoleUser:
		return styleUser.Render(wrap("You: "+msg.Content, width))
	case session.RoleSystem:
		return styleSystem.Render(wrap(msg.Content, width))
	}

	var lines []string
	blocks := msg.Blocks
	for i := 0; i < len(blocks); {
		block := blocks[i]
		switch block.Type {
		case protocol.BlockToolUse:
			count := 1
			for i+count < len(blocks) && blocks[i+count].Type == protocol.BlockToolUse && blocks[i+count].Name == block.Name {
				count++
			}
			label := "[" + block.Name + "]"
			if count > 1 {
				label = fmt.Sprintf("[%s x%d]", block.Name, count)
			}
			line := strings.TrimSpace(label + " " + protocol.FormatToolSummary(block.Name, block.Input))
			lines = append(lines, styleTool.Render(wrap(line, width)))
			i += count
			continue
		case protocol.BlockToolResult:
			if text := protocol.ExtractToolResultText(block.Content); text != "" {
				style := styleToolResult
				if block.IsError {
					style = styleError
				}
				lines = append(lines, style.Render(wrap(protocol.Truncate(text, 500), width)))
			}
		case protocol.BlockThinking:
			if m.showThinking && block.Thinking != "" {
				lines = append(lines, styleDimItalic.Render(wrap("(thinking) "+protocol.Truncate(block.Thinking, 200), width)))
			}
		}
		i++
	}
	text := msg.Content
	if len(blocks) > 0 {
		text = blockText(blocks)
	}
	if text != "" {
		lines = append(lines, m.markdown(text, width))
	}
	return strings.Join(lines, "\n")
}

func blockText(blocks []protocol.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == protocol.BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// markdown renders assistant text, caching by content and width.
func (m *Model) markdown(content string, width int) string {
	if m.renderer == nil {
		return styleAssistant.Render(wrap(content, width))
	}
	key := renderKey{content: content, width: width}
	if out, ok := m.rendered.Get(key); ok {
		return out
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		out = wrap(content, width)
	}
	out = strings.Trim(out, "\n")
	m.rendered.Add(key, out)
	return out
}

func (m Model) overlayView(width int) string {
	s := m.active()
	if s == nil {
		return ""
	}
	if p := s.Permission; p != nil {
		lines := []string{"│ Permission: " + p.ToolName}
		lines = append(lines, permissionDetail(*p, width)...)
		hint := "│ [Y]es  [N]o  [A]lways allow"
		if s.PendingPermissions > 1 {
			hint += fmt.Sprintf("  (%d more queued)", s.PendingPermissions-1)
		}
		lines = append(lines, hint)
		return renderBlock(stylePermission, lines, width)
	}
	if q := s.Question; q != nil {
		item := q.CurrentItem()
		if item == nil {
			return ""
		}
		title := item.Question
		if len(q.Questions) > 1 {
			title = fmt.Sprintf("(%d/%d) %s", q.Current+1, len(q.Questions), title)
		}
		if item.Header != "" {
			title = "[" + item.Header + "] " + title
		}
		lines := []string{"│ " + title}
		for i, opt := range item.Options {
			marker := " "
			if i == item.Cursor {
				marker = ">"
			}
			line := fmt.Sprintf("│ %s %d. %s", marker, i+1, opt.Label)
			if opt.Description != "" {
				line += " - " + opt.Description
			}
			lines = append(lines, line)
		}
		lines = append(lines, "│ Press 1-9 to select, Enter to confirm, Esc to dismiss")
		return renderBlock(styleQuestion, lines, width)
	}
	return ""
}

func permissionDetail(p session.PendingPermission, width int) []string {
	str := func(key string) string { return protocol.InputField(p.Input, key) }
	limit := width - 6
	if limit < 10 {
		limit = 10
	}
	switch p.ToolName {
	case "Edit":
		var lines []string
		if path := str("file_path"); path != "" {
			lines = append(lines, "│ File: "+path)
		}
		if old := str("old_string"); old != "" {
			lines = append(lines, "│ - "+protocol.Truncate(firstLine(old), limit))
		}
		if updated := str("new_string"); updated != "" {
			lines = append(lines, "│ + "+protocol.Truncate(firstLine(updated), limit))
		}
		return lines
	case "Write":
		if path := str("file_path"); path != "" {
			return []string{"│ File: " + path}
		}
	case "Bash":
		if cmd := str("command"); cmd != "" {
			return []string{"│ " + protocol.Truncate(cmd, limit)}
		}
	}
	return []string{"│ " + protocol.Truncate(p.Description, limit)}
}

func (m Model) tasksView(width int) string {
	s := m.active()
	if !m.showTasks || s == nil {
		return ""
	}
	var tasks []session.TaskItem
	for _, t := range s.Tasks {
		if t.Status != session.TaskDeleted {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return ""
	}
	rows := []string{styleTaskHeader.Width(width).Render(fmt.Sprintf(" Tasks (%d) ", len(tasks)))}
	for i, t := range tasks {
		if i == maxTaskRows {
			rows = append(rows, styleDim.Render(fmt.Sprintf(" ... %d more", len(tasks)-maxTaskRows)))
			break
		}
		icon := "[ ]"
		switch t.Status {
		case session.TaskInProgress:
			icon = "[>]"
		case session.TaskCompleted:
			icon = "[x]"
		}
		label := t.Subject
		if t.Status == session.TaskInProgress && t.ActiveForm != "" {
			label = t.ActiveForm
		}
		rows = append(rows, taskStyles[string(t.Status)].Render(truncate(fmt.Sprintf(" %s %s", icon, label), width)))
	}
	return strings.Join(rows, "\n")
}

func (m Model) menuView(width int) string {
	items := m.menuItems()
	if len(items) == 0 {
		return ""
	}
	if len(items) > maxMenuItems {
		items = items[:maxMenuItems]
	}
	rows := make([]string, 0, len(items))
	for i, name := range items {
		style := styleMenuItem
		if i == m.menuIndex {
			style = styleMenuActive
		}
		rows = append(rows, style.Width(width).Render(truncate(" / "+name, width)))
	}
	return strings.Join(rows, "\n")
}

func (m Model) sidebarView(height int) string {
	width := m.sidebarWidth()
	inner := width - 1
	var rows []string
	for n, idx := range m.snap.Visible {
		if idx < 0 || idx >= len(m.snap.Sessions) {
			continue
		}
		s := m.snap.Sessions[idx]
		isActive := m.snap.Active != nil && s.ID == m.snap.Active.ID
		marker := " "
		if isActive {
			marker = ">"
		}
		pin := ""
		if s.Pinned {
			pin = "*"
		}
		line := truncate(fmt.Sprintf("%s%s %d. %s%s", marker, m.statusIcon(s), n+1, pin, s.Name), inner)
		if isActive {
			rows = append(rows, styleSidebarActive.Width(inner).Render(line))
		} else {
			rows = append(rows, styleSidebar.Render(line))
		}
		if git := gitSummary(s); git != "" {
			rows = append(rows, styleSidebarGit.Render(truncate("     "+git, inner)))
		}
	}
	for len(rows) < height {
		rows = append(rows, "")
	}
	if len(rows) > height {
		rows = rows[:height]
	}
	return styleSidebarBorder.Width(inner).Height(height).Render(strings.Join(rows, "\n"))
}

func (m Model) statusIcon(s app.SessionView) string {
	switch {
	case s.Status.Busy():
		return m.spinner.View()
	case s.Connected:
		return "●"
	default:
		return "○"
	}
}

func gitSummary(s app.SessionView) string {
	if s.Git.Branch == "" {
		return ""
	}
	parts := []string{s.Git.Branch}
	if s.Git.IsWorktree {
		parts = append(parts, "wt")
	}
	if s.Git.Ahead > 0 || s.Git.Behind > 0 {
		ab := ""
		if s.Git.Ahead > 0 {
			ab += fmt.Sprintf("↑%d", s.Git.Ahead)
		}
		if s.Git.Behind > 0 {
			ab += fmt.Sprintf("↓%d", s.Git.Behind)
		}
		parts = append(parts, ab)
	}
	if s.LinesAdded > 0 || s.LinesRemoved > 0 {
		parts = append(parts, fmt.Sprintf("+%d-%d", s.LinesAdded, s.LinesRemoved))
	}
	return strings.Join(parts, " ")
}

func (m Model) statusBar() string {
	if m.mode == ModeCommand {
		return styleStatusBar.Width(m.width).Render(m.command.View())
	}
	s := m.active()

	mode := modeStyle(m.mode).Render(m.mode.String())
	left := []string{"○ no session"}
	status := "--"
	busy := false
	right := []string{}
	if s != nil {
		conn := "○"
		if s.Connected {
			conn = "●"
		}
		left = []string{conn + " " + s.Name}
		if cwd := shortenPath(s.CWD); cwd != "" {
			left = append(left, cwd)
		}
		if s.Git.Branch != "" {
			branch := s.Git.Branch
			if s.Git.IsWorktree {
				branch += " wt"
			}
			left = append(left, branch)
		}
		if s.PermissionMode == session.PlanMode {
			left = append(left, "[plan]")
		}
		if s.QueuedCount > 0 {
			left = append(left, fmt.Sprintf("[%d queued]", s.QueuedCount))
		}

		status, busy = m.statusText(*s)
		right = append(right, shortenModel(s.Model), contextBar(s.ContextUsedPercent))
		if s.TotalCostUSD > 0 {
			right = append(right, fmt.Sprintf("$%.2f", s.TotalCostUSD))
		}
	}
	right = append(right, fmt.Sprintf("%d/%d", m.activeVisibleIndex(), len(m.snap.Visible)))

	leftText := styleStatusBar.Render(" "+strings.Join(left, " ")+" ") + m.statusStyle(busy).Render(status+" ")
	var rightText string
	if flash := m.flash(); flash != "" {
		rightText = styleFlash.Render(" " + flash + " ")
	} else {
		rightText = styleStatusDim.Render(" " + strings.Join(right, " │ ") + " ")
	}

	gap := m.width - lipgloss.Width(mode) - lipgloss.Width(leftText) - lipgloss.Width(rightText)
	if gap < 0 {
		gap = 0
	}
	return mode + leftText + styleStatusBar.Render(strings.Repeat(" ", gap)) + rightText
}

func (m Model) statusStyle(busy bool) lipgloss.Style {
	if busy {
		return styleBusy
	}
	return styleStatusBar
}

func (m Model) statusText(s app.SessionView) (string, bool) {
	switch s.Status {
	case session.StatusIdle:
		return "idle", false
	case session.StatusRunning:
		if s.CurrentTool != nil {
			return fmt.Sprintf("%s %s %.0fs", m.spinner.View(), s.CurrentTool.Name, s.CurrentTool.ElapsedSeconds), true
		}
		if s.InterruptSent {
			return m.spinner.View() + " interrupting", true
		}
		return m.spinner.View() + " thinking", true
	case session.StatusCompacting:
		return m.spinner.View() + " compacting", true
	default:
		if s.Authenticating {
			return "authenticating", false
		}
		return "waiting", false
	}
}

func (m Model) flash() string {
	if m.localFlash != "" {
		return m.localFlash
	}
	if m.err != nil {
		return m.err.Error()
	}
	return m.snap.Flash
}

func (m Model) activeVisibleIndex() int {
	if m.snap.Active == nil {
		return 0
	}
	for n, idx := range m.snap.Visible {
		if idx < len(m.snap.Sessions) && m.snap.Sessions[idx].ID == m.snap.Active.ID {
			return n + 1
		}
	}
	return 0
}

func contextBar(pct int) string {
	const barLen = 5
	filled := pct * barLen / 100
	if filled > barLen {
		filled = barLen
	}
	if filled < 0 {
		filled = 0
	}
	return fmt.Sprintf("%d%% %s%s", pct, strings.Repeat("█", filled), strings.Repeat("░", barLen-filled))
}

// shortenModel turns "claude-sonnet-4-5-20250929" into "sonnet-4.5".
func shortenModel(model string) string {
	if model == "" {
		return "..."
	}
	if rest, ok := strings.CutPrefix(model, "claude-"); ok {
		parts := strings.Split(rest, "-")
		switch {
		case len(parts) >= 3:
			return fmt.Sprintf("%s-%s.%s", parts[0], parts[1], parts[2])
		case len(parts) == 2:
			return parts[0] + "-" + parts[1]
		}
	}
	return protocol.Truncate(model, 20)
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if rest, ok := strings.CutPrefix(path, home+string(os.PathSeparator)); ok {
		return "~/" + rest
	}
	return path
}

func renderBlock(style lipgloss.Style, lines []string, width int) string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = style.Width(width).Render(truncate(line, width))
	}
	return strings.Join(out, "\n")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return lipgloss.Height(s)
}

// truncate cuts s to at most width display cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		w := lipgloss.Width(string(r))
		if used+w > width {
			break
		}
		b.WriteRune(r)
		used += w
	}
	return b.String()
}

// wrap soft-wraps text to width cells, preferring breaks at spaces.
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}
