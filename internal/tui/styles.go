package tui

import "github.com/charmbracelet/lipgloss"

var (
	styleUser       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleAssistant  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	styleSystem     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleTool       = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	styleToolResult = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleError      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleDim        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleDimItalic  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)

	styleSidebar       = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	styleSidebarActive = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("238"))
	styleSidebarGit    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleSidebarBorder = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, true, false, false).
				BorderForeground(lipgloss.Color("8"))

	stylePermission = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3"))
	styleQuestion   = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("24"))
	styleTaskHeader = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("60"))
	styleMenuItem   = lipgloss.NewStyle().Foreground(lipgloss.Color("7")).Background(lipgloss.Color("236"))
	styleMenuActive = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("61"))

	styleStatusBar = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("235"))
	styleStatusDim = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Background(lipgloss.Color("235"))
	styleBusy      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Background(lipgloss.Color("235"))
	styleFlash     = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3"))
)

var taskStyles = map[string]lipgloss.Style{
	"pending":     lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	"in_progress": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	"completed":   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	"deleted":     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
}

func modeStyle(mode Mode) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("235")).Padding(0, 1)
	switch mode {
	case ModeInsert:
		return base.Foreground(lipgloss.Color("10"))
	case ModeCommand:
		return base.Foreground(lipgloss.Color("11"))
	default:
		return base.Foreground(lipgloss.Color("7"))
	}
}
