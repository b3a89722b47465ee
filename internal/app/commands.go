package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"companion/internal/registry"
	"companion/internal/session"
)

// Command is a parsed ':' command line.
type Command interface {
	isCommand()
}

type (
	NewCommand       struct{ Env string }
	KillCommand      struct{}
	RenameCommand    struct{ Name string }
	ListCommand      struct{}
	EnvCommand       struct{}
	ModelCommand     struct{ Name string }
	ModeCommand      struct{ Mode string }
	CdCommand        struct{ Path string }
	WorktreeCommand  struct{ Branch string }
	ExecCommand      struct{ Command string }
	ArchiveCommand   struct{}
	UnarchiveCommand struct {
		// Index is 1-based; 0 means missing or unparseable.
		Index int
	}
	ClearCommand     struct{}
	ReconnectCommand struct{}
	PinCommand       struct{}
	HelpCommand      struct{}
	QuitCommand      struct{}
	UnknownCommand   struct{ Name string }
)

func (NewCommand) isCommand()       {}
func (KillCommand) isCommand()      {}
func (RenameCommand) isCommand()    {}
func (ListCommand) isCommand()      {}
func (EnvCommand) isCommand()       {}
func (ModelCommand) isCommand()     {}
func (ModeCommand) isCommand()      {}
func (CdCommand) isCommand()        {}
func (WorktreeCommand) isCommand()  {}
func (ExecCommand) isCommand()      {}
func (ArchiveCommand) isCommand()   {}
func (UnarchiveCommand) isCommand() {}
func (ClearCommand) isCommand()     {}
func (ReconnectCommand) isCommand() {}
func (PinCommand) isCommand()       {}
func (HelpCommand) isCommand()      {}
func (QuitCommand) isCommand()      {}
func (UnknownCommand) isCommand()   {}

// ParseCommand parses a command line without its leading ':'. "!cmd" is
// shorthand for "exec cmd".
func ParseCommand(input string) Command {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), ":"))
	if rest, ok := strings.CutPrefix(trimmed, "!"); ok {
		return ExecCommand{Command: strings.TrimSpace(rest)}
	}

	name, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "new", "n":
		return NewCommand{Env: arg}
	case "kill", "close":
		return KillCommand{}
	case "rename":
		return RenameCommand{Name: arg}
	case "ls", "sessions":
		return ListCommand{}
	case "env", "envs":
		return EnvCommand{}
	case "model":
		return ModelCommand{Name: arg}
	case "mode":
		return ModeCommand{Mode: arg}
	case "cd":
		return CdCommand{Path: arg}
	case "wt", "worktree":
		return WorktreeCommand{Branch: arg}
	case "exec":
		return ExecCommand{Command: arg}
	case "archive":
		return ArchiveCommand{}
	case "unarchive":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			n = 0
		}
		return UnarchiveCommand{Index: n}
	case "clear":
		return ClearCommand{}
	case "reconnect":
		return ReconnectCommand{}
	case "pin":
		return PinCommand{}
	case "help", "h", "?":
		return HelpCommand{}
	case "q", "quit", "exit":
		return QuitCommand{}
	default:
		return UnknownCommand{Name: name}
	}
}

// HelpText lists commands and keys.
var HelpText = strings.Join([]string{
	"Commands:",
	"  :new [env]       New session (optional env profile)",
	"  :kill            Close current session (hard delete)",
	"  :archive         Archive current session (soft hide)",
	"  :unarchive <n>   Unarchive session by index",
	"  :rename <name>   Rename current session",
	"  :cd <path>       Change working directory",
	"  :wt <branch>     New session in git worktree",
	"  :!<cmd>          Execute shell command",
	"  :ls              List all sessions",
	"  :model <name>    Change model",
	"  :mode <mode>     Change permission mode",
	"  :env             List environment profiles",
	"  :pin             Pin or unpin current session",
	"  :reconnect       Restart the agent for this session",
	"  :clear           Clear chat history",
	"  :q               Quit",
	"",
	"Keys (Normal mode):",
	"  i/a      Insert mode     :        Command mode",
	"  j/k      Scroll          G/g      Bottom/top",
	"  1-9      Switch session  ]/[      Next/prev session",
	"  p        Toggle plan     Ctrl+N   New session",
	"  t        Toggle tasks    Tab      Toggle sidebar",
	"  T        Toggle thinking Ctrl+C   Interrupt/quit",
	"",
	"Keys (Insert mode):",
	"  Enter    Send message    Esc      Normal mode",
	"  Ctrl+C   Interrupt       Ctrl+Q   Quit",
}, "\n")

// notice appends a system message to the active session, or flashes it when
// there is none.
func (l *Loop) notice(text string) {
	if s := l.reg.Active(); s != nil {
		s.AddSystem(text)
		return
	}
	l.setFlash(text)
}

func (l *Loop) runCommand(cmd Command) {
	active := l.reg.Active()
	cwd := l.cfg.DefaultCWD
	if active != nil {
		cwd = active.CWD
	}

	switch cmd := cmd.(type) {
	case NewCommand:
		if cmd.Env != "" {
			if _, ok := l.reg.Profile(cmd.Env); !ok {
				l.setFlash("Unknown env profile: " + cmd.Env)
				return
			}
		}
		s := l.reg.Create("", l.cfg.DefaultCWD, cmd.Env)
		s.Git = l.cfg.GitInfo(s.CWD)
		_ = l.reg.Persist(s.ID)

	case KillCommand:
		killed, err := l.reg.Kill()
		switch {
		case errors.Is(err, registry.ErrLastSession):
			l.setFlash("Cannot kill the last session")
		case errors.Is(err, registry.ErrNoSession):
			l.setFlash("No active session")
		default:
			delete(l.turnStart, killed.ID)
			l.cfg.Metrics.SetConnected(l.connectedCount())
			l.setFlash("Session killed: " + killed.Name)
		}

	case ArchiveCommand:
		_, err := l.reg.Archive()
		switch {
		case errors.Is(err, registry.ErrLastSession):
			l.setFlash("Cannot archive the last visible session")
		case errors.Is(err, registry.ErrNoSession):
			l.setFlash("No active session")
		default:
			l.setFlash("Session archived")
		}

	case UnarchiveCommand:
		l.unarchive(cmd.Index)

	case ListCommand:
		l.notice(l.listSessions())

	case EnvCommand:
		profiles := l.reg.Profiles()
		if len(profiles) == 0 {
			l.notice("No environment profiles found. Add profiles to ~/.companion/envs/")
			return
		}
		lines := make([]string, 0, len(profiles)+1)
		lines = append(lines, "Environment profiles:")
		for _, p := range profiles {
			lines = append(lines, fmt.Sprintf("  %s - %s (%d vars)", p.Name, p.Description, len(p.Vars)))
		}
		l.notice(strings.Join(lines, "\n"))

	case HelpCommand:
		l.notice(HelpText)

	case QuitCommand:
		l.quit = true

	case ExecCommand:
		if cmd.Command == "" {
			l.setFlash("Usage: :exec <command> or :!<command>")
			return
		}
		out, err := l.cfg.Shell(cwd, cmd.Command)
		if err != nil {
			l.setFlash("exec failed: " + err.Error())
			return
		}
		l.notice(out)

	case WorktreeCommand:
		if cmd.Branch == "" {
			l.setFlash("Usage: :wt <branch>")
			return
		}
		path, created, err := l.cfg.Worktree(cwd, cmd.Branch)
		switch {
		case errors.Is(err, ErrNotRepository):
			l.setFlash("Not in a git repository")
			return
		case err != nil:
			l.setFlash("Worktree failed: " + err.Error())
			return
		}
		s := l.reg.Create("", path, "")
		s.Git = l.cfg.GitInfo(path)
		_ = l.reg.Persist(s.ID)
		if created {
			l.setFlash("Worktree created: " + cmd.Branch)
		}

	case UnknownCommand:
		l.setFlash("Unknown command: " + cmd.Name)

	default:
		if active == nil {
			l.setFlash("No active session")
			return
		}
		l.runSessionCommand(active, cmd)
	}
}

// runSessionCommand handles commands that act on the active session.
func (l *Loop) runSessionCommand(s *session.Session, cmd Command) {
	switch cmd := cmd.(type) {
	case RenameCommand:
		if cmd.Name == "" {
			l.setFlash("Usage: :rename <name>")
			return
		}
		l.apply(s, s.Rename(cmd.Name))

	case ModelCommand:
		if cmd.Name == "" {
			l.setFlash("Usage: :model <name>")
			return
		}
		s.AddSystem("Model changed to: " + cmd.Name)
		l.apply(s, s.SetModel(cmd.Name))

	case ModeCommand:
		if cmd.Mode == "" {
			l.setFlash("Usage: :mode <permission_mode>")
			return
		}
		s.AddSystem("Permission mode: " + cmd.Mode)
		l.apply(s, s.SetPermissionMode(cmd.Mode))

	case CdCommand:
		if cmd.Path == "" {
			l.setFlash("Usage: :cd <path>")
			return
		}
		dir, ok := resolveDir(s.CWD, cmd.Path)
		if !ok {
			l.setFlash("Not a directory: " + dir)
			return
		}
		s.AddSystem("cwd: " + dir)
		l.apply(s, s.SetCWD(dir))

	case ClearCommand:
		s.Clear()

	case PinCommand:
		s.Pinned = !s.Pinned
		_ = l.reg.Persist(s.ID)
		if s.Pinned {
			l.setFlash("Session pinned")
		} else {
			l.setFlash("Session unpinned")
		}

	case ReconnectCommand:
		if s.Connected {
			l.setFlash("Already connected")
			return
		}
		s.AbortProcess()
		s.AddSystem("Reconnecting...")
		l.reg.ScheduleSpawn(s.ID)
	}
}

func (l *Loop) unarchive(index int) {
	all := l.reg.All()
	switch {
	case index == 0:
		l.setFlash("Usage: :unarchive <n>")
	case index > len(all):
		l.setFlash("Invalid session index")
	case !all[index-1].Archived:
		l.setFlash("Session is not archived")
	default:
		if _, err := l.reg.Unarchive(index - 1); err != nil {
			l.setFlash("Unarchive failed: " + err.Error())
			return
		}
		l.setFlash("Session unarchived")
	}
}

func (l *Loop) listSessions() string {
	activeID := l.reg.ActiveID()
	lines := make([]string, 0, l.reg.Len())
	for i, s := range l.reg.All() {
		marker := " "
		if s.ID == activeID {
			marker = ">"
		}
		conn := "○"
		if s.Connected {
			conn = "●"
		}
		suffix := ""
		if s.Pinned {
			suffix += " [pinned]"
		}
		if s.Archived {
			suffix += " [archived]"
		}
		lines = append(lines, fmt.Sprintf("%s%s %d. %s %s $%.4f%s", marker, conn, i+1, s.Name, s.Status, s.TotalCostUSD, suffix))
	}
	return strings.Join(lines, "\n")
}
