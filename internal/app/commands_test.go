package app

import (
	"errors"
	"path/filepath"
	"testing"

	"companion/internal/logging"
	"companion/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"new", NewCommand{}},
		{"n work", NewCommand{Env: "work"}},
		{"close", KillCommand{}},
		{"rename  my session ", RenameCommand{Name: "my session"}},
		{"sessions", ListCommand{}},
		{"envs", EnvCommand{}},
		{"model opus", ModelCommand{Name: "opus"}},
		{"mode acceptEdits", ModeCommand{Mode: "acceptEdits"}},
		{"cd ~/src", CdCommand{Path: "~/src"}},
		{"wt feature-x", WorktreeCommand{Branch: "feature-x"}},
		{"exec ls -la", ExecCommand{Command: "ls -la"}},
		{"! git status", ExecCommand{Command: "git status"}},
		{":archive", ArchiveCommand{}},
		{"unarchive 2", UnarchiveCommand{Index: 2}},
		{"unarchive x", UnarchiveCommand{}},
		{"clear", ClearCommand{}},
		{"reconnect", ReconnectCommand{}},
		{"pin", PinCommand{}},
		{"?", HelpCommand{}},
		{"exit", QuitCommand{}},
		{"frobnicate now", UnknownCommand{Name: "frobnicate"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.input))
		})
	}
}

// newCommandLoop builds a loop without running it; commands are applied
// directly on the calling goroutine.
func newCommandLoop(t *testing.T) (*Loop, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil, registry.WithLogger(logging.Nop()), registry.WithProfiles([]registry.Profile{
		{Name: "work", Description: "Work", Vars: map[string]string{"A": "1"}},
	}))
	return New(reg, nil, testConfig()), reg
}

func TestKillAndArchiveRefuseLastSession(t *testing.T) {
	l, reg := newCommandLoop(t)
	reg.CreateDetached("only", "/work", "")

	l.runCommand(KillCommand{})
	assert.Equal(t, "Cannot kill the last session", l.flash)
	l.runCommand(ArchiveCommand{})
	assert.Equal(t, "Cannot archive the last visible session", l.flash)

	reg.CreateDetached("second", "/work", "")
	l.runCommand(ArchiveCommand{})
	assert.Equal(t, "Session archived", l.flash)
	assert.Len(t, reg.Visible(), 1)

	l.runCommand(UnarchiveCommand{Index: 1})
	assert.Equal(t, "Session is not archived", l.flash)
	l.runCommand(UnarchiveCommand{Index: 2})
	assert.Equal(t, "Session unarchived", l.flash)
	l.runCommand(UnarchiveCommand{Index: 9})
	assert.Equal(t, "Invalid session index", l.flash)
	l.runCommand(UnarchiveCommand{})
	assert.Equal(t, "Usage: :unarchive <n>", l.flash)

	l.runCommand(KillCommand{})
	assert.Equal(t, 1, reg.Len())
}

func TestNewCommandSchedulesSpawn(t *testing.T) {
	l, reg := newCommandLoop(t)
	l.runCommand(NewCommand{Env: "work"})
	require.Equal(t, 1, reg.Len())
	s := reg.Active()
	assert.Equal(t, "work", s.EnvProfile)
	assert.Equal(t, "/work", s.CWD)
	assert.Equal(t, "main", s.Git.Branch)
	assert.Equal(t, []string{s.ID}, reg.TakeSpawns())

	l.runCommand(NewCommand{Env: "missing"})
	assert.Equal(t, "Unknown env profile: missing", l.flash)
	assert.Equal(t, 1, reg.Len())
}

func TestSessionCommands(t *testing.T) {
	l, reg := newCommandLoop(t)
	s := reg.CreateDetached("first", "/work", "")

	l.runCommand(RenameCommand{Name: "renamed"})
	assert.Equal(t, "renamed", s.Name)
	l.runCommand(RenameCommand{})
	assert.Equal(t, "Usage: :rename <name>", l.flash)

	l.runCommand(ModelCommand{Name: "opus"})
	assert.Equal(t, "opus", s.Model)
	assert.Equal(t, "Model changed to: opus", s.Messages[len(s.Messages)-1].Content)

	l.runCommand(ModeCommand{Mode: "plan"})
	assert.Equal(t, "plan", s.PermissionMode)

	l.runCommand(PinCommand{})
	assert.True(t, s.Pinned)
	assert.Equal(t, "Session pinned", l.flash)

	l.runCommand(ExecCommand{Command: "echo hi"})
	assert.Equal(t, "$ echo hi\nran in /work", s.Messages[len(s.Messages)-1].Content)
	l.runCommand(ExecCommand{})
	assert.Equal(t, "Usage: :exec <command> or :!<command>", l.flash)

	l.runCommand(ListCommand{})
	assert.Contains(t, s.Messages[len(s.Messages)-1].Content, ">○ 1. renamed waiting $0.0000 [pinned]")

	l.runCommand(EnvCommand{})
	assert.Equal(t, "Environment profiles:\n  work - Work (1 vars)", s.Messages[len(s.Messages)-1].Content)

	l.runCommand(ClearCommand{})
	assert.Empty(t, s.Messages)

	l.runCommand(QuitCommand{})
	assert.True(t, l.quit)
}

func TestCdCommand(t *testing.T) {
	l, reg := newCommandLoop(t)
	s := reg.CreateDetached("first", t.TempDir(), "")

	l.runCommand(CdCommand{Path: "does-not-exist"})
	assert.Contains(t, l.flash, "Not a directory: ")

	target, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	l.runCommand(CdCommand{Path: target})
	assert.Equal(t, target, s.CWD)
	assert.Equal(t, "cwd: "+target, s.Messages[len(s.Messages)-1].Content)
	assert.Equal(t, "main", s.Git.Branch)
}

func TestWorktreeCommand(t *testing.T) {
	l, reg := newCommandLoop(t)
	reg.CreateDetached("first", "/repo", "")

	l.cfg.Worktree = func(cwd, branch string) (string, bool, error) {
		return "", false, ErrNotRepository
	}
	l.runCommand(WorktreeCommand{Branch: "feat"})
	assert.Equal(t, "Not in a git repository", l.flash)

	l.cfg.Worktree = func(cwd, branch string) (string, bool, error) {
		return "", false, errors.New("fatal: bad ref")
	}
	l.runCommand(WorktreeCommand{Branch: "feat"})
	assert.Equal(t, "Worktree failed: fatal: bad ref", l.flash)

	l.cfg.Worktree = func(cwd, branch string) (string, bool, error) {
		return "/feat", true, nil
	}
	l.runCommand(WorktreeCommand{Branch: "feat"})
	assert.Equal(t, "Worktree created: feat", l.flash)
	assert.Equal(t, "/feat", reg.Active().CWD)
	assert.Equal(t, 2, reg.Len())
}

func TestReconnectCommand(t *testing.T) {
	l, reg := newCommandLoop(t)
	s := reg.CreateDetached("first", "/work", "")
	l.runCommand(ReconnectCommand{})
	assert.Equal(t, []string{s.ID}, reg.TakeSpawns())

	s.Attach(&syncSender{})
	l.runCommand(ReconnectCommand{})
	assert.Equal(t, "Already connected", l.flash)
	assert.Empty(t, reg.TakeSpawns())
}
