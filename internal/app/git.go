package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"companion/internal/session"
)

const shellTimeout = 30 * time.Second

var ErrNotRepository = errors.New("not in a git repository")

// runIn executes name with args in dir and returns trimmed stdout.
func runIn(dir, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), shellTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// GatherGitInfo describes the repository containing cwd. Outside a
// repository it returns the zero value.
func GatherGitInfo(cwd string) session.GitInfo {
	var info session.GitInfo
	branch, err := runIn(cwd, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return info
	}
	info.Branch = branch

	if gitDir, err := runIn(cwd, "git", "rev-parse", "--git-dir"); err == nil {
		info.IsWorktree = strings.Contains(filepath.ToSlash(gitDir), "/worktrees/")
	}
	if root, err := runIn(cwd, "git", "rev-parse", "--show-toplevel"); err == nil {
		info.RepoRoot = root
	}
	if counts, err := runIn(cwd, "git", "rev-list", "--left-right", "--count", "@{upstream}...HEAD"); err == nil {
		if fields := strings.Fields(counts); len(fields) == 2 {
			info.Behind, _ = strconv.Atoi(fields[0])
			info.Ahead, _ = strconv.Atoi(fields[1])
		}
	}
	return info
}

// ShellOutput runs command through sh in dir and formats the transcript
// entry: the command, its stdout and stderr, and a non-zero exit code.
func ShellOutput(dir, command string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), shellTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return "", runErr
	}

	var b strings.Builder
	b.WriteString("$ " + command)
	if out := strings.TrimRight(stdout.String(), " \t\r\n"); out != "" {
		b.WriteString("\n" + out)
	}
	if out := strings.TrimRight(stderr.String(), " \t\r\n"); out != "" {
		b.WriteString("\n" + out)
	}
	if exitErr != nil {
		fmt.Fprintf(&b, "\n[exit %d]", exitErr.ExitCode())
	}
	return b.String(), nil
}

// CreateWorktree makes a worktree for branch next to the repository root of
// cwd and returns its path. An existing directory is reused as is. The branch
// is checked out if it exists and created otherwise.
func CreateWorktree(cwd, branch string) (path string, created bool, err error) {
	info := GatherGitInfo(cwd)
	if info.RepoRoot == "" {
		return "", false, ErrNotRepository
	}
	path = filepath.Join(filepath.Dir(info.RepoRoot), branch)
	if _, statErr := os.Stat(path); statErr == nil {
		return path, false, nil
	}
	if _, err := runIn(cwd, "git", "worktree", "add", path, branch); err == nil {
		return path, true, nil
	}
	if _, err := runIn(cwd, "git", "worktree", "add", "-b", branch, path); err != nil {
		return "", false, err
	}
	return path, true, nil
}

// resolveDir expands ~ and resolves path against base. It reports false
// unless the result is an existing directory.
func resolveDir(base, path string) (string, bool) {
	switch {
	case path == "~" || strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return path, false
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	case !filepath.IsAbs(path):
		path = filepath.Join(base, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path, false
	}
	stat, err := os.Stat(resolved)
	if err != nil || !stat.IsDir() {
		return path, false
	}
	return resolved, true
}
