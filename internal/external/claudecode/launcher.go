package claudecode

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	cerrors "companion/internal/errors"
	"companion/internal/external/subprocess"
	"companion/internal/logging"
	"companion/internal/protocol"
)

// Config configures how agent processes are launched.
type Config struct {
	BinaryPath string
	// Host and Port locate the bridge the agent dials back to.
	Host string
	Port int
	// Extra environment applied to every launch, under the per-session profile.
	Env map[string]string
}

// LaunchSpec describes one agent process for one session.
type LaunchSpec struct {
	SessionID string
	CWD       string
	Model     string
	// ResumeID is the agent's conversation id; empty starts a fresh conversation.
	ResumeID string
	Env      map[string]string
}

// Launcher starts Claude Code in SDK mode pointed back at the bridge.
type Launcher struct {
	cfg      Config
	lookPath func(string) (string, error)
	logger   logging.Logger
}

func New(cfg Config) *Launcher {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		cfg.BinaryPath = "claude"
	}
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "127.0.0.1"
	}
	return &Launcher{
		cfg:      cfg,
		lookPath: exec.LookPath,
		logger:   logging.NewComponentLogger("ClaudeCodeLauncher"),
	}
}

// SDKURL is the websocket endpoint a session's agent connects to.
func (l *Launcher) SDKURL(sessionID string) string {
	return fmt.Sprintf("ws://%s:%d%s%s", l.cfg.Host, l.cfg.Port, protocol.CLIPathPrefix, sessionID)
}

// Args builds the agent command line for spec.
func (l *Launcher) Args(spec LaunchSpec) []string {
	args := []string{
		"--sdk-url", l.SDKURL(spec.SessionID),
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}
	if model := strings.TrimSpace(spec.Model); model != "" {
		args = append(args, "--model", model)
	}
	if resume := strings.TrimSpace(spec.ResumeID); resume != "" {
		args = append(args, "--resume", resume)
	}
	return args
}

// Env merges launcher defaults, the session profile and the CLAUDECODE marker.
func (l *Launcher) Env(spec LaunchSpec) map[string]string {
	env := cloneStringMap(l.cfg.Env)
	for k, v := range spec.Env {
		env[k] = v
	}
	env["CLAUDECODE"] = "1"
	return env
}

// Run starts the agent for spec and blocks until it exits or ctx is
// cancelled, in which case the process group is terminated. A nil error means
// the agent exited cleanly.
func (l *Launcher) Run(ctx context.Context, spec LaunchSpec) error {
	binary, err := l.lookPath(l.cfg.BinaryPath)
	if err != nil {
		return cerrors.Process("resolve agent binary", fmt.Errorf("%s: %w", l.cfg.BinaryPath, err))
	}

	logger := l.logger
	proc := subprocess.New(subprocess.Config{
		Command:    binary,
		Args:       l.Args(spec),
		Env:        l.Env(spec),
		WorkingDir: spec.CWD,
		OnStdout: func(line string) {
			logger.Debug("[agent stdout] [%s] %s", spec.SessionID, line)
		},
		OnStderr: func(line string) {
			logger.Debug("[agent stderr] [%s] %s", spec.SessionID, line)
		},
	})
	if err := proc.Start(ctx); err != nil {
		return cerrors.Process("spawn agent", err)
	}
	logger.Info("agent started for session %s (pid %d, resume=%t)", spec.SessionID, proc.PID(), spec.ResumeID != "")

	waitErr := proc.Wait()
	if ctx.Err() != nil {
		logger.Info("agent for session %s stopped", spec.SessionID)
		return ctx.Err()
	}
	if waitErr != nil {
		tail := proc.StderrTail()
		logger.Warn("agent for session %s exited: %v %s", spec.SessionID, waitErr, tail)
		if tail != "" {
			return cerrors.Process("agent exited", fmt.Errorf("%w: %s", waitErr, protocol.Truncate(tail, 300)))
		}
		return cerrors.Process("agent exited", waitErr)
	}
	logger.Info("agent for session %s exited", spec.SessionID)
	return nil
}

func cloneStringMap(src map[string]string) map[string]string {
	out := make(map[string]string, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}
