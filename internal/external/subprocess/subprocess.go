package subprocess

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	defaultStopGrace = 5 * time.Second
	stderrTailLines  = 20
	// waitDelay bounds how long Wait keeps draining output held open by
	// grandchildren after the direct child has exited.
	waitDelay = 2 * time.Second
)

// Config defines how to spawn and manage an external agent subprocess.
type Config struct {
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
	// OnStdout and OnStderr receive complete output lines. Nil discards.
	OnStdout  func(line string)
	OnStderr  func(line string)
	StopGrace time.Duration
}

// Subprocess manages the lifecycle of a single external agent process.
// Stdin is never connected; the child reads /dev/null.
type Subprocess struct {
	cfg    Config
	cmd    *exec.Cmd
	stdout *lineWriter
	stderr *lineWriter
	done   chan struct{}
	err    error
	pgid   int
	mu     sync.Mutex
}

// New creates a new Subprocess from the given config.
func New(cfg Config) *Subprocess {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	return &Subprocess{cfg: cfg}
}

// Start launches the process. Cancelling ctx stops the whole process group.
func (s *Subprocess) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("subprocess already started")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := exec.Command(s.cfg.Command, s.cfg.Args...)
	if s.cfg.WorkingDir != "" {
		cmd.Dir = s.cfg.WorkingDir
	}
	cmd.Env = MergeEnv(os.Environ(), s.cfg.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = waitDelay

	s.stdout = newLineWriter(s.cfg.OnStdout, 0)
	s.stderr = newLineWriter(s.cfg.OnStderr, stderrTailLines)
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start subprocess: %w", err)
	}
	s.cmd = cmd
	s.done = make(chan struct{})
	if cmd.Process != nil {
		s.pgid, _ = syscall.Getpgid(cmd.Process.Pid)
	}

	go func() {
		err := cmd.Wait()
		s.stdout.flush()
		s.stderr.flush()
		s.mu.Lock()
		s.err = err
		close(s.done)
		s.mu.Unlock()
	}()

	done := s.done
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-done:
		}
	}()

	return nil
}

// Done is closed once the process has exited and its output is drained.
func (s *Subprocess) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Subprocess) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop sends SIGTERM to the process group and escalates to SIGKILL after the
// configured grace period.
func (s *Subprocess) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	done := s.done
	pgid := s.pgid
	grace := s.cfg.StopGrace
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if pgid == 0 {
		pgid = cmd.Process.Pid
	}
	select {
	case <-done:
		return nil
	default:
	}
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		return nil
	}
}

func (s *Subprocess) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// StderrTail returns the last stderr lines, useful when reporting exit failures.
func (s *Subprocess) StderrTail() string {
	s.mu.Lock()
	stderr := s.stderr
	s.mu.Unlock()
	if stderr == nil {
		return ""
	}
	return stderr.tailString()
}

// MergeEnv overlays vars on base, replacing existing keys. The overlay is
// applied in key order so the result is deterministic.
func MergeEnv(base []string, vars map[string]string) []string {
	if len(vars) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(vars))
	for _, entry := range base {
		key, _, _ := strings.Cut(entry, "=")
		if _, override := vars[key]; override {
			continue
		}
		merged = append(merged, entry)
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+vars[k])
	}
	return merged
}

// lineWriter splits written bytes into lines and keeps an optional tail.
type lineWriter struct {
	mu      sync.Mutex
	onLine  func(string)
	partial []byte
	tail    []string
	keep    int
}

func newLineWriter(onLine func(string), keep int) *lineWriter {
	return &lineWriter{onLine: onLine, keep: keep}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial = append(w.partial, p...)
	for {
		idx := bytes.IndexByte(w.partial, '\n')
		if idx < 0 {
			break
		}
		w.emit(string(bytes.TrimRight(w.partial[:idx], "\r")))
		w.partial = w.partial[idx+1:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.emit(string(w.partial))
		w.partial = nil
	}
}

func (w *lineWriter) emit(line string) {
	if w.keep > 0 {
		w.tail = append(w.tail, line)
		if len(w.tail) > w.keep {
			w.tail = w.tail[len(w.tail)-w.keep:]
		}
	}
	if w.onLine != nil {
		w.onLine(line)
	}
}

func (w *lineWriter) tailString() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.tail, "\n")
}
