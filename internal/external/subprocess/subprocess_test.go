package subprocess

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSubprocess_StderrTailCapturesOutput(t *testing.T) {
	proc := New(Config{
		Command: "bash",
		Args:    []string{"-c", "echo err 1>&2; exit 2"},
	})
	if err := proc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := proc.Wait(); err == nil {
		t.Fatalf("expected exit error")
	}

	if !strings.Contains(proc.StderrTail(), "err") {
		t.Fatalf("expected stderr tail to contain output, got %q", proc.StderrTail())
	}
}

func TestSubprocess_LinesEnvAndDir(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	dir := t.TempDir()
	proc := New(Config{
		Command:    "bash",
		Args:       []string{"-c", `printf 'one\ntwo\n'; echo "$COMPANION_TEST_VAR"; pwd; printf tail`},
		Env:        map[string]string{"COMPANION_TEST_VAR": "hello"},
		WorkingDir: dir,
		OnStdout: func(line string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, line)
		},
	})
	if err := proc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := proc.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %q", lines)
	}
	if lines[0] != "one" || lines[2] != "hello" || lines[4] != "tail" {
		t.Fatalf("unexpected lines %q", lines)
	}
	if !strings.HasSuffix(lines[3], filepath.Base(dir)) {
		t.Fatalf("expected working dir %q, got %q", dir, lines[3])
	}
}

func TestSubprocess_StdinIsNull(t *testing.T) {
	proc := New(Config{Command: "cat"})
	if err := proc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		_ = proc.Stop()
		t.Fatalf("cat should exit immediately on a null stdin")
	}
}

func TestSubprocess_ContextCancelStopsProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	proc := New(Config{Command: "sleep", Args: []string{"30"}, StopGrace: time.Second})
	if err := proc.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if proc.PID() == 0 {
		t.Fatalf("expected pid")
	}
	cancel()

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process did not stop after cancellation")
	}
}

func TestMergeEnvOverridesKeys(t *testing.T) {
	merged := MergeEnv([]string{"A=1", "B=2"}, map[string]string{"B": "3", "C": "4"})
	want := []string{"A=1", "B=3", "C=4"}
	if strings.Join(merged, ",") != strings.Join(want, ",") {
		t.Fatalf("MergeEnv() = %v, want %v", merged, want)
	}
}
