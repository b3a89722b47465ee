package async

import (
	"fmt"
	"sync"
	"testing"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestGoTrackedRecoversPanics(t *testing.T) {
	logger := &recordingLogger{}
	var wg sync.WaitGroup

	GoTracked(&wg, logger, "reader", func() { panic("boom") })
	GoTracked(&wg, logger, "writer", func() {})
	wg.Wait()

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.lines) != 1 {
		t.Fatalf("expected one panic report, got %d", len(logger.lines))
	}
}
