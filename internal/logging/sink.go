package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level is the minimum severity a sink records.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// Sink serialises formatted lines onto a single writer. The terminal is owned
// by the UI, so the sink never writes to stdout.
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	level Level
}

// NewSink builds a sink over w. A nil writer discards everything.
func NewSink(w io.Writer, level Level) *Sink {
	if w == nil {
		w = io.Discard
	}
	return &Sink{w: w, level: level}
}

func (s *Sink) Component(component string) *ComponentLogger {
	return &ComponentLogger{sink: s, component: component}
}

func (s *Sink) Enabled(level Level) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return level >= s.level && s.w != io.Discard
}

func (s *Sink) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

func (s *Sink) write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.w, line)
}

func (s *Sink) redirect(w io.Writer, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w == nil {
		w = io.Discard
	}
	s.w = w
	s.level = level
}

var (
	sinkOnce     sync.Once
	sinkInstance *Sink
)

func defaultSink() *Sink {
	sinkOnce.Do(func() {
		sinkInstance = NewSink(nil, LevelInfo)
	})
	return sinkInstance
}

// Options configures the process-wide sink.
type Options struct {
	// Path is the log file; parent directories are created. Empty discards output.
	Path  string
	Level Level
}

// Setup points every component logger at the configured log file. The
// returned closer restores the discarding sink and closes the file.
func Setup(opts Options) (io.Closer, error) {
	sink := defaultSink()
	if strings.TrimSpace(opts.Path) == "" {
		sink.redirect(nil, opts.Level)
		return closerFunc(func() error { return nil }), nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	sink.redirect(file, opts.Level)
	return closerFunc(func() error {
		sink.redirect(nil, opts.Level)
		return file.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// DefaultLogPath returns <user cache dir>/companion/companion.log.
func DefaultLogPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "companion", "companion.log")
}
