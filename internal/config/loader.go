package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	DefaultPort         = 8765
	DefaultBinaryPath   = "claude"
	DefaultHomeDir      = "~/.companion"
	DefaultLogLevel     = "info"
	DefaultTickInterval = 100 * time.Millisecond
	DefaultFlashTTL     = 3 * time.Second
)

// RuntimeConfig captures the user-configurable settings of the companion.
type RuntimeConfig struct {
	Port         int
	CWD          string
	Model        string
	BinaryPath   string
	HomeDir      string
	LogLevel     string
	LogFile      string
	MetricsAddr  string
	ConnectOnly  bool
	TickInterval time.Duration
	FlashTTL     time.Duration
}

// SessionsDir is where persisted sessions live.
func (c RuntimeConfig) SessionsDir() string {
	return filepath.Join(c.HomeDir, "sessions")
}

// EnvsDir is where environment profiles live.
func (c RuntimeConfig) EnvsDir() string {
	return filepath.Join(c.HomeDir, "envs")
}

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
}

// Source returns the origin for the given configuration field.
func (m Metadata) Source(field string) ValueSource {
	if m.sources == nil {
		return SourceDefault
	}
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// Sources returns a copy of every recorded field origin.
func (m Metadata) Sources() map[string]ValueSource {
	out := make(map[string]ValueSource, len(m.sources))
	for k, v := range m.sources {
		out[k] = v
	}
	return out
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// Overrides conveys caller-specified values that should win over env/file sources.
type Overrides struct {
	Port         *int
	CWD          *string
	Model        *string
	BinaryPath   *string
	HomeDir      *string
	LogLevel     *string
	LogFile      *string
	MetricsAddr  *string
	ConnectOnly  *bool
	TickInterval *time.Duration
	FlashTTL     *time.Duration
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup  EnvLookup
	readFile   func(string) ([]byte, error)
	homeDir    func() (string, error)
	workDir    func() (string, error)
	overrides  Overrides
	configPath string
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithConfigPath forces the loader to read configuration from a specific file.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// WithHomeDir overrides how the loader resolves the user's home directory.
func WithHomeDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.homeDir = resolver
	}
}

// WithWorkDir overrides how the default working directory is resolved.
func WithWorkDir(resolver func() (string, error)) Option {
	return func(o *loadOptions) {
		o.workDir = resolver
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Load constructs the runtime configuration by merging defaults, file, env and overrides.
func Load(opts ...Option) (RuntimeConfig, Metadata, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
		workDir:   os.Getwd,
	}
	for _, opt := range opts {
		opt(&options)
	}

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	cfg := RuntimeConfig{
		Port:         DefaultPort,
		BinaryPath:   DefaultBinaryPath,
		HomeDir:      DefaultHomeDir,
		LogLevel:     DefaultLogLevel,
		TickInterval: DefaultTickInterval,
		FlashTTL:     DefaultFlashTTL,
	}
	if wd, err := options.workDir(); err == nil {
		cfg.CWD = wd
	}

	if err := applyFile(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	if err := applyEnv(&cfg, &meta, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	applyOverrides(&cfg, &meta, options.overrides)

	if err := normalize(&cfg, options); err != nil {
		return RuntimeConfig{}, Metadata{}, err
	}
	return cfg, meta, nil
}

func applyOverrides(cfg *RuntimeConfig, meta *Metadata, overrides Overrides) {
	if overrides.Port != nil {
		cfg.Port = *overrides.Port
		meta.sources["port"] = SourceOverride
	}
	if overrides.CWD != nil {
		cfg.CWD = *overrides.CWD
		meta.sources["cwd"] = SourceOverride
	}
	if overrides.Model != nil {
		cfg.Model = *overrides.Model
		meta.sources["model"] = SourceOverride
	}
	if overrides.BinaryPath != nil {
		cfg.BinaryPath = *overrides.BinaryPath
		meta.sources["binary"] = SourceOverride
	}
	if overrides.HomeDir != nil {
		cfg.HomeDir = *overrides.HomeDir
		meta.sources["home"] = SourceOverride
	}
	if overrides.LogLevel != nil {
		cfg.LogLevel = *overrides.LogLevel
		meta.sources["log_level"] = SourceOverride
	}
	if overrides.LogFile != nil {
		cfg.LogFile = *overrides.LogFile
		meta.sources["log_file"] = SourceOverride
	}
	if overrides.MetricsAddr != nil {
		cfg.MetricsAddr = *overrides.MetricsAddr
		meta.sources["metrics_addr"] = SourceOverride
	}
	if overrides.ConnectOnly != nil {
		cfg.ConnectOnly = *overrides.ConnectOnly
		meta.sources["connect_only"] = SourceOverride
	}
	if overrides.TickInterval != nil {
		cfg.TickInterval = *overrides.TickInterval
		meta.sources["tick_interval"] = SourceOverride
	}
	if overrides.FlashTTL != nil {
		cfg.FlashTTL = *overrides.FlashTTL
		meta.sources["flash_ttl"] = SourceOverride
	}
}

func normalize(cfg *RuntimeConfig, opts loadOptions) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.FlashTTL <= 0 {
		cfg.FlashTTL = DefaultFlashTTL
	}
	cfg.BinaryPath = strings.TrimSpace(cfg.BinaryPath)
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = DefaultBinaryPath
	}

	home, err := expandHome(cfg.HomeDir, opts.homeDir)
	if err != nil {
		return err
	}
	cfg.HomeDir = home
	if cfg.CWD != "" {
		if cfg.CWD, err = expandHome(cfg.CWD, opts.homeDir); err != nil {
			return err
		}
	}
	if cfg.LogFile != "" {
		if cfg.LogFile, err = expandHome(cfg.LogFile, opts.homeDir); err != nil {
			return err
		}
	}
	return nil
}

// expandHome resolves a leading "~/" against the user's home directory.
func expandHome(path string, homeDir func() (string, error)) (string, error) {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
