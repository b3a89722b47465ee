package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv names an explicit config file location.
const ConfigPathEnv = "COMPANION_CONFIG"

type fileConfig struct {
	Port         *int   `yaml:"port"`
	CWD          string `yaml:"cwd"`
	Model        string `yaml:"model"`
	BinaryPath   string `yaml:"binary"`
	HomeDir      string `yaml:"home"`
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	MetricsAddr  string `yaml:"metrics_addr"`
	ConnectOnly  *bool  `yaml:"connect_only"`
	TickInterval string `yaml:"tick_interval"`
	FlashTTL     string `yaml:"flash_ttl"`
}

// ResolveConfigPath returns $COMPANION_CONFIG or ~/.companion/config.yaml.
func ResolveConfigPath(lookup EnvLookup, homeDir func() (string, error)) (string, ValueSource) {
	if lookup == nil {
		lookup = DefaultEnvLookup
	}
	if value, ok := lookup(ConfigPathEnv); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value), SourceEnv
	}
	if homeDir == nil {
		return "", SourceDefault
	}
	home, err := homeDir()
	if err != nil || home == "" {
		return "", SourceDefault
	}
	return filepath.Join(home, ".companion", "config.yaml"), SourceDefault
}

func applyFile(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		configPath, _ = ResolveConfigPath(opts.envLookup, opts.homeDir)
	}
	if configPath == "" {
		return nil
	}

	data, err := opts.readFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", configPath, err)
	}

	if parsed.Port != nil {
		cfg.Port = *parsed.Port
		meta.sources["port"] = SourceFile
	}
	setString := func(field string, dst *string, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		*dst = strings.TrimSpace(value)
		meta.sources[field] = SourceFile
	}
	setString("cwd", &cfg.CWD, parsed.CWD)
	setString("model", &cfg.Model, parsed.Model)
	setString("binary", &cfg.BinaryPath, parsed.BinaryPath)
	setString("home", &cfg.HomeDir, parsed.HomeDir)
	setString("log_level", &cfg.LogLevel, parsed.LogLevel)
	setString("log_file", &cfg.LogFile, parsed.LogFile)
	setString("metrics_addr", &cfg.MetricsAddr, parsed.MetricsAddr)
	if parsed.ConnectOnly != nil {
		cfg.ConnectOnly = *parsed.ConnectOnly
		meta.sources["connect_only"] = SourceFile
	}
	if parsed.TickInterval != "" {
		d, err := time.ParseDuration(parsed.TickInterval)
		if err != nil {
			return fmt.Errorf("parse tick_interval: %w", err)
		}
		cfg.TickInterval = d
		meta.sources["tick_interval"] = SourceFile
	}
	if parsed.FlashTTL != "" {
		d, err := time.ParseDuration(parsed.FlashTTL)
		if err != nil {
			return fmt.Errorf("parse flash_ttl: %w", err)
		}
		cfg.FlashTTL = d
		meta.sources["flash_ttl"] = SourceFile
	}
	return nil
}
