package config

import (
	"fmt"
	"strconv"
	"strings"
)

func applyEnv(cfg *RuntimeConfig, meta *Metadata, opts loadOptions) error {
	lookup := opts.envLookup
	if lookup == nil {
		lookup = DefaultEnvLookup
	}

	if value, ok := lookup("COMPANION_PORT"); ok && value != "" {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("parse COMPANION_PORT: %w", err)
		}
		cfg.Port = port
		meta.sources["port"] = SourceEnv
	}

	textFields := []struct {
		key   string
		field string
		dst   *string
	}{
		{"COMPANION_CWD", "cwd", &cfg.CWD},
		{"COMPANION_MODEL", "model", &cfg.Model},
		{"COMPANION_BINARY", "binary", &cfg.BinaryPath},
		{"COMPANION_HOME", "home", &cfg.HomeDir},
		{"COMPANION_LOG_LEVEL", "log_level", &cfg.LogLevel},
		{"COMPANION_LOG_FILE", "log_file", &cfg.LogFile},
		{"COMPANION_METRICS_ADDR", "metrics_addr", &cfg.MetricsAddr},
	}
	for _, entry := range textFields {
		if value, ok := lookup(entry.key); ok && value != "" {
			*entry.dst = value
			meta.sources[entry.field] = SourceEnv
		}
	}

	if value, ok := lookup("COMPANION_CONNECT_ONLY"); ok && value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parse COMPANION_CONNECT_ONLY: %w", err)
		}
		cfg.ConnectOnly = enabled
		meta.sources["connect_only"] = SourceEnv
	}
	return nil
}
