package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedHome() (string, error) { return "/home/tester", nil }
func fixedWD() (string, error)   { return "/work", nil }

func noEnv(string) (string, bool) { return "", false }

func missingFile(string) ([]byte, error) { return nil, os.ErrNotExist }

func TestLoadDefaults(t *testing.T) {
	cfg, meta, err := Load(
		WithEnv(noEnv),
		WithFileReader(missingFile),
		WithHomeDir(fixedHome),
		WithWorkDir(fixedWD),
	)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "/work", cfg.CWD)
	assert.Equal(t, "claude", cfg.BinaryPath)
	assert.Equal(t, "/home/tester/.companion", cfg.HomeDir)
	assert.Equal(t, "/home/tester/.companion/sessions", cfg.SessionsDir())
	assert.Equal(t, "/home/tester/.companion/envs", cfg.EnvsDir())
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 3*time.Second, cfg.FlashTTL)
	assert.Equal(t, SourceDefault, meta.Source("port"))
	assert.False(t, meta.LoadedAt().IsZero())
}

func TestLoadPrecedence(t *testing.T) {
	var readPath string
	reader := func(path string) ([]byte, error) {
		readPath = path
		return []byte("port: 9000\nmodel: sonnet\nbinary: /opt/claude\ntick_interval: 50ms\nconnect_only: true\n"), nil
	}
	env := map[string]string{"COMPANION_MODEL": "opus", "COMPANION_PORT": "9100"}
	port := 9200

	cfg, meta, err := Load(
		WithEnv(func(key string) (string, bool) { v, ok := env[key]; return v, ok }),
		WithFileReader(reader),
		WithHomeDir(fixedHome),
		WithWorkDir(fixedWD),
		WithOverrides(Overrides{Port: &port}),
	)
	require.NoError(t, err)

	assert.Equal(t, "/home/tester/.companion/config.yaml", readPath)
	assert.Equal(t, 9200, cfg.Port)
	assert.Equal(t, SourceOverride, meta.Source("port"))
	assert.Equal(t, "opus", cfg.Model)
	assert.Equal(t, SourceEnv, meta.Source("model"))
	assert.Equal(t, "/opt/claude", cfg.BinaryPath)
	assert.Equal(t, SourceFile, meta.Source("binary"))
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval)
	assert.True(t, cfg.ConnectOnly)
}

func TestLoadHonoursConfigPathEnv(t *testing.T) {
	var readPath string
	_, _, err := Load(
		WithEnv(func(key string) (string, bool) {
			if key == ConfigPathEnv {
				return "/etc/companion.yaml", true
			}
			return "", false
		}),
		WithFileReader(func(path string) ([]byte, error) { readPath = path; return nil, nil }),
		WithHomeDir(fixedHome),
		WithWorkDir(fixedWD),
	)
	require.NoError(t, err)
	assert.Equal(t, "/etc/companion.yaml", readPath)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, _, err := Load(
		WithEnv(func(key string) (string, bool) {
			if key == "COMPANION_PORT" {
				return "not-a-port", true
			}
			return "", false
		}),
		WithFileReader(missingFile),
		WithHomeDir(fixedHome),
		WithWorkDir(fixedWD),
	)
	require.Error(t, err)

	_, _, err = Load(
		WithEnv(noEnv),
		WithFileReader(func(string) ([]byte, error) { return []byte("port: [1"), nil }),
		WithHomeDir(fixedHome),
		WithWorkDir(fixedWD),
	)
	require.Error(t, err)
}
