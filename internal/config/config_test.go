package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conmux.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// chdir moves the test into dir and restores the previous working
// directory at cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	// Point at a directory without a config file.
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "conmux", cfg.Prefix)
	require.Empty(t, cfg.Log)
	require.True(t, cfg.LogStderr)
	require.True(t, cfg.StderrHeader)
	require.Equal(t, 20*time.Millisecond, cfg.BatchInterval)
	require.Equal(t, ColourAuto, cfg.Colour)
	require.False(t, cfg.UserMode)
	require.Equal(t, 2*time.Second, cfg.StatsInterval)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
prefix: builder
log: build.log
log_stderr: false
batch_interval: 50ms
colour: never
stats: true
listen: "127.0.0.1:8822"
highlights:
  FATAL: error
  deploy: ""
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "builder", cfg.Prefix)
	require.Equal(t, "build.log", cfg.Log)
	require.False(t, cfg.LogStderr)
	require.Equal(t, 50*time.Millisecond, cfg.BatchInterval)
	require.Equal(t, ColourNever, cfg.Colour)
	require.True(t, cfg.Stats)
	require.Equal(t, "127.0.0.1:8822", cfg.Listen)
	require.Equal(t, map[string]string{"FATAL": "error", "deploy": ""}, cfg.Highlights)
}

func TestLoad_HighlightKeysKeepCase(t *testing.T) {
	// Highlight words match case-sensitively, so the keys must survive
	// loading as written.
	path := writeConfig(t, `
highlights:
  FATAL: error
  Deploy: ""
  ok: stat
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"FATAL": "error", "Deploy": "", "ok": "stat"}, cfg.Highlights)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CONMUX_PREFIX", "from-env")
	t.Setenv("CONMUX_BATCH_INTERVAL", "75ms")
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "from-env", cfg.Prefix)
	require.Equal(t, 75*time.Millisecond, cfg.BatchInterval)
}

func TestLoad_InvalidColour(t *testing.T) {
	path := writeConfig(t, "colour: sometimes\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "colour mode")
}

func TestLoad_InvalidInterval(t *testing.T) {
	path := writeConfig(t, "batch_interval: -5ms\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "batch_interval")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestColourEnabled_Modes(t *testing.T) {
	cfg := &Config{Colour: ColourAlways}
	require.True(t, cfg.ColourEnabled())

	cfg.Colour = ColourNever
	require.False(t, cfg.ColourEnabled())
}
