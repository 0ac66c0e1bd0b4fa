package logger

import (
	"os"
	"path/filepath"
	"testing"

	"galleryview/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesLevelFiles(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&config.Config{LogDirectory: dir, LogLevel: "debug"})
	require.NoError(t, err)
	defer l.Close()

	l.Info("day %s loaded", "20240601")
	l.Warning("slow response")
	l.Error("fetch failed: %v", "boom")

	info, err := os.ReadFile(filepath.Join(dir, "info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(info), "day 20240601 loaded")

	errs, err := os.ReadFile(filepath.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errs), "fetch failed: boom")
	assert.NotContains(t, string(errs), "slow response")
}

func TestLogger_CleanLogs(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&config.Config{LogDirectory: dir})
	require.NoError(t, err)
	defer l.Close()

	l.Warning("something odd")
	require.NoError(t, l.CleanLogs("warning.log"))

	data, err := os.ReadFile(filepath.Join(dir, "warning.log"))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("Warning").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}
