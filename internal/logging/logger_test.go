package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/ctxkeeper/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "ctxkeeper.log")

	logger, cleanup, err := newWithConsole(config.LogConfig{
		File:       file,
		Level:      "info",
		MaxSizeMB:  1,
		MaxBackups: 1,
	}, &console)
	require.NoError(t, err)

	logger.Named("scope").Info("scope loaded", zap.String("theme", "auth"))
	logger.Debug("hidden at info level")
	cleanup()

	assert.Contains(t, console.String(), "scope loaded")
	assert.NotContains(t, console.String(), "hidden at info level")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"msg":"scope loaded"`)
	assert.Contains(t, line, `"theme":"auth"`)
	assert.Contains(t, line, `"logger":"scope"`)
}

func TestNew_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, cleanup, err := newWithConsole(config.LogConfig{Level: "debug"}, &console)
	require.NoError(t, err)

	logger.Debug("visible")
	cleanup()
	assert.Contains(t, console.String(), "visible")
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, cleanup, err := New(config.LogConfig{Level: "shouty"})
	assert.Error(t, err)
	cleanup()
}
