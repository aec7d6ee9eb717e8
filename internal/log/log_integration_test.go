package log

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, err := New(Config{
		Level:    "debug",
		FilePath: logPath,
	})
	require.NoError(t, err)

	SetDefaultLogger(logger)
	t.Cleanup(func() { SetDefaultLogger(nil) })

	Debug("Debug message", "test", true)
	Info("Info message", "test", true)
	Warn("Warning message", "test", true)
	Error("Error message", "error", fmt.Errorf("test error"))

	// Close to flush the sink before reading the file back
	logger.Close()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)

	contentStr := string(content)
	assert.Contains(t, contentStr, "Debug message")
	assert.Contains(t, contentStr, "Info message")
	assert.Contains(t, contentStr, "Warning message")
	assert.Contains(t, contentStr, "Error message")
	assert.Contains(t, contentStr, "test error")
}

func TestTraceOnlyLogsWhenEnabled(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "trace.log")

	logger, err := New(Config{Level: "info", FilePath: logPath})
	require.NoError(t, err)

	SetDefaultLogger(logger)
	t.Cleanup(func() { SetDefaultLogger(nil) })

	Trace("hidden trace detail")
	logger.Close()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "hidden trace detail")

	logPath = filepath.Join(t.TempDir(), "trace.log")
	logger, err = New(Config{Level: "trace", FilePath: logPath})
	require.NoError(t, err)
	SetDefaultLogger(logger)

	Trace("visible trace detail")
	logger.Close()

	content, err = os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "TRACE: visible trace detail")
}
