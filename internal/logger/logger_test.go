package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)

	logger.Info("test message", "key1", "value1", "key2", 123)
	logger.With("request_id", "123").Info("test with context")
	logger.Debug("debug message")
	logger.Warn("warning message")
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbdash.log")
	logger, err := New(Config{Level: "bogus", Format: "json", OutputPath: path})
	require.NoError(t, err)
	logger.Info("hello", "k", "v")
	logger.Sync()
	require.FileExists(t, path)
}

func TestNop(t *testing.T) {
	NewNop().Error("discarded")
}
