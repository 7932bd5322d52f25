package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestResolveLevel(t *testing.T) {
	t.Parallel()

	level, err := resolveLevel(Options{})
	require.NoError(t, err)
	require.Equal(t, zapcore.InfoLevel, level)

	level, err = resolveLevel(Options{Level: "WARN"})
	require.NoError(t, err)
	require.Equal(t, zapcore.WarnLevel, level)

	level, err = resolveLevel(Options{Level: "error", Verbose: true})
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, level)

	_, err = resolveLevel(Options{Level: "loud"})
	require.Error(t, err)
}

func TestNewWritesRotatedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "wipsher.log")
	logger, err := New(Options{File: path, Level: "info"})
	require.NoError(t, err)

	logger.Info("model loaded", zap.String("model", "tiny"))
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), `"msg":"model loaded"`)
	require.Contains(t, string(content), `"model":"tiny"`)
	require.NotContains(t, string(content), "hidden at info level")
}
