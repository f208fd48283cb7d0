package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"medindex/internal/config"
)

func TestNew_Development(t *testing.T) {
	log := New(config.LogConfig{})
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	log.Debug("development logger active")
}

func TestNew_Production(t *testing.T) {
	log := New(config.LogConfig{Production: true})
	require.NotNil(t, log)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log := New(config.LogConfig{Production: true, File: path})

	log.Info("hello")
	log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
