package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iTrooz/bandcache/internal/config"
)

func TestInitLoggerDefaultsToStderr(t *testing.T) {
	logger, err := InitLogger(config.LogConfig{Level: "info", Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, logger.Out)
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	_, err := InitLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestInitLoggerJSON(t *testing.T) {
	logger, err := InitLogger(config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestInitLoggerFallbackOnPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.Mkdir(blocked, 0755))
	require.NoError(t, os.Chmod(blocked, 0000))
	t.Cleanup(func() { _ = os.Chmod(blocked, 0755) })

	logger, err := InitLogger(config.LogConfig{
		Level: "info",
		File:  filepath.Join(blocked, "sub", "bandcache.log"),
	})
	require.NoError(t, err, "an unusable log file must not fail initialisation")
	assert.Equal(t, os.Stderr, logger.Out)
}

func TestInitLoggerCreatesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bandcache.log")
	logger, err := InitLogger(config.LogConfig{Level: "debug", File: path, MaxSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { logrus.SetOutput(os.Stderr) })

	logger.Info("test")
	_, err = os.Stat(path)
	assert.NoError(t, err, "expected log file to be created")
}
