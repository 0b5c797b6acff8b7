package logconfig

import (
	"testing"

	myLogger "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLogger(t *testing.T) {
	t.Cleanup(ConfigDebugLogger)

	require.NoError(t, ConfigLogger("debug"))
	assert.Equal(t, myLogger.DebugLevel, myLogger.GetLevel())
	assert.IsType(t, &myLogger.TextFormatter{}, myLogger.StandardLogger().Formatter)

	require.NoError(t, ConfigLogger(""))
	assert.Equal(t, myLogger.InfoLevel, myLogger.GetLevel())
	assert.IsType(t, &myLogger.JSONFormatter{}, myLogger.StandardLogger().Formatter)

	require.NoError(t, ConfigLogger("WARN"))
	assert.Equal(t, myLogger.WarnLevel, myLogger.GetLevel())
	assert.IsType(t, &myLogger.JSONFormatter{}, myLogger.StandardLogger().Formatter)

	assert.Error(t, ConfigLogger("loud"))
}
