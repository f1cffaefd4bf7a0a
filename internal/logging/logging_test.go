package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() {
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	})

	t.Run("json debug", func(t *testing.T) {
		require.NoError(t, Setup("debug", "json"))
		assert.Equal(t, log.DebugLevel, log.GetLevel())
		assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
	})

	t.Run("text warn", func(t *testing.T) {
		require.NoError(t, Setup("warn", "text"))
		assert.Equal(t, log.WarnLevel, log.GetLevel())
		assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		assert.Error(t, Setup("loud", "text"))
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		assert.Error(t, Setup("info", "xml"))
	})
}
