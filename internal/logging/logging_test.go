// internal/logging/logging_test.go
package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"local", "production"} {
		logger, err := New(env, "debug")
		require.NoError(t, err, env)
		assert.True(t, logger.Core().Enabled(zap.DebugLevel), env)
	}

	logger, err := New("production", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = New("local", "loud")
	assert.Error(t, err)
}
