package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Parallel()

	dev, err := New(true, "")
	require.NoError(t, err)
	require.NotNil(t, dev)
	require.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	prod, err := New(false, "")
	require.NoError(t, err)
	require.NotNil(t, prod)
	require.False(t, prod.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_LevelOverride(t *testing.T) {
	t.Parallel()

	quiet, err := New(true, "warn")
	require.NoError(t, err)
	require.False(t, quiet.Core().Enabled(zapcore.InfoLevel))
	require.True(t, quiet.Core().Enabled(zapcore.WarnLevel))

	verbose, err := New(false, "debug")
	require.NoError(t, err)
	require.True(t, verbose.Core().Enabled(zapcore.DebugLevel))

	_, err = New(false, "chatty")
	require.Error(t, err)
}
