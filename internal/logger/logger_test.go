package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel covers accepted and rejected level strings.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	lvl, ok := ParseLogLevel("  DEBUG ")
	require.True(t, ok)
	require.Equal(t, zapcore.DebugLevel, lvl)

	lvl, ok = ParseLogLevel("error")
	require.True(t, ok)
	require.Equal(t, zapcore.ErrorLevel, lvl)

	_, ok = ParseLogLevel("chatty")
	require.False(t, ok)
}

// TestFromContext verifies the context fallback and attachment behavior.
func TestFromContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	require.Equal(t, Logger(), FromContext(ctx))

	core, logs := observer.New(zapcore.InfoLevel)
	scoped := zap.New(core).Sugar()

	ctx = ToContext(ctx, scoped)
	require.Equal(t, scoped, FromContext(ctx))

	InfoKV(ctx, "hello", "key", "value")
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "hello", logs.All()[0].Message)
}

// TestWithName ensures names accumulate on the context logger.
func TestWithName(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())

	ctx = WithName(ctx, "outer")
	ctx = WithName(ctx, "inner")

	Info(ctx, "scoped")
	require.Equal(t, "outer.inner", logs.All()[0].LoggerName)
}
