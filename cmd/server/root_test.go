package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/config"
)

func TestRootCommandAppliesFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var got *config.Config
	cmd := newRootCmd(func(_ context.Context, cfg *config.Config, _ *zerolog.Logger) error {
		got = cfg
		return nil
	})
	cmd.SetArgs([]string{
		"--config", path,
		"--addr", ":9191",
		"--log-level", "warn",
		"--db", filepath.Join(t.TempDir(), "x.db"),
		"--shutdown-timeout", "3s",
	})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.NotNil(t, got)
	require.Equal(t, ":9191", got.Addr)
	require.Equal(t, "warn", got.LogLevel)
	require.Equal(t, 3*time.Second, got.ShutdownTimeout)
	require.Equal(t, config.Default().PingInterval, got.PingInterval)
}

func TestRootCommandDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var got *config.Config
	cmd := newRootCmd(func(_ context.Context, cfg *config.Config, _ *zerolog.Logger) error {
		got = cfg
		return nil
	})
	cmd.SetArgs([]string{"--config", path})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Equal(t, config.Default().Addr, got.Addr)
}
