package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	require.Equal(t, path, resolved)
	require.Equal(t, Default().Addr, cfg.Addr)
	require.Equal(t, 5, cfg.StoreConnectRetries)
	require.Equal(t, 25*time.Second, cfg.PingInterval)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("addr: \":7000\"\nping_interval: 10s\ndatabase_path: relay.db\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("RELAY_DATABASE_PATH", "from-env.db")
	t.Setenv("RELAY_REDIS_URL", "redis://localhost:6379/0")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Addr)
	require.Equal(t, 10*time.Second, cfg.PingInterval)
	require.Equal(t, "from-env.db", cfg.DatabasePath)
	require.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	require.Equal(t, Default().PingTimeout, cfg.PingTimeout)
}

func TestResolveConfigPathFromEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf")
	t.Setenv(envConfigDefaultPath, dir)

	require.Equal(t, filepath.Join(dir, defaultConfigName), resolveConfigPath(""))
	require.Equal(t, "explicit.yaml", resolveConfigPath("explicit.yaml"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.JWTSecret = ""
	cfg.MaxMessageBytes = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "jwt_secret")
	require.Contains(t, err.Error(), "max_message_bytes")
}

func TestUpdateFromKeepsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":9000", LogLevel: "debug"})

	require.Equal(t, ":9000", cfg.Addr)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, Default().DatabasePath, cfg.DatabasePath)
}
