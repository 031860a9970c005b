package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

func TestConnectStoreRetries(t *testing.T) {
	logger := zerolog.Nop()
	calls := 0
	st, err := connectStore(context.Background(), 5, time.Millisecond, func() (*sqlite.SQLiteStore, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("not yet")
		}
		return sqlite.New(":memory:")
	}, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.Equal(t, 3, calls)
}

func TestConnectStoreGivesUp(t *testing.T) {
	logger := zerolog.Nop()
	calls := 0
	boom := errors.New("unreachable")
	_, err := connectStore(context.Background(), 5, time.Millisecond, func() (*sqlite.SQLiteStore, error) {
		calls++
		return nil, boom
	}, &logger)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 5, calls)
}

func TestConnectStoreStopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := connectStore(ctx, 5, time.Hour, func() (*sqlite.SQLiteStore, error) {
		calls++
		return nil, errors.New("down")
	}, &logger)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "relay.db")
	cfg.PasswordCost = 4
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestAppServesHealth(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)

	a, err := New(context.Background(), &cfg, &logger)
	require.NoError(t, err)
	t.Cleanup(a.cleanup)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, 200, rec.Code)
}

func TestAppRunStopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)

	a, err := New(context.Background(), &cfg, &logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	logger := zerolog.Nop()
	cfg := testConfig(t)
	cfg.JWTSecret = ""

	_, err := New(context.Background(), &cfg, &logger)
	require.Error(t, err)
}
