package http

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/core/coretest"
	"github.com/vovakirdan/wirechat-relay/internal/presence"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/service/friends"
	"github.com/vovakirdan/wirechat-relay/internal/service/groups"
	"github.com/vovakirdan/wirechat-relay/internal/service/inbox"
	"github.com/vovakirdan/wirechat-relay/internal/service/messages"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

const testPassword = "secret"

type testEnv struct {
	store      *sqlite.SQLiteStore
	svc        Services
	cfg        config.Config
	dispatcher *Dispatcher
}

// newTestEnv wires the full service graph over an in-memory database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	reg := presence.NewRegistry(nil, &logger)
	locks := core.NewKeyLock()
	box := inbox.NewService(st, reg, &logger)
	authSvc := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}, bcrypt.MinCost)
	msgs := messages.New(st, reg, locks, &logger)

	svc := Services{
		Auth:     authSvc,
		Presence: reg,
		Inbox:    box,
		Friends:  friends.New(st, reg, box, locks, &logger),
		Groups:   groups.New(st, reg, box, msgs, authSvc, locks, &logger),
		Messages: msgs,
	}

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.PingInterval = time.Hour
	cfg.RateLimitPerMinute = 0

	return &testEnv{
		store:      st,
		svc:        svc,
		cfg:        cfg,
		dispatcher: NewDispatcher(svc, cfg.HistoryPageSize, &logger),
	}
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()

	u, err := e.svc.Auth.Register(context.Background(), username, testPassword, "")
	require.NoError(t, err)
	return u.UID
}

func newTestSession() *session {
	return newSession(core.NewClient(uuid.NewString(), 64), newRateLimiter(0, time.Minute))
}

func (e *testEnv) dispatch(t *testing.T, s *session, typ string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	e.dispatcher.Dispatch(context.Background(), s, proto.Inbound{Type: typ, Data: raw})
}

// login registers username if needed and returns a logged-in session.
func (e *testEnv) login(t *testing.T, username string) *session {
	t.Helper()

	s := newTestSession()
	e.dispatch(t, s, proto.TypeLogin, proto.LoginData{Username: username, Password: testPassword})
	resp := coretest.MustEvent(t, s.client, proto.ResponseName(proto.TypeLogin)).Payload.(proto.LoginResponse)
	require.True(t, resp.Success)
	return s
}

// reply waits for the response to typ and returns its payload.
func reply[T any](t *testing.T, s *session, typ string) T {
	t.Helper()

	ev := coretest.MustEvent(t, s.client, proto.ResponseName(typ))
	payload, ok := ev.Payload.(T)
	require.Truef(t, ok, "unexpected payload %T for %s: %+v", ev.Payload, ev.Name, ev.Payload)
	return payload
}
