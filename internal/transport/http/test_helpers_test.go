package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/teaminfosharing/tis-server/internal/auth"
	"github.com/teaminfosharing/tis-server/internal/config"
	"github.com/teaminfosharing/tis-server/internal/core"
	"github.com/teaminfosharing/tis-server/internal/files"
	"github.com/teaminfosharing/tis-server/internal/store"
	"github.com/teaminfosharing/tis-server/internal/store/sqlite"
)

type testEnv struct {
	store   store.Store
	auth    *auth.Service
	hub     *core.Hub
	storage *files.Storage
	handler stdhttp.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.FilesDir = t.TempDir()

	storage, err := files.NewStorage(cfg.FilesDir, cfg.PublicBaseURL)
	if err != nil {
		t.Fatalf("files storage: %v", err)
	}

	logger := zerolog.New(nil)
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	hub := core.NewHub(st, storage, &logger, core.Options{QueueSize: cfg.ClientQueueSize})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := NewServer(hub, authService, st, storage, &cfg, &logger)
	return &testEnv{store: st, auth: authService, hub: hub, storage: storage, handler: srv.Handler}
}

func (e *testEnv) createUser(t *testing.T, username, password string, role store.Role) *store.User {
	t.Helper()

	u, err := e.auth.CreateUser(context.Background(), username, password, username, role, nil)
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()

	token, _, err := e.auth.Login(context.Background(), username, password)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, req *stdhttp.Request) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
