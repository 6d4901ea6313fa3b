package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"facefeed/internal/biometric"
	"facefeed/internal/config"
	"facefeed/internal/identity"
	"facefeed/internal/media"
	"facefeed/internal/notifications"
	"facefeed/internal/repository"
	"facefeed/internal/service"
	"facefeed/internal/storage"
	"facefeed/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSessionSecret = "test-session-secret"

type testEnv struct {
	srv       *Server
	app       *fiber.App
	db        *gorm.DB
	directory *identity.MemoryDirectory
	bio       *biometric.FakeClient
	loader    *biometric.Loader
	hub       *notifications.Hub
}

// newTestEnv wires a server over in-memory SQLite, an in-memory identity
// directory with alice and bob, a ready biometric loader and local media
// storage. mutate adjusts the options before the server is built.
func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	tm, db := testutil.NewTxManager(t)

	users := repository.NewUserRepository(tm, nil)
	perms := repository.NewPermissionRepository(tm)
	deps := service.Deps{
		Tx:          tm,
		Posts:       repository.NewPostRepository(tm, nil),
		Comments:    repository.NewCommentRepository(tm),
		Likes:       repository.NewLikeRepository(tm),
		Users:       users,
		Engagement:  repository.NewEngagementRepository(tm),
		Settings:    repository.NewSettingsRepository(tm),
		Permissions: perms,
		Activity:    service.NewActivityLog(repository.NewActivityRepository(tm)),
		Authz:       service.NewAuthorizer(users, perms),
	}

	verifier, err := identity.NewSessionVerifier(identity.VerifierConfig{Secret: testSessionSecret})
	require.NoError(t, err)

	directory := identity.NewMemoryDirectory(
		&identity.DirectoryUser{ID: "user_alice", Email: "Alice@Example.com", EmailVerified: true, Username: "alice", FirstName: "Alice", LastName: "Liddell"},
		&identity.DirectoryUser{ID: "user_bob", Email: "bob@example.com", Username: "bob", FirstName: "Bob"},
	)

	bio := &biometric.FakeClient{}
	loader := biometric.NewLoader(bio)
	require.True(t, loader.Initialize(context.Background()).Ready())

	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost:8375/uploads")
	require.NoError(t, err)

	hub := notifications.NewHub(nil)
	opts := Options{
		Config: &config.Config{
			Env:          "test",
			Port:         "8375",
			FeatureFlags: "face_verification=on",
			MediaMaxMB:   5,
		},
		DB:              db,
		Deps:            deps,
		Sessions:        repository.NewSessionRepository(tm),
		Verifier:        verifier,
		Directory:       directory,
		Biometric:       loader,
		BiometricClient: bio,
		Media:           media.NewService(store, 5),
		Hub:             hub,
	}
	for _, m := range mutate {
		m(&opts)
	}

	srv := New(opts)
	app := NewApp(srv.config)
	srv.SetupMiddleware(app)
	srv.SetupRoutes(app)
	t.Cleanup(func() { _ = hub.Shutdown(context.Background()) })

	return &testEnv{
		srv:       srv,
		app:       app,
		db:        db,
		directory: directory,
		bio:       bio,
		loader:    loader,
		hub:       opts.Hub,
	}
}

func withRedis(t *testing.T) (func(*Options), *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return func(o *Options) { o.Redis = rdb }, mr
}

// sessionToken signs a session for userID with the test secret.
func sessionToken(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"sid": "sess_" + userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSessionSecret))
	require.NoError(t, err)
	return signed
}

// do sends a request as userID (anonymous when empty) and returns the
// response with its body read.
func (e *testEnv) do(t *testing.T, method, path, userID string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if userID != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+sessionToken(t, userID))
	}
	return e.send(t, req)
}

// jsonRequest builds a request with a raw JSON body.
func jsonRequest(t *testing.T, method, path, userID, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+sessionToken(t, userID))
	}
	return req
}

func (e *testEnv) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func TestLivenessCheck(t *testing.T) {
	env := newTestEnv(t)
	resp, raw := env.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up", decode[map[string]any](t, raw)["status"])
}

func TestReadinessCheck(t *testing.T) {
	t.Run("redis disabled", func(t *testing.T) {
		env := newTestEnv(t)
		resp, raw := env.do(t, http.MethodGet, "/health/ready", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

		body := decode[struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}](t, raw)
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "healthy", body.Checks["database"])
		assert.Equal(t, "disabled", body.Checks["redis"])
		assert.Equal(t, "ready", body.Checks["biometric"])
	})

	t.Run("redis down", func(t *testing.T) {
		opt, mr := withRedis(t)
		env := newTestEnv(t, opt)
		mr.Close()

		resp, raw := env.do(t, http.MethodGet, "/api/", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "unhealthy", decode[map[string]any](t, raw)["status"])
	})
}

func TestSetupMiddleware_CORS(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Config.AllowedOrigins = "http://localhost:5173" })

	req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, _ := env.send(t, req)

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestNewApp_ErrorHandler(t *testing.T) {
	app := NewApp(&config.Config{MediaMaxMB: 1})
	app.Get("/teapot", func(*fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })
	app.Get("/boom", func(*fiber.Ctx) error { return io.ErrUnexpectedEOF })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "INTERNAL_ERROR", decode[map[string]any](t, raw)["code"])
}
