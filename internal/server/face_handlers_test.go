package server

import (
	"context"
	"net/http"
	"testing"

	"facefeed/internal/biometric"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type faceJSON struct {
	Enrolled bool   `json:"enrolled"`
	Enabled  bool   `json:"enabled"`
	Verified bool   `json:"verified"`
	FaceID   string `json:"faceId"`
	Step     string `json:"step"`
}

func TestFaceVerification_Flow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, raw := env.do(t, http.MethodGet, "/api/face-verification", "user_alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "needs_enrollment", decode[faceJSON](t, raw).Step)

	resp, raw = env.do(t, http.MethodPost, "/api/face-verification", "user_alice", map[string]any{"action": "enroll", "faceId": "face-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	st := decode[faceJSON](t, raw)
	assert.True(t, st.Enrolled)
	assert.True(t, st.Enabled)
	assert.False(t, st.Verified)
	assert.Equal(t, "needs_verification", st.Step)

	du, err := env.directory.GetUser(ctx, "user_alice")
	require.NoError(t, err)
	assert.Equal(t, "face-1", du.PrivateMetadata[biometric.KeyFaceID])

	local, err := env.srv.deps.Users.FindByID(ctx, "user_alice")
	require.NoError(t, err)
	assert.True(t, local.Verification().BiometricEnrolled)

	resp, _ = env.do(t, http.MethodPost, "/api/face-verification", "user_alice", map[string]any{"action": "verify", "faceId": "face-2"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw = env.do(t, http.MethodPost, "/api/face-verification", "user_alice", map[string]any{"action": "verify", "faceId": "face-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "complete", decode[faceJSON](t, raw).Step)

	resp, raw = env.do(t, http.MethodGet, "/api/face-verification", "user_alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	st = decode[faceJSON](t, raw)
	assert.True(t, st.Verified)
	assert.Equal(t, "face-1", st.FaceID)

	resp, raw = env.do(t, http.MethodPost, "/api/face-verification", "user_alice", map[string]any{"action": "delete"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	st = decode[faceJSON](t, raw)
	assert.False(t, st.Enrolled)
	assert.Equal(t, "needs_enrollment", st.Step)
	assert.Equal(t, []string{"face-1"}, env.bio.Deleted())

	local, err = env.srv.deps.Users.FindByID(ctx, "user_alice")
	require.NoError(t, err)
	assert.False(t, local.Verification().BiometricEnrolled)
}

func TestFaceVerification_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{name: "Unknown action", body: map[string]any{"action": "smile"}, want: http.StatusBadRequest},
		{name: "Enroll without face", body: map[string]any{"action": "enroll"}, want: http.StatusBadRequest},
		{name: "Verify before enroll", body: map[string]any{"action": "verify", "faceId": "face-1"}, want: http.StatusBadRequest},
		{name: "Disable without enrollment", body: map[string]any{"action": "disable"}, want: http.StatusOK},
		{name: "Delete without face", body: map[string]any{"action": "delete"}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := env.do(t, http.MethodPost, "/api/face-verification", "user_bob", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(raw))
		})
	}
	assert.Empty(t, env.bio.Deleted())
}

func TestFaceVerification_ProviderPending(t *testing.T) {
	env := newTestEnv(t, func(o *Options) {
		o.Biometric = biometric.NewLoader(&biometric.FakeClient{})
	})

	resp, raw := env.do(t, http.MethodGet, "/api/face-verification", "user_alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Equal(t, "checking", decode[faceJSON](t, raw).Step)

	resp, _ = env.do(t, http.MethodPost, "/api/face-verification", "user_alice", map[string]any{"action": "enroll", "faceId": "face-1"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestFaceVerification_ProviderFailed(t *testing.T) {
	failed := biometric.NewLoader(nil)
	require.False(t, failed.Initialize(context.Background()).Ready())
	env := newTestEnv(t, func(o *Options) { o.Biometric = failed })

	resp, _ := env.do(t, http.MethodGet, "/api/face-verification", "user_alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, raw := env.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", decode[struct {
		Checks map[string]string `json:"checks"`
	}](t, raw).Checks["biometric"])
}

func TestFaceVerification_NotConfigured(t *testing.T) {
	env := newTestEnv(t, func(o *Options) { o.Biometric = nil })

	resp, _ := env.do(t, http.MethodGet, "/api/face-verification", "user_alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
