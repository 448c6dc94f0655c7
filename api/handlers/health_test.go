package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/api"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/testutil/fixtures"
	"github.com/BaSui01/fedflow/testutil/mocks"
)

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) NodeHealth {
	t.Helper()
	var out NodeHealth
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func ready(h *HealthHandler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	return w
}

// failedCore returns a coordinator whose ingest step has failed.
func failedCore(t *testing.T) *session.Core {
	t.Helper()
	core := session.New(mocks.NewMockStrategy().WithError(mocks.StepIngest, errors.New("no dataset")))
	require.NoError(t, core.OnSetup(fixtures.Coordinator("solo")))
	for i := 0; i < 3 && core.Err() == nil; i++ {
		_, _ = core.Tick(context.Background())
	}
	require.Error(t, core.Err())
	return core
}

func TestHealthHandler_LiveReportsPhase(t *testing.T) {
	core := session.New(mocks.NewMockStrategy())
	h := NewHealthHandler(core, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleLive(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	out := decodeHealth(t, w)
	assert.Equal(t, "alive", out.Status)
	assert.Equal(t, "initializing", out.Phase)
	assert.Empty(t, out.Participant)
	assert.Empty(t, out.Role)
	assert.False(t, out.Timestamp.IsZero())
}

func TestHealthHandler_LiveAfterFailure(t *testing.T) {
	h := NewHealthHandler(failedCore(t), nil)

	w := httptest.NewRecorder()
	h.HandleLive(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "a failed session is still a live process")
	assert.Equal(t, "failed", decodeHealth(t, w).Phase)
}

func TestHealthHandler_ReadyBeforeSetup(t *testing.T) {
	h := NewHealthHandler(session.New(mocks.NewMockStrategy()), nil)
	h.RegisterDependency("artifact_store", func(context.Context) error { return nil })
	h.RegisterDependency("history", func(context.Context) error { return nil })

	w := ready(h)
	assert.Equal(t, http.StatusOK, w.Code)
	out := decodeHealth(t, w)
	assert.Equal(t, NodeReady, out.Status)
	assert.Len(t, out.Checks, 2)
	assert.Equal(t, "pass", out.Checks["artifact_store"].Status)
	assert.NotEmpty(t, out.Checks["history"].Latency)
}

func TestHealthHandler_ReadyFollowsPhase(t *testing.T) {
	core := session.New(mocks.NewMockStrategy())
	require.NoError(t, core.OnSetup(fixtures.Coordinator("solo")))
	h := NewHealthHandler(core, nil)

	out := decodeHealth(t, ready(h))
	assert.Equal(t, NodeReady, out.Status)
	assert.Equal(t, "solo", out.Participant)
	assert.Equal(t, "coordinator", out.Role)

	for i := 0; i < 10 && !core.Status().Finished; i++ {
		_, err := core.Tick(context.Background())
		require.NoError(t, err)
	}
	w := ready(h)
	assert.Equal(t, http.StatusOK, w.Code)
	out = decodeHealth(t, w)
	assert.Equal(t, NodeFinished, out.Status)
	assert.Equal(t, "terminal", out.Phase)
}

func TestHealthHandler_FailedSessionIsNotReady(t *testing.T) {
	h := NewHealthHandler(failedCore(t), zap.NewNop())
	pinged := false
	h.RegisterDependency("artifact_store", func(context.Context) error {
		pinged = true
		return nil
	})

	w := ready(h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	out := decodeHealth(t, w)
	assert.Equal(t, NodeFailed, out.Status)
	assert.Contains(t, out.Error, "no dataset")
	assert.False(t, pinged, "dependencies are not checked once the session failed")
}

func TestHealthHandler_DependencyFailure(t *testing.T) {
	h := NewHealthHandler(session.New(mocks.NewMockStrategy()), zap.NewNop())
	h.RegisterDependency("artifact_store", func(context.Context) error {
		return errors.New("redis: connection refused")
	})

	w := ready(h)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	out := decodeHealth(t, w)
	assert.Equal(t, NodeUnready, out.Status)
	assert.Equal(t, "fail", out.Checks["artifact_store"].Status)
	assert.Contains(t, out.Checks["artifact_store"].Message, "connection refused")
}

func TestHealthHandler_NilSource(t *testing.T) {
	out := decodeHealth(t, ready(NewHealthHandler(nil, nil)))
	assert.Equal(t, NodeReady, out.Status)
	assert.Empty(t, out.Phase)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleVersion(BuildInfo{Version: "1.2.3", BuildTime: "2026-01-01", GitCommit: "abc123"})(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp api.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.2.3", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
}
