package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func statusHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	})
}

func get(t *testing.T, addr, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + addr + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

// --- Options ---

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, SurfaceNodeAPI, o.Surface)
	assert.Equal(t, 30*time.Second, o.ReadTimeout)
	assert.Equal(t, 30*time.Second, o.WriteTimeout)
	assert.Equal(t, 2*time.Minute, o.IdleTimeout)
	assert.Equal(t, 1<<20, o.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, o.DrainTimeout)

	kept := Options{Surface: SurfaceMetrics, ReadTimeout: time.Second}.withDefaults()
	assert.Equal(t, SurfaceMetrics, kept.Surface)
	assert.Equal(t, time.Second, kept.ReadTimeout)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "serving", StateServing.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}

// --- Endpoint lifecycle ---

func TestEndpoint_OpenServeDrain(t *testing.T) {
	e := NewEndpoint(statusHandler("local_ingest"), Options{Addr: "127.0.0.1:0"}, zap.NewNop())
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, "127.0.0.1:0", e.Addr(), "configured address before open")

	require.NoError(t, e.Open())
	t.Cleanup(func() { _ = e.Drain(context.Background()) })
	assert.Equal(t, StateServing, e.State())
	assert.NotEqual(t, "127.0.0.1:0", e.Addr())

	code, body := get(t, e.Addr(), "/api/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "local_ingest", body)

	require.NoError(t, e.Drain(context.Background()))
	assert.Equal(t, StateStopped, e.State())
	require.NoError(t, e.Drain(context.Background()), "drain is idempotent")
}

func TestEndpoint_OpenTwice(t *testing.T) {
	e := NewEndpoint(http.NewServeMux(), Options{Surface: SurfaceMetrics, Addr: "127.0.0.1:0"}, nil)
	require.NoError(t, e.Open())
	t.Cleanup(func() { _ = e.Drain(context.Background()) })

	err := e.Open()
	require.ErrorIs(t, err, ErrNotIdle)
	assert.Contains(t, err.Error(), "metrics")
	assert.Contains(t, err.Error(), "serving")
}

func TestEndpoint_NoReopenAfterDrain(t *testing.T) {
	e := NewEndpoint(http.NewServeMux(), Options{Addr: "127.0.0.1:0"}, nil)
	require.NoError(t, e.Drain(context.Background()))
	assert.Equal(t, StateStopped, e.State())
	assert.ErrorIs(t, e.Open(), ErrNotIdle)
}

func TestEndpoint_ListenFailureStaysIdle(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	e := NewEndpoint(http.NewServeMux(), Options{Addr: busy.Addr().String()}, nil)
	err = e.Open()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node_api: listen on")
	assert.Equal(t, StateIdle, e.State())
}

func TestEndpoint_RunUntilCancelled(t *testing.T) {
	e := NewEndpoint(statusHandler("ok"), Options{Surface: SurfaceRelayMetrics, Addr: "127.0.0.1:0"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return e.State() == StateServing }, 2*time.Second, 10*time.Millisecond)
	code, _ := get(t, e.Addr(), "/metrics")
	assert.Equal(t, http.StatusOK, code)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, e.State())
}

func TestEndpoint_MissingCertificateFails(t *testing.T) {
	dir := t.TempDir()
	e := NewEndpoint(http.NewServeMux(), Options{
		Addr:     "127.0.0.1:0",
		CertFile: filepath.Join(dir, "node.crt"),
		KeyFile:  filepath.Join(dir, "node.key"),
	}, nil)

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateStopped, e.State())
}

// --- Group ---

func TestGroup_OpenAndDrain(t *testing.T) {
	api := NewEndpoint(statusHandler("api"), Options{Surface: SurfaceNodeAPI, Addr: "127.0.0.1:0"}, nil)
	mtr := NewEndpoint(statusHandler("metrics"), Options{Surface: SurfaceMetrics, Addr: "127.0.0.1:0"}, nil)
	g := NewGroup(zap.NewNop(), api, nil, mtr)

	require.NoError(t, g.Open())
	found, ok := g.Endpoint(SurfaceMetrics)
	require.True(t, ok)
	assert.Same(t, mtr, found)
	_, ok = g.Endpoint(SurfaceRelayMetrics)
	assert.False(t, ok)

	_, body := get(t, api.Addr(), "/")
	assert.Equal(t, "api", body)
	_, body = get(t, mtr.Addr(), "/")
	assert.Equal(t, "metrics", body)

	require.NoError(t, g.Drain(context.Background()))
	assert.Equal(t, StateStopped, api.State())
	assert.Equal(t, StateStopped, mtr.State())
}

func TestGroup_OpenFailureDrainsOpened(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	api := NewEndpoint(http.NewServeMux(), Options{Addr: "127.0.0.1:0"}, nil)
	mtr := NewEndpoint(http.NewServeMux(), Options{Surface: SurfaceMetrics, Addr: busy.Addr().String()}, nil)
	g := NewGroup(nil, api, mtr)

	err = g.Open()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics")
	assert.Equal(t, StateStopped, api.State())
	assert.Equal(t, StateIdle, mtr.State())
}

func TestGroup_FailedForwardsServeErrors(t *testing.T) {
	dir := t.TempDir()
	api := NewEndpoint(http.NewServeMux(), Options{Addr: "127.0.0.1:0"}, nil)
	tlsEndpoint := NewEndpoint(http.NewServeMux(), Options{
		Surface:  SurfaceMetrics,
		Addr:     "127.0.0.1:0",
		CertFile: filepath.Join(dir, "missing.crt"),
		KeyFile:  filepath.Join(dir, "missing.key"),
	}, nil)
	g := NewGroup(nil, api, tlsEndpoint)
	require.NoError(t, g.Open())
	t.Cleanup(func() { _ = g.Drain(context.Background()) })

	select {
	case err := <-g.Failed():
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a serve error")
	}
}
