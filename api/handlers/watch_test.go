package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/fedflow/api"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/testutil/fixtures"
	"github.com/BaSui01/fedflow/testutil/mocks"
)

func TestWatchHandler_StreamsUntilFinished(t *testing.T) {
	core := session.New(mocks.NewMockStrategy())
	mux := http.NewServeMux()
	NewWatchHandler(core, 5*time.Millisecond, zap.NewNop()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/watch", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var first api.StatusResponse
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, "initializing", first.State)

	require.NoError(t, core.OnSetup(fixtures.Coordinator("solo")))
	go func() {
		for !core.Status().Finished {
			if _, err := core.Tick(ctx); err != nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	var (
		last  api.StatusResponse
		seen  []string
		count int
	)
	for {
		var st api.StatusResponse
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		count++
		seen = append(seen, st.State)
		last = st
	}

	assert.Positive(t, count)
	assert.True(t, last.Finished)
	assert.Equal(t, "terminal", last.State)
	assert.Equal(t, "coordinator", last.Role)
	assert.Equal(t, 1.0, last.Progress)
	assert.Contains(t, seen, "terminal")
}

func TestWatchHandler_DefaultInterval(t *testing.T) {
	h := NewWatchHandler(session.New(mocks.NewMockStrategy()), 0, nil)
	assert.Equal(t, 250*time.Millisecond, h.interval)
}
