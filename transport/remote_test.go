package transport_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/fedflow/api/handlers"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/testutil"
	"github.com/BaSui01/fedflow/testutil/fixtures"
	"github.com/BaSui01/fedflow/testutil/mocks"
	"github.com/BaSui01/fedflow/transport"
	"github.com/BaSui01/fedflow/types"
	"github.com/BaSui01/fedflow/wire"
)

func serveCore(t *testing.T, core *session.Core) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	handlers.NewSessionHandler(core, "json", zap.NewNop()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func remote(srv *httptest.Server, id string) *transport.RemoteNode {
	return transport.NewRemoteNode(id, srv.URL+"/", transport.WithHTTPClient(srv.Client()))
}

func TestRemoteNode_SetupAndStatus(t *testing.T) {
	ctx := testutil.TestContext(t)
	core := session.New(mocks.NewMockStrategy())
	srv := serveCore(t, core)
	node := remote(srv, "c1")

	assert.Equal(t, srv.URL, node.BaseURL())

	st, err := node.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Available)
	assert.Equal(t, "initializing", st.State)

	require.NoError(t, node.Setup(ctx, fixtures.Client("c1", "coord")))
	id, ok := core.Identity()
	require.True(t, ok)
	assert.Equal(t, "c1", id.ID)

	err = node.Setup(ctx, fixtures.Client("c1", "coord"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrAlreadyInitialized))
	assert.Equal(t, http.StatusConflict, types.StatusOf(err))
}

func TestRemoteNode_PushAndPull(t *testing.T) {
	ctx := testutil.TestContext(t)
	core := session.New(mocks.NewMockStrategy())
	require.NoError(t, core.OnSetup(fixtures.Client("c1", "coord")))
	node := remote(serveCore(t, core), "c1")

	_, ok, err := node.Pull(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, core.SendToCoordinator(map[string]int{"n": 3}))
	payload, ok, err := node.Pull(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	env, err := wire.Decode(wire.JSONCodec{}, payload)
	require.NoError(t, err)
	assert.Equal(t, wire.KindFragment, env.Kind)

	require.NoError(t, node.Push(ctx, fixtures.BroadcastPayload("coord", "model")))
	assert.Equal(t, 1, core.Status().Inbox)
}

func TestRemoteNode_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	node := transport.NewRemoteNode("gone", url, transport.WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, err := node.Status(testutil.TestContext(t))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
	assert.True(t, types.IsRetryable(err))
}

func TestRemoteNode_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	err := remote(srv, "x").Push(testutil.TestContext(t), []byte("{}"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, http.StatusBadGateway, types.StatusOf(err))
}

func TestRelay_RunOverHTTP(t *testing.T) {
	ctx := testutil.TestContextWithTimeout(t, 10*time.Second)
	ids := []string{"coord", "c1", "c2"}

	var (
		nodes []transport.Node
		cores []*session.Core
	)
	for _, id := range ids {
		core := session.New(mocks.NewMockStrategy())
		cores = append(cores, core)
		nodes = append(nodes, remote(serveCore(t, core), id))
	}
	r, err := transport.NewRelay(nodes, "coord", transport.WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, r.Setup(ctx))

	g, gctx := errgroup.WithContext(ctx)
	for _, core := range cores {
		g.Go(func() error {
			_, err := session.NewDriver(core, session.WithScheduler(session.NewTickerScheduler(2*time.Millisecond))).Run(gctx)
			return err
		})
	}
	g.Go(func() error { return r.Run(gctx) })
	require.NoError(t, g.Wait())

	for _, s := range r.Statuses(ctx) {
		require.NoError(t, s.Err)
		assert.True(t, s.Status.Finished, s.ID)
		assert.Equal(t, "terminal", s.Status.State, s.ID)
	}
}
