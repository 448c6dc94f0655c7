package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/fedflow/artifact"
	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/testutil"
	"github.com/BaSui01/fedflow/testutil/fixtures"
	"github.com/BaSui01/fedflow/testutil/mocks"
	"github.com/BaSui01/fedflow/types"
	"github.com/BaSui01/fedflow/wire"
)

func newCore(t *testing.T, identity session.ParticipantIdentity, opts ...session.Option) (*session.Core, *mocks.MockStrategy) {
	t.Helper()
	strategy := mocks.NewMockStrategy()
	core := session.New(strategy, opts...)
	require.NoError(t, core.OnSetup(identity))
	return core, strategy
}

// tickTo ticks until the core reaches phase or maxTicks is exhausted.
func tickTo(t *testing.T, core *session.Core, phase session.Phase) {
	t.Helper()
	st := testutil.TickUntil(t, core, 10, func(s session.Status) bool { return s.Phase == phase })
	require.Equal(t, phase, st.Phase, "status: %+v", st)
}

func TestOnSetup_SecondCallFails(t *testing.T) {
	core, _ := newCore(t, fixtures.Client("site-a", "coord"))

	err := core.OnSetup(fixtures.Coordinator("other"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrAlreadyInitialized))

	id, ok := core.Identity()
	require.True(t, ok)
	assert.Equal(t, "site-a", id.ID)
	assert.False(t, id.Coordinator)
}

func TestOnSetup_RequiresID(t *testing.T) {
	core := session.New(mocks.NewMockStrategy())
	err := core.OnSetup(session.ParticipantIdentity{Coordinator: true})
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))

	_, ok := core.Identity()
	assert.False(t, ok)
}

func TestTick_WaitsForSetup(t *testing.T) {
	core := session.New(mocks.NewMockStrategy())

	for i := 0; i < 3; i++ {
		report, err := core.Tick(context.Background())
		require.NoError(t, err)
		assert.Equal(t, session.RequestWait, report.Request)
		assert.Equal(t, session.PhaseInitializing, report.To)
	}

	require.NoError(t, core.OnSetup(fixtures.Client("site-a", "coord")))
	report, err := core.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.PhaseLocalIngest, report.To)
}

func TestClient_RunsToTerminalAndSendsDone(t *testing.T) {
	core, strategy := newCore(t, fixtures.Client("site-a", "coord"))
	ctx := testutil.TestContext(t)

	want := []session.Phase{session.PhaseLocalIngest, session.PhaseEmit, session.PhaseTerminal}
	for _, phase := range want {
		report, err := core.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, phase, report.To)
	}
	assert.Equal(t, []mocks.Step{mocks.StepConfigure, mocks.StepIngest, mocks.StepEmit}, strategy.Calls())

	st := core.Status()
	assert.True(t, st.Finished)
	assert.True(t, st.Available)
	assert.Equal(t, 1.0, st.Progress)

	payload, ok := core.PullOutbound()
	require.True(t, ok)
	env, err := wire.Decode(wire.JSONCodec{}, payload)
	require.NoError(t, err)
	assert.True(t, env.IsDone())
	assert.Equal(t, "site-a", env.From)

	_, ok = core.PullOutbound()
	assert.False(t, ok, "a pulled payload must not be offered twice")

	// Re-ticking a finished client changes nothing.
	for i := 0; i < 3; i++ {
		report, err := core.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, session.RequestNone, report.Request)
		assert.True(t, report.Finished)
	}
	_, ok = core.PullOutbound()
	assert.False(t, ok)

	result, ok := core.Result()
	require.True(t, ok)
	assert.True(t, result.Finished)
	assert.Equal(t, "site-a", result.Participant)
	assert.Equal(t, "/mnt/output/result.json", result.Artifact.Location)
}

func TestClient_TransformPhaseWhenPlanned(t *testing.T) {
	strategy := mocks.NewMockStrategy().WithTransforms("resize", "crop")
	core := session.New(strategy)
	require.NoError(t, core.OnSetup(fixtures.Client("site-a", "coord")))

	tickTo(t, core, session.PhaseTerminal)
	assert.Equal(t, []mocks.Step{
		mocks.StepConfigure, mocks.StepIngest, mocks.StepTransform, mocks.StepEmit,
	}, strategy.Calls())
}

func TestIngest_PersistsRawArtifact(t *testing.T) {
	store := artifact.NewMemoryStore()
	core, _ := newCore(t, fixtures.Client("site-a", "coord"),
		session.WithArtifactStore(store),
		session.WithRunID("run-42"),
		session.WithDataset(session.Dataset{Root: "/data/in"}))

	tickTo(t, core, session.PhaseEmit)

	data, err := store.Get(context.Background(), "run-42/site-a/raw")
	require.NoError(t, err)
	assert.JSONEq(t, `{"root":"/data/in"}`, string(data))
}

func TestCoordinator_SingleNodeFinishesWithoutWaiting(t *testing.T) {
	core, _ := newCore(t, fixtures.Coordinator("solo"))
	ctx := testutil.TestContext(t)

	want := []session.Phase{
		session.PhaseLocalIngest, session.PhaseEmit, session.PhaseFinalizing, session.PhaseTerminal,
	}
	for _, phase := range want {
		report, err := core.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, phase, report.To)
	}

	st := core.Status()
	assert.True(t, st.Finished)
	assert.False(t, st.Available, "a coordinator never sends its own completion marker")
}

func TestCoordinator_EmptyPeerListIsSingleNode(t *testing.T) {
	core, _ := newCore(t, session.ParticipantIdentity{ID: "solo", Coordinator: true})
	tickTo(t, core, session.PhaseTerminal)
	assert.True(t, core.Status().Finished)
}

func TestCoordinator_WaitsForEveryClient(t *testing.T) {
	core, _ := newCore(t, fixtures.Coordinator("coord", "a", "b"))
	ctx := testutil.TestContext(t)
	tickTo(t, core, session.PhaseFinalizing)

	report, err := core.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.RequestWait, report.Request)

	require.NoError(t, core.OnInboundPayload(fixtures.DonePayload("b")))
	report, err = core.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseFinalizing, report.To)
	assert.False(t, core.Status().Finished)

	require.NoError(t, core.OnInboundPayload(fixtures.DonePayload("a")))
	report, err = core.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseTerminal, report.To)
	assert.True(t, report.Finished)
}

func TestCoordinator_DuplicateDoneCountsOnce(t *testing.T) {
	core, _ := newCore(t, fixtures.Coordinator("coord", "a", "b"))
	tickTo(t, core, session.PhaseFinalizing)

	require.NoError(t, core.OnInboundPayload(fixtures.DonePayload("a")))
	require.NoError(t, core.OnInboundPayload(fixtures.DonePayload("a")))
	_, err := core.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.PhaseFinalizing, core.Phase())
	assert.Equal(t, 2, core.Status().Inbox, "own marker plus one from a")
}

func TestCoordinator_MalformedPayloadFailsSession(t *testing.T) {
	core, _ := newCore(t, fixtures.Coordinator("coord", "a"))
	ctx := testutil.TestContext(t)
	tickTo(t, core, session.PhaseFinalizing)

	require.NoError(t, core.OnInboundPayload([]byte("\x80\x03not-a-payload")))
	_, err := core.Tick(ctx)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDecodeFailure))
	assert.Equal(t, session.PhaseFailed, core.Phase())

	// Failed is absorbing and never reports finished.
	for i := 0; i < 3; i++ {
		report, err := core.Tick(ctx)
		require.Error(t, err)
		assert.False(t, report.Finished)
	}
	st := core.Status()
	assert.True(t, st.Failed)
	assert.False(t, st.Finished)
	assert.Contains(t, st.Error, "DECODE_FAILURE")

	_, ok := core.Result()
	assert.False(t, ok)

	err = core.OnInboundPayload(fixtures.DonePayload("a"))
	assert.True(t, types.IsCode(err, types.ErrSessionFailed))
}

func TestCoordinator_UnknownSenderFailsSession(t *testing.T) {
	core, _ := newCore(t, fixtures.Coordinator("coord", "a"))
	tickTo(t, core, session.PhaseFinalizing)

	require.NoError(t, core.OnInboundPayload(fixtures.DonePayload("mallory")))
	_, err := core.Tick(context.Background())
	assert.True(t, types.IsCode(err, types.ErrDecodeFailure))
	assert.Equal(t, session.PhaseFailed, core.Phase())
}

func TestCoordinator_InboxIsBounded(t *testing.T) {
	core, _ := newCore(t, fixtures.Coordinator("coord", "a"))

	require.NoError(t, core.OnInboundPayload(fixtures.FragmentPayload("a", 1)))
	require.NoError(t, core.OnInboundPayload(fixtures.DonePayload("a")))
	err := core.OnInboundPayload(fixtures.FragmentPayload("mallory", 3))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInboxOverflow))
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, 2, core.Status().Inbox)
}

func TestCoordinator_ResentFragmentDoesNotCrowdOutPeers(t *testing.T) {
	core, _ := newCore(t, fixtures.Coordinator("coord", "a", "b"))

	for v := 1; v <= 3; v++ {
		require.NoError(t, core.OnInboundPayload(fixtures.FragmentPayload("a", map[string]any{"mean": v})))
	}
	require.NoError(t, core.OnInboundPayload(fixtures.FragmentPayload("b", map[string]any{"mean": 7})))
	assert.Equal(t, 2, core.Status().Inbox)

	g, err := core.GatherFromClients()
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())

	assert.Equal(t, []gathered{
		{Body: map[string]float64{"mean": 3}, Index: 0},
		{Body: map[string]float64{"mean": 7}, Index: 1},
	}, collect(t, g), "latest fragment from a, then b")
}

func TestCoordinator_OwnMarkerStaysWithinBound(t *testing.T) {
	core, _ := newCore(t, fixtures.Coordinator("coord", "a", "b"))
	ctx := testutil.TestContext(t)
	tickTo(t, core, session.PhaseEmit)

	// Leftovers that arrived after the gather.
	require.NoError(t, core.OnInboundPayload(fixtures.FragmentPayload("a", 1)))
	require.NoError(t, core.OnInboundPayload(fixtures.FragmentPayload("b", 2)))
	require.NoError(t, core.OnInboundPayload(fixtures.DonePayload("a")))
	require.Equal(t, 3, core.Status().Inbox)

	report, err := core.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseFinalizing, report.To)
	st := core.Status()
	assert.LessOrEqual(t, st.Inbox, st.Clients+1)
	assert.Equal(t, 2, st.Inbox, "marker from a plus our own")

	require.NoError(t, core.OnInboundPayload(fixtures.DonePayload("b")))
	report, err = core.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, report.Finished)
}

func TestClient_MalformedPayloadFailsSession(t *testing.T) {
	core, _ := newCore(t, fixtures.Client("a", "coord"))
	ctx := testutil.TestContext(t)

	require.NoError(t, core.OnInboundPayload([]byte("\x80\x03not-a-payload")))
	_, err := core.Tick(ctx)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDecodeFailure))

	for i := 0; i < 5; i++ {
		report, _ := core.Tick(ctx)
		assert.False(t, report.Finished)
	}
	st := core.Status()
	assert.True(t, st.Failed)
	assert.False(t, st.Finished)
	_, ok := core.PullOutbound()
	assert.False(t, ok, "no completion marker after a decode failure")
}

func TestClient_WrongKindFailsBeforeCompletion(t *testing.T) {
	core, _ := newCore(t, fixtures.Client("a", "coord"))
	ctx := testutil.TestContext(t)
	tickTo(t, core, session.PhaseEmit)

	require.NoError(t, core.OnInboundPayload(fixtures.DonePayload("coord")))
	_, err := core.Tick(ctx)
	assert.True(t, types.IsCode(err, types.ErrDecodeFailure))
	assert.Equal(t, session.PhaseFailed, core.Phase())
}

func TestOnInboundPayload_RejectsEmpty(t *testing.T) {
	core, _ := newCore(t, fixtures.Client("site-a", "coord"))
	assert.True(t, types.IsCode(core.OnInboundPayload(nil), types.ErrInvalidRequest))
}

func TestOnInboundPayload_CopiesBytes(t *testing.T) {
	core, _ := newCore(t, fixtures.Client("site-a", "coord"))
	buf := fixtures.BroadcastPayload("coord", "v1")
	require.NoError(t, core.OnInboundPayload(buf))
	for i := range buf {
		buf[i] = 0
	}

	body, ok, err := core.AwaitBroadcast()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", body.Value())
}

func TestStrategyFailure_EndsSession(t *testing.T) {
	strategy := mocks.NewMockStrategy().WithError(mocks.StepIngest, errors.New("disk unreadable"))
	obs := mocks.NewRecordingObserver()
	core := session.New(strategy, session.WithObserver(obs))
	require.NoError(t, core.OnSetup(fixtures.Client("site-a", "coord")))
	ctx := testutil.TestContext(t)

	_, err := core.Tick(ctx)
	require.NoError(t, err)
	_, err = core.Tick(ctx)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrPipelineFailure))
	assert.Contains(t, err.Error(), "disk unreadable")
	assert.Equal(t, session.PhaseFailed, core.Phase())

	_, ok := core.PullOutbound()
	assert.False(t, ok, "a failed client never sends its completion marker")
	assert.Equal(t, []string{string(types.ErrPipelineFailure)}, obs.Snapshot().Failures)
}

func TestStrategyNotReady_RetriesSamePhase(t *testing.T) {
	attempts := 0
	strategy := mocks.NewMockStrategy().
		WithTransforms("wait").
		WithTransform(func(_ context.Context, _ session.Env, in session.Artifact) (session.Artifact, error) {
			attempts++
			if attempts < 3 {
				return session.Artifact{}, fmt.Errorf("peer data missing: %w", session.ErrNotReady)
			}
			return in, nil
		})
	core := session.New(strategy)
	require.NoError(t, core.OnSetup(fixtures.Client("site-a", "coord")))
	ctx := testutil.TestContext(t)
	tickTo(t, core, session.PhaseLocalTransform)

	for i := 0; i < 2; i++ {
		report, err := core.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, session.RequestWait, report.Request)
		assert.Equal(t, session.PhaseLocalTransform, report.To)
	}
	report, err := core.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseEmit, report.To)
	assert.Equal(t, 1, strategy.CallCount(mocks.StepConfigure))
}

func TestBarrierTimeout(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	core, _ := newCore(t, fixtures.Coordinator("coord", "a"),
		session.WithClock(clock),
		session.WithBarrierTimeout(time.Minute))
	ctx := testutil.TestContext(t)
	tickTo(t, core, session.PhaseFinalizing)

	now = now.Add(30 * time.Second)
	_, err := core.Tick(ctx)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = core.Tick(ctx)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTimeout))
	assert.Equal(t, session.PhaseFailed, core.Phase())
}

func TestJournalAndObserver(t *testing.T) {
	journal := mocks.NewRecordingJournal().WithError(errors.New("db down"))
	obs := mocks.NewRecordingObserver()
	core, _ := newCore(t, fixtures.Client("site-a", "coord"),
		session.WithJournal(journal),
		session.WithObserver(obs),
		session.WithRunID("run-7"))

	tickTo(t, core, session.PhaseTerminal)

	assert.Equal(t, []session.Phase{
		session.PhaseLocalIngest, session.PhaseEmit, session.PhaseTerminal,
	}, journal.Phases())
	for _, tr := range journal.Transitions() {
		assert.Equal(t, "run-7", tr.RunID)
		assert.Equal(t, "site-a", tr.Participant)
	}

	snap := obs.Snapshot()
	assert.Equal(t, []string{
		"initializing->local_ingest", "local_ingest->emit", "emit->terminal",
	}, snap.Transitions)
	assert.Equal(t, []string{"done"}, snap.Outbound)
}

func TestStatus_JSONShape(t *testing.T) {
	core, _ := newCore(t, fixtures.Coordinator("coord", "a", "b"))
	tickTo(t, core, session.PhaseLocalIngest)

	data, err := json.Marshal(core.Status())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "local_ingest", got["state"])
	assert.Equal(t, "coord", got["id"])
	assert.Equal(t, true, got["coordinator"])
	assert.Equal(t, float64(2), got["clients"])
}

func TestProtoCodecSession(t *testing.T) {
	coord, _ := newCore(t, fixtures.Coordinator("coord", "a"), session.WithCodec(wire.ProtoCodec{}))
	client, _ := newCore(t, fixtures.Client("a", "coord"), session.WithCodec(wire.ProtoCodec{}))

	tickTo(t, coord, session.PhaseFinalizing)
	tickTo(t, client, session.PhaseTerminal)

	payload, ok := client.PullOutbound()
	require.True(t, ok)
	require.NoError(t, coord.OnInboundPayload(payload))
	tickTo(t, coord, session.PhaseTerminal)
}
