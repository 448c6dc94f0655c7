package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/fedflow/session"
	"github.com/BaSui01/fedflow/testutil/fixtures"
	"github.com/BaSui01/fedflow/testutil/mocks"
)

func openSQLite(t *testing.T) *GormJournal {
	t.Helper()
	j, err := Open(Config{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "history.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	gj, ok := j.(*GormJournal)
	require.True(t, ok)
	return gj
}

func TestGormJournal_RecordAndList(t *testing.T) {
	j := openSQLite(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordTransition(ctx, session.Transition{
		RunID: "run-1", Participant: "coord", Coordinator: true,
		From: session.PhaseInitializing, To: session.PhaseLocalIngest,
		Duration: 1500 * time.Millisecond, At: at,
	}))
	require.NoError(t, j.RecordTransition(ctx, session.Transition{
		RunID: "run-1", Participant: "coord", Coordinator: true,
		From: session.PhaseLocalIngest, To: session.PhaseFailed,
		Err: "[PIPELINE_STRATEGY_FAILURE] local_ingest failed", At: at.Add(time.Second),
	}))
	require.NoError(t, j.RecordTransition(ctx, session.Transition{
		RunID: "run-2", Participant: "a", From: session.PhaseInitializing, To: session.PhaseLocalIngest, At: at,
	}))

	rows, err := j.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "initializing", rows[0].FromPhase)
	assert.Equal(t, "local_ingest", rows[0].ToPhase)
	assert.Equal(t, int64(1500), rows[0].DurationMS)
	assert.True(t, rows[0].Coordinator)
	assert.Equal(t, "failed", rows[1].ToPhase)
	assert.Contains(t, rows[1].Error, "PIPELINE_STRATEGY_FAILURE")

	require.NoError(t, j.Ping(ctx))

	runs, err := j.Runs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1", "run-2"}, runs)
}

func TestGormJournal_WiredIntoSession(t *testing.T) {
	j := openSQLite(t)
	core := session.New(mocks.NewMockStrategy(), session.WithJournal(j), session.WithRunID("run-9"))
	require.NoError(t, core.OnSetup(fixtures.Coordinator("solo")))

	ctx := context.Background()
	for !core.Status().Finished {
		_, err := core.Tick(ctx)
		require.NoError(t, err)
	}

	rows, err := j.List(ctx, "run-9")
	require.NoError(t, err)
	var phases []string
	for _, r := range rows {
		phases = append(phases, r.ToPhase)
	}
	assert.Equal(t, []string{"local_ingest", "emit", "finalizing", "terminal"}, phases)
}

func TestOpen_Disabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		j, err := Open(Config{Driver: driver}, nil)
		require.NoError(t, err)
		assert.IsType(t, NopJournal{}, j)
		assert.NoError(t, j.RecordTransition(context.Background(), session.Transition{}))
		assert.NoError(t, j.Ping(context.Background()))
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func TestConfig_DSN(t *testing.T) {
	pg := Config{Driver: "postgres", Host: "db", Port: 5432, User: "fed", Password: "pw", Name: "fedflow", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=fed password=pw dbname=fedflow sslmode=disable", pg.DSN())

	my := Config{Driver: "mysql", Host: "db", Port: 3306, User: "fed", Password: "pw", Name: "fedflow"}
	assert.Equal(t, "fed:pw@tcp(db:3306)/fedflow?parseTime=true", my.DSN())

	assert.Equal(t, "/tmp/h.db", Config{Driver: "sqlite", Name: "/tmp/h.db"}.DSN())
	assert.Empty(t, Config{}.DSN())
}
