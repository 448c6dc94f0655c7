package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_StringRoundTrip(t *testing.T) {
	for p := PhaseInitializing; p <= PhaseFailed; p++ {
		parsed, err := ParsePhase(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	_, err := ParsePhase("training")
	assert.Error(t, err)
	assert.Equal(t, "phase(42)", Phase(42).String())
}

func TestPhase_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Phase{"state": PhaseLocalTransform})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"local_transform"}`, string(data))

	var back map[string]Phase
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, PhaseLocalTransform, back["state"])
}

func TestPhase_IsTerminal(t *testing.T) {
	assert.True(t, PhaseTerminal.IsTerminal())
	assert.True(t, PhaseFailed.IsTerminal())
	assert.False(t, PhaseFinalizing.IsTerminal())
}

func TestParticipantIdentity_Clients(t *testing.T) {
	tests := []struct {
		name    string
		id      ParticipantIdentity
		clients []string
		barrier int
	}{
		{"peers include self", ParticipantIdentity{ID: "c", Peers: []string{"a", "c", "b"}}, []string{"a", "b"}, 3},
		{"peers exclude self", ParticipantIdentity{ID: "c", Peers: []string{"a", "b"}}, []string{"a", "b"}, 3},
		{"duplicates and blanks", ParticipantIdentity{ID: "c", Peers: []string{"a", "", "a", "c"}}, []string{"a"}, 2},
		{"self only", ParticipantIdentity{ID: "c", Peers: []string{"c"}}, []string{}, 1},
		{"no peers", ParticipantIdentity{ID: "c"}, []string{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.clients, tt.id.Clients())
			assert.Equal(t, tt.barrier, tt.id.BarrierSize())
		})
	}
}

func TestPlan_HasTransform(t *testing.T) {
	assert.False(t, Plan{}.HasTransform())
	assert.False(t, Plan{Transforms: []Transform{{Name: "crop"}}}.HasTransform())
	assert.True(t, Plan{Transforms: []Transform{{Name: "crop"}, {Name: "resize", Enabled: true}}}.HasTransform())
}
