package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/fedflow/types"
)

func codecs() []Codec {
	return []Codec{JSONCodec{}, ProtoCodec{}}
}

func TestEncodeDecode_NestedNumericArray(t *testing.T) {
	body := map[string]any{
		"labels": []any{"cat", "dog"},
		"stats": map[string]any{
			"mean":   1.5,
			"counts": []any{3.0, 4.0, 5.0},
		},
	}
	for _, c := range codecs() {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := Encode(c, Fragment("site-a", body))
			require.NoError(t, err)

			env, err := Decode(c, data)
			require.NoError(t, err)
			assert.Equal(t, KindFragment, env.Kind)
			assert.Equal(t, "site-a", env.From)

			var got struct {
				Labels []string `json:"labels"`
				Stats  struct {
					Mean   float64   `json:"mean"`
					Counts []float64 `json:"counts"`
				} `json:"stats"`
			}
			require.NoError(t, DecodeBody(env.Body, &got))
			assert.Equal(t, []string{"cat", "dog"}, got.Labels)
			assert.Equal(t, 1.5, got.Stats.Mean)
			assert.Equal(t, []float64{3, 4, 5}, got.Stats.Counts)

			again, err := Encode(c, env)
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	c := JSONCodec{}
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"garbage", "\x00\x01not json"},
		{"trailing data", `{"v":1,"kind":"done","from":"a","body":"DONE"} {}`},
		{"wrong version", `{"v":2,"kind":"fragment","from":"a","body":1}`},
		{"unknown kind", `{"v":1,"kind":"gossip","from":"a","body":1}`},
		{"no sender", `{"v":1,"kind":"fragment","body":1}`},
		{"done without sentinel", `{"v":1,"kind":"done","from":"a","body":"FINISHED"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(c, []byte(tt.data))
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrDecodeFailure), "got %v", err)
		})
	}
}

func TestFragmentCarryingSentinelIsNotDone(t *testing.T) {
	data, err := Encode(JSONCodec{}, Fragment("site-b", DoneSentinel))
	require.NoError(t, err)

	env, err := Decode(JSONCodec{}, data)
	require.NoError(t, err)
	assert.False(t, env.IsDone())
	assert.True(t, Done("site-b").IsDone())
}

func TestEncode_RejectsInvalidEnvelope(t *testing.T) {
	_, err := Encode(JSONCodec{}, Envelope{Version: CurrentVersion, Kind: KindFragment})
	assert.True(t, types.IsCode(err, types.ErrDecodeFailure))
}

func TestJSONCodec_CanonicalBytes(t *testing.T) {
	data, err := Encode(JSONCodec{}, Broadcast("coord", map[string]any{"b": 2, "a": []int{1, 2}}))
	require.NoError(t, err)
	assert.Equal(t, `{"v":1,"kind":"broadcast","from":"coord","body":{"a":[1,2],"b":2}}`, string(data))
}

func TestByName(t *testing.T) {
	c, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())
	assert.Equal(t, ".json", Extension(c))

	c, err = ByName("proto")
	require.NoError(t, err)
	assert.Equal(t, "proto", c.Name())
	assert.Equal(t, ".pb", Extension(c))

	_, err = ByName("pickle")
	assert.Error(t, err)
}
