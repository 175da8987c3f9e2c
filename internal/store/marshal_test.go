package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalDetail_Canonical(t *testing.T) {
	data, hash, err := marshalDetail(map[string]any{
		"reason":   "requested",
		"released": 3,
		"dest":     "(0,0)-(10,10)",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"dest":"(0,0)-(10,10)","reason":"requested","released":3}`, data)
	assert.Len(t, hash, 64)
}

func TestMarshalDetail_Empty(t *testing.T) {
	data, hash, err := marshalDetail(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", data)
	assert.Empty(t, hash)
}

func TestUnmarshalDetail_IntegersAsInt64(t *testing.T) {
	got, err := unmarshalDetail(`{"big":9007199254740993,"list":[1,"x"],"nested":{"n":2}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"big":    int64(9007199254740993),
		"list":   []any{int64(1), "x"},
		"nested": map[string]any{"n": int64(2)},
	}, got)
}

func TestUnmarshalDetail_RejectsFloats(t *testing.T) {
	_, err := unmarshalDetail(`{"ratio":0.5}`)
	assert.Error(t, err)
}

func TestUnmarshalDetail_Empty(t *testing.T) {
	got, err := unmarshalDetail("{}")
	require.NoError(t, err)
	assert.Nil(t, got)
}
