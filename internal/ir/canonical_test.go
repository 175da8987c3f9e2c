package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{
		"surface": uint32(0),
		"area":    []any{int32(0), int32(0), int32(10), int32(10)},
		"kind":    "draw",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"area":[0,0,10,10],"kind":"draw","surface":0}`, string(data))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	data, err := MarshalCanonical("<a&b>")
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(data))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	tests := []struct {
		name string
		v    any
	}{
		{"null", nil},
		{"float", 1.5},
		{"nested float", map[string]any{"x": []any{2.5}}},
		{"struct", struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.v)
			assert.Error(t, err)
		})
	}
}

func TestBitmapID_StableAndSensitive(t *testing.T) {
	b := &Bitmap{Format: FormatRGB32, Width: 2, Height: 1, Stride: 8, TopDown: true, Data: make([]byte, 8)}
	id := BitmapID(b)
	assert.NotZero(t, id)
	assert.Equal(t, id, BitmapID(b))

	other := *b
	other.Data = []byte{1, 0, 0, 0, 0, 0, 0, 0}
	assert.NotEqual(t, id, BitmapID(&other))

	flipped := *b
	flipped.TopDown = false
	assert.NotEqual(t, id, BitmapID(&flipped))
}

func TestDetailHash(t *testing.T) {
	h1, err := DetailHash(map[string]any{"a": 1, "b": "x"})
	require.NoError(t, err)
	h2, err := DetailHash(map[string]any{"b": "x", "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}
