package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentCodec_PreservesTimestamps(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 89, time.FixedZone("x", 3600))
	b, err := MarshalDocument(map[string]any{
		"timestamp": ts,
		"nested":    map[string]any{"at": ts},
		"list":      []any{ts, "s"},
		"n":         1.5,
	})
	require.NoError(t, err)

	got, err := UnmarshalDocument(b)
	require.NoError(t, err)

	gotTS, ok := got["timestamp"].(time.Time)
	require.True(t, ok, "timestamp should decode as time.Time, got %T", got["timestamp"])
	assert.True(t, ts.Equal(gotTS))

	nested := got["nested"].(map[string]any)
	assert.IsType(t, time.Time{}, nested["at"])
	list := got["list"].([]any)
	assert.IsType(t, time.Time{}, list[0])
	assert.Equal(t, "s", list[1])
	assert.Equal(t, 1.5, got["n"])
}

func TestDocumentCodec_TimeLayoutSortsLexically(t *testing.T) {
	early := EncodeValue(time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)).(map[string]any)[timeTag].(string)
	late := EncodeValue(time.Date(2025, 1, 1, 10, 0, 0, 5, time.UTC)).(map[string]any)[timeTag].(string)
	assert.Less(t, early, late)
}

func TestUnmarshalDocument_Malformed(t *testing.T) {
	_, err := UnmarshalDocument([]byte(`{"title":`))
	assert.Error(t, err)
}

func TestCloneData_Deep(t *testing.T) {
	src := map[string]any{
		"names": map[string]any{"u1": "Ann"},
		"ids":   []any{"u1"},
	}
	cp := CloneData(src)
	cp["names"].(map[string]any)["u1"] = "Bob"
	cp["ids"].([]any)[0] = "u2"

	assert.Equal(t, "Ann", src["names"].(map[string]any)["u1"])
	assert.Equal(t, "u1", src["ids"].([]any)[0])
}
