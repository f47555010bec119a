package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestQuery_BuildersDoNotShareWhere(t *testing.T) {
	base := Collection("chats").WhereEqual("postId", "p1")
	a := base.WhereArrayContains("participants", "u1")
	b := base.WhereArrayContains("participants", "u2")

	require.Len(t, a.Where, 2)
	require.Len(t, b.Where, 2)
	assert.Equal(t, "u1", a.Where[1].Value)
	assert.Equal(t, "u2", b.Where[1].Value)
	assert.Len(t, base.Where, 1)
}

func TestQuery_Match(t *testing.T) {
	q := Collection("chats").
		WhereEqual("postId", "p1").
		WhereArrayContains("participants", "u2")

	assert.True(t, q.Match(map[string]any{"postId": "p1", "participants": []any{"u1", "u2"}}))
	assert.True(t, q.Match(map[string]any{"postId": "p1", "participants": []string{"u2"}}))
	assert.False(t, q.Match(map[string]any{"postId": "p2", "participants": []any{"u2"}}))
	assert.False(t, q.Match(map[string]any{"postId": "p1", "participants": []any{"u3"}}))
	assert.False(t, q.Match(map[string]any{"participants": []any{"u2"}}), "missing field never matches")
}

func TestQuery_MatchNumbersAcrossTypes(t *testing.T) {
	q := Collection("x").WhereEqual("n", 3)
	assert.True(t, q.Match(map[string]any{"n": float64(3)}))
	assert.True(t, q.Match(map[string]any{"n": int64(3)}))
	assert.False(t, q.Match(map[string]any{"n": "3"}))
}

func TestQuery_ApplyOrdersMissingFieldLast(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []Document{
		{ID: "none", Data: map[string]any{}},
		{ID: "old", Data: map[string]any{"ts": t0}},
		{ID: "new", Data: map[string]any{"ts": t0.Add(time.Hour)}},
		{ID: "nil", Data: map[string]any{"ts": nil}},
	}

	desc := Collection("x").Order("ts", true).Apply(docs)
	assert.Equal(t, []string{"new", "old", "nil", "none"}, ids(desc))

	asc := Collection("x").Order("ts", false).Apply(docs)
	assert.Equal(t, []string{"old", "new", "nil", "none"}, ids(asc))
}

func TestQuery_ApplyTiesBrokenByID(t *testing.T) {
	docs := []Document{
		{ID: "b", Data: map[string]any{"n": 1}},
		{ID: "a", Data: map[string]any{"n": 1}},
		{ID: "c", Data: map[string]any{"n": 0}},
	}
	out := Collection("x").Order("n", false).Apply(docs)
	assert.Equal(t, []string{"c", "a", "b"}, ids(out))
}

func TestQuery_ApplyDoesNotModifyInput(t *testing.T) {
	docs := []Document{
		{ID: "b", Data: map[string]any{"k": "v"}},
		{ID: "a", Data: map[string]any{"k": "v"}},
	}
	_ = Collection("x").WhereEqual("k", "v").Apply(docs)
	assert.Equal(t, []string{"b", "a"}, ids(docs))
}
