package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edume/internal/storage"
)

func TestBuildSelect_Predicates(t *testing.T) {
	q := storage.Collection("chats").
		WhereEqual("postId", "p1").
		WhereArrayContains("participants", "u2").
		Order("lastMessageTime", true)

	sql, args, err := buildSelect(q)
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT id, data FROM documents WHERE collection = $1 AND data @> $2::jsonb AND data @> $3::jsonb ORDER BY data->$4 DESC NULLS LAST, id`,
		sql)
	require.Len(t, args, 4)
	assert.Equal(t, "chats", args[0])
	assert.JSONEq(t, `{"postId":"p1"}`, args[1].(string))
	assert.JSONEq(t, `{"participants":["u2"]}`, args[2].(string))
	assert.Equal(t, "lastMessageTime", args[3])
}

func TestBuildSelect_NoOrder(t *testing.T) {
	sql, args, err := buildSelect(storage.Collection("posts"))
	require.NoError(t, err)
	assert.Equal(t, `SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`, sql)
	assert.Equal(t, []any{"posts"}, args)
}

func TestBuildSelect_UnsupportedOp(t *testing.T) {
	q := storage.Collection("posts")
	q.Where = append(q.Where, storage.Predicate{Field: "x", Op: ">", Value: 1})
	_, _, err := buildSelect(q)
	assert.Error(t, err)
}
