package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edume/internal/storage"
)

func next(t *testing.T, sub *storage.Subscription) storage.Snapshot {
	t.Helper()
	select {
	case snap := <-sub.C():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return storage.Snapshot{}
	}
}

func TestClient_PutGetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, "chats", "c1", map[string]any{"postId": "p1", "lastMessage": "hi"}))
	require.NoError(t, c.Update(ctx, "chats", "c1", map[string]any{"lastMessage": "bye"}))

	docs, err := c.Get(ctx, storage.Collection("chats").WhereEqual("postId", "p1"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "bye", docs[0].Data["lastMessage"])
	assert.Equal(t, "p1", docs[0].Data["postId"], "update merges fields")

	require.NoError(t, c.Delete(ctx, "chats", "c1"))
	docs, err = c.Get(ctx, storage.Collection("chats"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestClient_UpdateMissingDocument(t *testing.T) {
	c := New()
	defer c.Close()
	err := c.Update(context.Background(), "chats", "nope", map[string]any{"x": 1})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestClient_StoredDataIsIsolated(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	data := map[string]any{"title": "a"}
	require.NoError(t, c.Put(ctx, "posts", "p1", data))
	data["title"] = "mutated"

	docs, err := c.Get(ctx, storage.Collection("posts"))
	require.NoError(t, err)
	docs[0].Data["title"] = "mutated again"

	docs, err = c.Get(ctx, storage.Collection("posts"))
	require.NoError(t, err)
	assert.Equal(t, "a", docs[0].Data["title"])
}

func TestClient_SubscribeInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	c := New()
	defer c.Close()

	require.NoError(t, c.Put(ctx, "messages", "m1", map[string]any{"chatId": "c1", "n": 1}))
	sub, err := c.Subscribe(ctx, storage.Collection("messages").WhereEqual("chatId", "c1").Order("n", false))
	require.NoError(t, err)
	defer sub.Cancel()

	snap := next(t, sub)
	require.Len(t, snap.Docs, 1)

	require.NoError(t, c.Put(ctx, "messages", "m0", map[string]any{"chatId": "c1", "n": 0}))
	require.NoError(t, c.Put(ctx, "messages", "other", map[string]any{"chatId": "c2", "n": 2}))

	require.Eventually(t, func() bool {
		select {
		case snap = <-sub.C():
		default:
		}
		return len(snap.Docs) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "m0", snap.Docs[0].ID)
	assert.Equal(t, "m1", snap.Docs[1].ID)
}

func TestClient_CancelRemovesWatcher(t *testing.T) {
	c := New()
	defer c.Close()

	sub, err := c.Subscribe(context.Background(), storage.Collection("posts"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.ActiveSubscriptions("posts"))

	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 0, c.ActiveSubscriptions("posts"))
}

func TestClient_CloseCancelsSubscriptions(t *testing.T) {
	c := New()
	sub, err := c.Subscribe(context.Background(), storage.Collection("posts"))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription still open after Close")
	}
}
