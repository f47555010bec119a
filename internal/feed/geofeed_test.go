package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edume/internal/model"
	"github.com/edume/internal/storage"
	"github.com/edume/internal/storage/memory"
)

func waitChanged(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed change")
	}
}

func TestGeofeed_LiveUpdatesAndDecodeSkip(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	defer store.Close()

	p := post("p1", model.CategoryTech, time.Minute, 0, 0)
	require.NoError(t, store.Put(ctx, storage.CollectionPosts, p.ID, p.ToDocument()))
	require.NoError(t, store.Put(ctx, storage.CollectionPosts, "broken", map[string]any{"title": 42}))

	g := New(store)
	assert.Nil(t, g.Changed())
	assert.Empty(t, g.Posts())

	require.NoError(t, g.Start(ctx))
	require.NoError(t, g.Start(ctx), "second Start is a no-op")
	defer g.Cancel()

	waitChanged(t, g.Changed())
	assert.Equal(t, []string{"p1"}, postIDs(g.Posts()), "undecodable documents are skipped")

	p2 := post("p2", model.CategoryTech, 0, 0, 0.0001)
	require.NoError(t, store.Put(ctx, storage.CollectionPosts, p2.ID, p2.ToDocument()))
	require.Eventually(t, func() bool { return len(g.Posts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"p2", "p1"}, postIDs(g.Visible(Filter{Viewer: &model.Coordinates{}, RadiusMeters: 1000})))

	require.NoError(t, store.Delete(ctx, storage.CollectionPosts, "p1"))
	require.Eventually(t, func() bool { return len(g.Posts()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestGeofeed_CancelReleasesSubscription(t *testing.T) {
	store := memory.New()
	defer store.Close()

	g := New(store)
	require.NoError(t, g.Start(context.Background()))
	<-g.Ready()
	assert.Equal(t, 1, store.ActiveSubscriptions(storage.CollectionPosts))

	g.Cancel()
	g.Cancel()
	assert.Equal(t, 0, store.ActiveSubscriptions(storage.CollectionPosts))
	assert.Empty(t, g.Posts())

	require.NoError(t, g.Start(context.Background()), "feed can be restarted")
	defer g.Cancel()
	assert.Equal(t, 1, store.ActiveSubscriptions(storage.CollectionPosts))
}
