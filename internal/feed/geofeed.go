// Package feed: живая лента постов: одна подписка на всю коллекцию posts,
// каждый снимок полностью заменяет кэш, видимость вычисляется чистой функцией Visible.
package feed

import (
	"context"
	"sync"

	"github.com/edume/internal/live"
	"github.com/edume/internal/model"
	"github.com/edume/internal/storage"
)

// Query: запрос ленты: все посты, новые первыми.
func Query() storage.Query {
	return storage.Collection(storage.CollectionPosts).Order("timestamp", true)
}

// Geofeed принадлежит одному потребителю (сигнал Changed не размножается между читателями).
type Geofeed struct {
	store storage.Store

	mu   sync.Mutex
	view *live.View[model.Post]
}

func New(store storage.Store) *Geofeed {
	return &Geofeed{store: store}
}

// Start открывает подписку. Повторный вызов, no-op.
func (g *Geofeed) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.view != nil {
		return nil
	}
	v, err := live.Open(ctx, g.store, Query(), model.PostFromDocument)
	if err != nil {
		return err
	}
	g.view = v
	return nil
}

func (g *Geofeed) current() *live.View[model.Post] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view
}

// Posts: текущий кэш в порядке хранилища. До Start, пусто.
func (g *Geofeed) Posts() []model.Post {
	v := g.current()
	if v == nil {
		return nil
	}
	return v.Items()
}

func (g *Geofeed) Visible(f Filter) []model.Post {
	return Visible(g.Posts(), f)
}

// Changed сигнализирует о замене кэша. До Start возвращает nil-канал.
func (g *Geofeed) Changed() <-chan struct{} {
	v := g.current()
	if v == nil {
		return nil
	}
	return v.Changed()
}

// Ready закрывается после первого снимка. До Start возвращает nil-канал.
func (g *Geofeed) Ready() <-chan struct{} {
	v := g.current()
	if v == nil {
		return nil
	}
	return v.Ready()
}

// Cancel отменяет подписку и отбрасывает кэш. Повторный вызов безопасен;
// после Cancel ленту можно снова запустить через Start.
func (g *Geofeed) Cancel() {
	g.mu.Lock()
	v := g.view
	g.view = nil
	g.mu.Unlock()
	if v != nil {
		v.Cancel()
	}
}
