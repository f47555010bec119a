package memory

import (
	"context"
	"sync"

	"github.com/edume/internal/storage"
)

// watcher: одна live-подписка: запрос и сигнал «коллекция изменилась».
type watcher struct {
	q      storage.Query
	sub    *storage.Subscription
	notify chan struct{}
}

// Client: хранилище документов в памяти процесса (для -dev и тестов).
type Client struct {
	mu       sync.RWMutex
	docs     map[string]map[string]map[string]any
	watchers map[string]map[*watcher]struct{}
	closed   bool
}

func New() *Client {
	return &Client{
		docs:     make(map[string]map[string]map[string]any),
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

// Close отменяет все открытые подписки.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	var subs []*storage.Subscription
	for _, ws := range c.watchers {
		for w := range ws {
			subs = append(subs, w.sub)
		}
	}
	c.mu.Unlock()
	for _, s := range subs {
		s.Cancel()
	}
	return nil
}

func (c *Client) Get(ctx context.Context, q storage.Query) ([]storage.Document, error) {
	c.mu.RLock()
	coll := c.docs[q.Collection]
	docs := make([]storage.Document, 0, len(coll))
	for id, data := range coll {
		docs = append(docs, storage.Document{ID: id, Data: storage.CloneData(data)})
	}
	c.mu.RUnlock()
	return q.Apply(docs), nil
}

func (c *Client) Put(ctx context.Context, collection, id string, data map[string]any) error {
	c.mu.Lock()
	coll, ok := c.docs[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		c.docs[collection] = coll
	}
	coll[id] = storage.CloneData(data)
	c.mu.Unlock()
	c.notify(collection)
	return nil
}

func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	c.mu.Lock()
	doc, ok := c.docs[collection][id]
	if !ok {
		c.mu.Unlock()
		return storage.ErrNotFound
	}
	for k, v := range storage.CloneData(fields) {
		doc[k] = v
	}
	c.mu.Unlock()
	c.notify(collection)
	return nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	c.mu.Lock()
	_, ok := c.docs[collection][id]
	delete(c.docs[collection], id)
	c.mu.Unlock()
	if ok {
		c.notify(collection)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, q storage.Query) (*storage.Subscription, error) {
	sub := storage.NewSubscription(ctx)
	w := &watcher{q: q, sub: sub, notify: make(chan struct{}, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Cancel()
		return sub, nil
	}
	if _, ok := c.watchers[q.Collection]; !ok {
		c.watchers[q.Collection] = make(map[*watcher]struct{})
	}
	c.watchers[q.Collection][w] = struct{}{}
	c.mu.Unlock()

	sub.OnCancel(func() {
		c.mu.Lock()
		delete(c.watchers[q.Collection], w)
		c.mu.Unlock()
	})
	sub.Go(func(ctx context.Context) {
		storage.Pump(ctx, sub, w.notify, func(ctx context.Context) ([]storage.Document, error) {
			return c.Get(ctx, q)
		})
	})
	return sub, nil
}

// ActiveSubscriptions: число открытых live-запросов по коллекции.
func (c *Client) ActiveSubscriptions(collection string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.watchers[collection])
}

func (c *Client) notify(collection string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for w := range c.watchers[collection] {
		select {
		case w.notify <- struct{}{}:
		default:
			// Сигнал уже ждёт, подписчик перечитает актуальное состояние.
		}
	}
}
