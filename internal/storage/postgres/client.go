// Package postgres: документное хранилище поверх таблицы documents (JSONB).
// Live-запросы: триггер шлёт pg_notify('documents_changed', collection), слушатель
// держит отдельное соединение с LISTEN и будит подписки нужной коллекции.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edume/internal/logger"
	"github.com/edume/internal/storage"
)

const notifyChannel = "documents_changed"

type Client struct {
	pool *pgxpool.Pool

	mu       sync.RWMutex
	watchers map[string]map[*watcher]struct{}
	closed   bool
}

type watcher struct {
	sub    *storage.Subscription
	notify chan struct{}
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool, watchers: make(map[string]map[*watcher]struct{})}
}

// Close отменяет подписки. Пул закрывает владелец.
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
	defer logger.DeferLogDuration("documents.Get", time.Now())()
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, fmt.Errorf("documents.Get: %w", err)
	}
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("documents.Get: %w", err)
	}
	defer rows.Close()
	var docs []storage.Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("documents.Get scan: %w", err)
		}
		data, err := storage.UnmarshalDocument(raw)
		if err != nil {
			logger.Warnf("documents.Get %s/%s: skip: %v", q.Collection, id, err)
			continue
		}
		docs = append(docs, storage.Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("documents.Get rows: %w", err)
	}
	// jsonb упорядочивает значения разных типов иначе, чем клиентские бэкенды;
	// финальный порядок задаёт общий SortDocuments.
	storage.SortDocuments(docs, q.OrderBy, q.Descending)
	return docs, nil
}

// buildSelect: каждый предикат, JSONB containment (data @> $n), который покрывает GIN-индекс.
func buildSelect(q storage.Query) (string, []any, error) {
	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)
	for _, p := range q.Where {
		var v any
		switch p.Op {
		case storage.OpEqual:
			v = storage.EncodeValue(p.Value)
		case storage.OpArrayContains:
			v = []any{storage.EncodeValue(p.Value)}
		default:
			return "", nil, fmt.Errorf("unsupported op %q", p.Op)
		}
		cond, err := json.Marshal(map[string]any{p.Field: v})
		if err != nil {
			return "", nil, err
		}
		args = append(args, string(cond))
		b.WriteString(` AND data @> $` + strconv.Itoa(len(args)) + `::jsonb`)
	}
	if q.OrderBy != "" {
		args = append(args, q.OrderBy)
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		b.WriteString(` ORDER BY data->$` + strconv.Itoa(len(args)) + ` ` + dir + ` NULLS LAST, id`)
	} else {
		b.WriteString(` ORDER BY id`)
	}
	return b.String(), args, nil
}

func (c *Client) Put(ctx context.Context, collection, id string, data map[string]any) error {
	defer logger.DeferLogDuration("documents.Put", time.Now())()
	b, err := storage.MarshalDocument(data)
	if err != nil {
		return fmt.Errorf("documents.Put: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		collection, id, string(b),
	)
	if err != nil {
		return fmt.Errorf("documents.Put: %w", err)
	}
	return nil
}

// Update: слияние верхнего уровня (data || patch). 0 строк, storage.ErrNotFound.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	defer logger.DeferLogDuration("documents.Update", time.Now())()
	b, err := storage.MarshalDocument(fields)
	if err != nil {
		return fmt.Errorf("documents.Update: %w", err)
	}
	tag, err := c.pool.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND id = $2`,
		collection, id, string(b),
	)
	if err != nil {
		return fmt.Errorf("documents.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	defer logger.DeferLogDuration("documents.Delete", time.Now())()
	_, err := c.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("documents.Delete: %w", err)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, q storage.Query) (*storage.Subscription, error) {
	sub := storage.NewSubscription(ctx)
	w := &watcher{sub: sub, notify: make(chan struct{}, 1)}

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

// Listen держит LISTEN-соединение до отмены ctx; при обрыве переподключается с backoff
// и будит все подписки, так как уведомления за время обрыва потеряны.
func (c *Client) Listen(ctx context.Context) error {
	backoff := 2 * time.Second
	for {
		err := c.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logger.Errorf("documents listen: %v, reconnect in %v", err, backoff)
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Client) listenOnce(ctx context.Context) error {
	conn, err := pgx.ConnectConfig(ctx, c.pool.Config().ConnConfig)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Debugf("documents listen: subscribed to %s", notifyChannel)
	c.notifyAll()
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("wait: %w", err)
		}
		c.notifyCollection(n.Payload)
	}
}

func (c *Client) notifyCollection(collection string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for w := range c.watchers[collection] {
		w.wake()
	}
}

func (c *Client) notifyAll() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ws := range c.watchers {
		for w := range ws {
			w.wake()
		}
	}
}

func (w *watcher) wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}
