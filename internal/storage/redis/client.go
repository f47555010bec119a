package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edume/internal/logger"
	"github.com/edume/internal/storage"
)

// Раскладка ключей: коллекция, хеш docs:{collection} (поле = id, значение = JSON документа),
// изменения: канал docs:changed:{collection} (сообщение = id).
const (
	docsKeyPrefix    = "docs:"
	changedKeyPrefix = "docs:changed:"
	rateKeyPrefix    = "rate:"

	// Повторы WATCH-транзакции Update при конкурентной записи того же хеша.
	updateMaxRetries = 5
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func docsKey(collection string) string    { return docsKeyPrefix + collection }
func changedKey(collection string) string { return changedKeyPrefix + collection }

// Get читает весь хеш коллекции и применяет запрос на стороне клиента.
// Документ с битым JSON пропускается, остальные возвращаются.
func (c *Client) Get(ctx context.Context, q storage.Query) ([]storage.Document, error) {
	vals, err := c.cli.HGetAll(ctx, docsKey(q.Collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.Get %s: %w", q.Collection, err)
	}
	docs := make([]storage.Document, 0, len(vals))
	for id, raw := range vals {
		data, err := storage.UnmarshalDocument([]byte(raw))
		if err != nil {
			logger.Warnf("redis.Get %s/%s: skip: %v", q.Collection, id, err)
			continue
		}
		docs = append(docs, storage.Document{ID: id, Data: data})
	}
	return q.Apply(docs), nil
}

// Put записывает документ и публикует изменение одной транзакцией MULTI/EXEC.
func (c *Client) Put(ctx context.Context, collection, id string, data map[string]any) error {
	b, err := storage.MarshalDocument(data)
	if err != nil {
		return fmt.Errorf("redis.Put: %w", err)
	}
	_, err = c.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, docsKey(collection), id, b)
		pipe.Publish(ctx, changedKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis.Put %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update сливает поля в существующий документ (WATCH + MULTI). Нет документа, storage.ErrNotFound.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	key := docsKey(collection)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Result()
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err := storage.UnmarshalDocument([]byte(raw))
		if err != nil {
			return err
		}
		for k, v := range fields {
			data[k] = v
		}
		b, err := storage.MarshalDocument(data)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, b)
			pipe.Publish(ctx, changedKey(collection), id)
			return nil
		})
		return err
	}
	for i := 0; i < updateMaxRetries; i++ {
		err := c.cli.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if err != nil {
			return fmt.Errorf("redis.Update %s/%s: %w", collection, id, err)
		}
		return nil
	}
	return fmt.Errorf("redis.Update %s/%s: %w", collection, id, redis.TxFailedErr)
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	_, err := c.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, docsKey(collection), id)
		pipe.Publish(ctx, changedKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis.Delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Subscribe: сначала SUBSCRIBE на канал коллекции, потом первичное чтение, изменение между
// ними не теряется. Каждое сообщение канала вызывает перечитывание коллекции.
func (c *Client) Subscribe(ctx context.Context, q storage.Query) (*storage.Subscription, error) {
	sub := storage.NewSubscription(ctx)
	ps := c.cli.Subscribe(ctx, changedKey(q.Collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		sub.Cancel()
		return nil, fmt.Errorf("redis.Subscribe %s: %w", q.Collection, err)
	}
	sub.OnCancel(func() {
		if err := ps.Close(); err != nil {
			logger.Debugf("redis.Subscribe %s: close pubsub: %v", q.Collection, err)
		}
	})
	sub.Go(func(ctx context.Context) {
		storage.Pump(ctx, sub, ps.Channel(), func(ctx context.Context) ([]storage.Document, error) {
			return c.Get(ctx, q)
		})
	})
	return sub, nil
}

// Allow: счётчик фиксированного окна rate:{key}: INCR, на первом запросе EXPIRE.
func (c *Client) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	k := rateKeyPrefix + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, k, window)
	}
	return n <= int64(max), nil
}

// FlushDB очищает текущую БД Redis (для тестов/сброса dev-окружения).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
