package storage

import (
	"context"
	"errors"
)

// Коллекции удалённого хранилища документов.
const (
	CollectionPosts    = "posts"
	CollectionChats    = "chats"
	CollectionMessages = "messages"
)

// ErrNotFound возвращается Update для отсутствующего документа.
var ErrNotFound = errors.New("document not found")

// Document: документ коллекции: id и схемонезависимая карта примитивных полей.
type Document struct {
	ID   string
	Data map[string]any
}

// Store: хранилище документов с фильтруемыми запросами и live-подписками.
// Реализации: memory.Client (dev и тесты), postgres.Client, redis.Client.
type Store interface {
	// Get: однократный снимок результата запроса.
	Get(ctx context.Context, q Query) ([]Document, error)
	// Put: upsert документа целиком.
	Put(ctx context.Context, collection, id string, data map[string]any) error
	// Update сливает поля в существующий документ; ErrNotFound, если документа нет.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	// Subscribe открывает live-запрос: полный снимок результата при каждом изменении.
	// Владелец обязан вызвать Cancel у возвращённой подписки.
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
	Close() error
}
