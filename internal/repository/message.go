package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/edume/internal/logger"
	"github.com/edume/internal/model"
	"github.com/edume/internal/storage"
)

type MessageRepository struct {
	store storage.Store
}

func NewMessageRepository(store storage.Store) *MessageRepository {
	return &MessageRepository{store: store}
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	if err := r.store.Put(ctx, storage.CollectionMessages, m.ID, m.ToDocument()); err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

// Delete удаляет сообщение, запись которого не завершилась полностью.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.Delete", time.Now())()
	if err := r.store.Delete(ctx, storage.CollectionMessages, id); err != nil {
		return fmt.Errorf("msgRepo.Delete: %w", err)
	}
	return nil
}

// ChatQuery: сообщения чата, старые первыми.
func ChatQuery(chatID string) storage.Query {
	return storage.Collection(storage.CollectionMessages).
		WhereEqual("chatId", chatID).
		Order("timestamp", false)
}

func (r *MessageRepository) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListByChat", time.Now())()
	docs, err := r.store.Get(ctx, ChatQuery(chatID))
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListByChat: %w", err)
	}
	msgs := make([]model.Message, 0, len(docs))
	for _, d := range docs {
		m, err := model.MessageFromDocument(d.ID, d.Data)
		if err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
