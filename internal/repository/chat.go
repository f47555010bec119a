package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edume/internal/logger"
	"github.com/edume/internal/model"
	"github.com/edume/internal/storage"
)

type ChatRepository struct {
	store storage.Store
}

func NewChatRepository(store storage.Store) *ChatRepository {
	return &ChatRepository{store: store}
}

func (r *ChatRepository) Create(ctx context.Context, c *model.Chat) error {
	defer logger.DeferLogDuration("chat.Create", time.Now())()
	if err := r.store.Put(ctx, storage.CollectionChats, c.ID, c.ToDocument()); err != nil {
		return fmt.Errorf("chatRepo.Create: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	docs, err := r.store.Get(ctx, storage.Collection(storage.CollectionChats).WhereEqual("id", id))
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	c, err := model.ChatFromDocument(docs[0].ID, docs[0].Data)
	if err != nil {
		return nil, fmt.Errorf("chatRepo.GetByID: %w", err)
	}
	return &c, nil
}

// FindByPostAndParticipant: первый (в порядке хранилища) чат по посту, где участвует userID.
func (r *ChatRepository) FindByPostAndParticipant(ctx context.Context, postID, userID string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.FindByPostAndParticipant", time.Now())()
	docs, err := r.store.Get(ctx, storage.Collection(storage.CollectionChats).
		WhereEqual("postId", postID).
		WhereArrayContains("participants", userID))
	if err != nil {
		return nil, fmt.Errorf("chatRepo.FindByPostAndParticipant: %w", err)
	}
	for _, d := range docs {
		c, err := model.ChatFromDocument(d.ID, d.Data)
		if err != nil {
			logger.Debugf("chatRepo.FindByPostAndParticipant: skip %s: %v", d.ID, err)
			continue
		}
		return &c, nil
	}
	return nil, ErrNotFound
}

// ListQuery: чаты пользователя, последние по времени сообщения первыми.
func ListQuery(userID string) storage.Query {
	return storage.Collection(storage.CollectionChats).
		WhereArrayContains("participants", userID).
		Order("lastMessageTime", true)
}

// UpdateLastMessage обновляет денормализованный кэш последнего сообщения.
func (r *ChatRepository) UpdateLastMessage(ctx context.Context, chatID, text string, at time.Time) error {
	defer logger.DeferLogDuration("chat.UpdateLastMessage", time.Now())()
	err := r.store.Update(ctx, storage.CollectionChats, chatID, map[string]any{
		"lastMessage":     text,
		"lastMessageTime": at,
	})
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("chatRepo.UpdateLastMessage: %w", err)
	}
	return nil
}

// ListByUser: разовое чтение списка чатов (REST); живой список, chat.Registry.LiveChats.
func (r *ChatRepository) ListByUser(ctx context.Context, userID string) ([]model.Chat, error) {
	defer logger.DeferLogDuration("chat.ListByUser", time.Now())()
	docs, err := r.store.Get(ctx, ListQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("chatRepo.ListByUser: %w", err)
	}
	chats := make([]model.Chat, 0, len(docs))
	for _, d := range docs {
		c, err := model.ChatFromDocument(d.ID, d.Data)
		if err != nil {
			logger.Debugf("chatRepo.ListByUser: skip %s: %v", d.ID, err)
			continue
		}
		chats = append(chats, c)
	}
	return chats, nil
}
