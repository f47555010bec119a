// Package chat: идемпотентное создание чатов (один чат на пару пост/зритель)
// и живой список чатов пользователя.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/edume/internal/live"
	"github.com/edume/internal/logger"
	"github.com/edume/internal/model"
	"github.com/edume/internal/repository"
	"github.com/edume/internal/storage"
)

// createTimeout ограничивает общий вызов: он не наследует отмену контекста отдельного вызывающего.
const createTimeout = 15 * time.Second

var (
	ErrSelfChat            = errors.New("cannot start a chat with yourself")
	ErrInvalidParticipants = errors.New("chat participants must have ids")
	ErrInvalidPost         = errors.New("chat must reference a post")
)

// PostRef: пост, по которому открывается чат (заголовок денормализуется в чат).
type PostRef struct {
	ID    string
	Title string
}

// Registry: проверка «есть ли чат» и запись нового не атомарны между процессами.
// Конкурентные вызовы с одинаковыми (post, viewer) внутри процесса схлопываются в один;
// гонка между процессами принимается: возможен дубликат чата, побеждает последний писатель.
type Registry struct {
	store storage.Store
	chats *repository.ChatRepository
	group singleflight.Group

	now   func() time.Time
	newID func() string
}

func NewRegistry(store storage.Store) *Registry {
	return &Registry{
		store: store,
		chats: repository.NewChatRepository(store),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// CreateOrGet возвращает существующий чат зрителя по посту или создаёт новый.
func (r *Registry) CreateOrGet(ctx context.Context, post PostRef, owner, viewer model.Participant) (*model.Chat, error) {
	if strings.TrimSpace(post.ID) == "" {
		return nil, ErrInvalidPost
	}
	if owner.ID == "" || viewer.ID == "" {
		return nil, ErrInvalidParticipants
	}
	if owner.ID == viewer.ID {
		return nil, ErrSelfChat
	}
	key := post.ID + "\x00" + viewer.ID
	ch := r.group.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), createTimeout)
		defer cancel()
		return r.createOrGet(sctx, post, owner, viewer)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("chat.CreateOrGet: %w", ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		logger.Debugf("chat.CreateOrGet: joined in-flight call for post=%s viewer=%s", post.ID, viewer.ID)
	}
	c := *res.Val.(*model.Chat)
	return &c, nil
}

func (r *Registry) createOrGet(ctx context.Context, post PostRef, owner, viewer model.Participant) (*model.Chat, error) {
	existing, err := r.chats.FindByPostAndParticipant(ctx, post.ID, viewer.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("chat.CreateOrGet: %w", err)
	}
	c := &model.Chat{
		ID:           r.newID(),
		PostID:       post.ID,
		PostTitle:    post.Title,
		Participants: []string{viewer.ID, owner.ID},
		ParticipantNames: map[string]string{
			viewer.ID: viewer.Name,
			owner.ID:  owner.Name,
		},
		CreatedAt: r.now(),
	}
	if err := r.chats.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("chat.CreateOrGet: %w", err)
	}
	logger.Infof("chat created: id=%s post=%s", c.ID, post.ID)
	return c, nil
}

// LiveChats открывает живой список чатов пользователя: последние по сообщению первыми,
// чаты без сообщений в конце. Владелец вызывает Cancel.
func (r *Registry) LiveChats(ctx context.Context, userID string) (*live.View[model.Chat], error) {
	if userID == "" {
		return nil, ErrInvalidParticipants
	}
	return live.Open(ctx, r.store, repository.ListQuery(userID), model.ChatFromDocument)
}
