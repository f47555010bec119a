// Package messaging: живые сообщения чатов с оптимистичной отправкой.
//
// Отправка: сообщение синхронно добавляется в проекцию чата, затем отложенная задача пишет
// его в хранилище и обновляет кэш последнего сообщения чата. Ошибка любой из записей
// удаляет сообщение из проекции по id. Подтверждение приходит push-снимком подписки,
// повторная доставка того же id ничего не меняет.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edume/internal/logger"
	"github.com/edume/internal/model"
	"github.com/edume/internal/repository"
	"github.com/edume/internal/storage"
)

var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrClosed       = errors.New("message stream closed")
)

// deliveryTimeout ограничивает отложенную запись: она не наследует отмену контекста Send.
const deliveryTimeout = 30 * time.Second

// Notifier: внешний сервис уведомлений (push.Client). Ошибки только логируются.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

// Stream владеет подписками на сообщения чатов одного потребителя.
// Не больше одной активной подписки на chatID.
type Stream struct {
	store    storage.Store
	messages *repository.MessageRepository
	chats    *repository.ChatRepository
	notifier Notifier

	// subMu сериализует Subscribe/Unsubscribe/Close: смена подписки чата атомарна.
	subMu   sync.Mutex
	mu      sync.Mutex
	threads map[string]*thread
	closed  bool
	wg      sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// New создаёт поток. notifier может быть nil.
func New(store storage.Store, notifier Notifier) *Stream {
	return &Stream{
		store:    store,
		messages: repository.NewMessageRepository(store),
		chats:    repository.NewChatRepository(store),
		notifier: notifier,
		threads:  make(map[string]*thread),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Subscribe открывает live-запрос сообщений чата. Существующая подписка на тот же chatID
// отменяется до установки новой; неподтверждённые отправки переносятся в новую проекцию,
// в том числе из проекции, созданной Send без подписки.
func (s *Stream) Subscribe(ctx context.Context, chatID string) error {
	if chatID == "" {
		return fmt.Errorf("messaging.Subscribe: empty chat id")
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.threads[chatID]
	s.mu.Unlock()

	// Старая проекция остаётся в карте до замены: отправки и откаты в этом окне не теряются.
	if old != nil {
		old.cancel()
	}

	sub, err := s.store.Subscribe(ctx, repository.ChatQuery(chatID))
	if err != nil {
		// Проекция остаётся без подписки: неподтверждённые отправки и их откаты не теряются.
		if old != nil {
			s.mu.Lock()
			s.threads[chatID] = newThread(chatID, nil, old)
			s.mu.Unlock()
		}
		return fmt.Errorf("messaging.Subscribe %s: %w", chatID, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Cancel()
		return ErrClosed
	}
	s.threads[chatID] = newThread(chatID, sub, old)
	s.mu.Unlock()
	return nil
}

// Unsubscribe отменяет подписку и отбрасывает проекцию. Повторный вызов безопасен.
func (s *Stream) Unsubscribe(chatID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.mu.Lock()
	t := s.threads[chatID]
	delete(s.threads, chatID)
	s.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

// Close отменяет все подписки и ждёт завершения начатых доставок. Повторный вызов безопасен.
func (s *Stream) Close() {
	s.subMu.Lock()
	s.mu.Lock()
	s.closed = true
	threads := s.threads
	s.threads = make(map[string]*thread)
	s.mu.Unlock()
	for _, t := range threads {
		t.cancel()
	}
	s.subMu.Unlock()
	s.wg.Wait()
}

func (s *Stream) thread(chatID string) *thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threads[chatID]
}

// Subscribed: есть ли активная подписка на чат.
func (s *Stream) Subscribed(chatID string) bool {
	t := s.thread(chatID)
	return t != nil && t.sub != nil
}

// Messages: текущая проекция чата: подтверждённые и ещё не подтверждённые сообщения,
// по времени, при равенстве по id.
func (s *Stream) Messages(chatID string) []model.Message {
	t := s.thread(chatID)
	if t == nil {
		return nil
	}
	return t.snapshot()
}

// Changed сигнализирует об изменении проекции чата. Канал переживает переподписку;
// без проекции, nil.
func (s *Stream) Changed(chatID string) <-chan struct{} {
	t := s.thread(chatID)
	if t == nil {
		return nil
	}
	return t.changed
}

// Send добавляет сообщение в проекцию до любого I/O и запускает отложенную запись.
// Нет проекции чата: создаётся проекция без подписки, её подхватит следующий Subscribe.
// Пустой после trim текст, ErrEmptyMessage без изменений и без I/O; иначе текст хранится как есть.
func (s *Stream) Send(ctx context.Context, chatID string, sender model.Participant, text string) (*Delivery, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if chatID == "" || sender.ID == "" {
		return nil, fmt.Errorf("messaging.Send: chat id and sender id are required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	msg := model.Message{
		ID:         s.newID(),
		ChatID:     chatID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Text:       text,
		Timestamp:  s.now(),
	}
	t := s.threads[chatID]
	if t == nil {
		t = newThread(chatID, nil, nil)
		s.threads[chatID] = t
	}
	t.addPending(msg)
	s.wg.Add(1)
	s.mu.Unlock()

	d := newDelivery(msg)
	go s.deliver(context.WithoutCancel(ctx), d)
	return d, nil
}

func (s *Stream) deliver(ctx context.Context, d *Delivery) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	msg := d.Message
	err := s.messages.Create(ctx, &msg)
	if err == nil {
		err = s.chats.UpdateLastMessage(ctx, msg.ChatID, msg.Text, msg.Timestamp)
		if err != nil {
			// Сообщение без обновлённого чата удаляем, чтобы push не вернул откатанное.
			if delErr := s.messages.Delete(ctx, msg.ID); delErr != nil {
				logger.Warnf("messaging: compensate %s: %v", msg.ID, delErr)
			}
		}
	}
	if err != nil {
		s.rollback(msg.ChatID, msg.ID)
		logger.Errorf("messaging: send %s to chat %s failed: %v", msg.ID, msg.ChatID, err)
		d.finish(fmt.Errorf("messaging.Send: %w", err))
		return
	}
	d.finish(nil)
	s.notify(ctx, msg)
}

// rollback удаляет сообщение из текущей проекции чата (под s.mu, чтобы не разойтись с переподпиской).
func (s *Stream) rollback(chatID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.threads[chatID]; t != nil {
		t.remove(id)
	}
}

func (s *Stream) notify(ctx context.Context, msg model.Message) {
	if s.notifier == nil {
		return
	}
	c, err := s.chats.GetByID(ctx, msg.ChatID)
	if err != nil {
		logger.Warnf("messaging: notify chat %s: %v", msg.ChatID, err)
		return
	}
	for _, uid := range c.Participants {
		if uid == msg.SenderID {
			continue
		}
		s.notifier.Notify(ctx, uid, msg.SenderName, msg.Text, map[string]string{
			"chat_id": msg.ChatID,
			"post_id": c.PostID,
		})
	}
}

// thread: проекция одного чата: подтверждённые push-снимком сообщения плюс
// оптимистичные, ещё не пришедшие в снимке. Все переходы под mu.
// sub == nil: проекция без подписки (Send до Subscribe или после неудачного Subscribe).
type thread struct {
	chatID string
	sub    *storage.Subscription
	done   chan struct{}

	mu        sync.Mutex
	confirmed []model.Message
	pending   map[string]model.Message
	merged    []model.Message
	changed   chan struct{}
}

func newThread(chatID string, sub *storage.Subscription, prev *thread) *thread {
	t := &thread{
		chatID:  chatID,
		sub:     sub,
		done:    make(chan struct{}),
		pending: make(map[string]model.Message),
		changed: make(chan struct{}, 1),
	}
	if prev != nil {
		prev.mu.Lock()
		t.confirmed = prev.confirmed
		for id, m := range prev.pending {
			t.pending[id] = m
		}
		t.changed = prev.changed
		prev.mu.Unlock()
		t.rebuildLocked()
	}
	if sub == nil {
		close(t.done)
		return t
	}
	go t.run()
	return t
}

func (t *thread) run() {
	defer close(t.done)
	for {
		select {
		case snap := <-t.sub.C():
			t.replace(snap)
		case <-t.sub.Done():
			return
		}
	}
}

// cancel останавливает подписку; проекция остаётся доступной для переноса.
func (t *thread) cancel() {
	if t.sub != nil {
		t.sub.Cancel()
	}
	<-t.done
}

// replace применяет полный снимок хранилища.
func (t *thread) replace(snap storage.Snapshot) {
	msgs := make([]model.Message, 0, len(snap.Docs))
	for _, d := range snap.Docs {
		m, err := model.MessageFromDocument(d.ID, d.Data)
		if err != nil {
			logger.Debugf("messaging: chat %s: skip %s: %v", t.chatID, d.ID, err)
			continue
		}
		msgs = append(msgs, m)
	}
	t.mu.Lock()
	t.confirmed = msgs
	for _, m := range msgs {
		delete(t.pending, m.ID)
	}
	t.rebuildLocked()
	t.mu.Unlock()
	t.signal()
}

func (t *thread) addPending(m model.Message) {
	t.mu.Lock()
	t.pending[m.ID] = m
	t.rebuildLocked()
	t.mu.Unlock()
	t.signal()
}

// remove: откат по id; повторный вызов ничего не меняет.
func (t *thread) remove(id string) {
	t.mu.Lock()
	_, wasPending := t.pending[id]
	delete(t.pending, id)
	n := len(t.confirmed)
	t.confirmed = without(t.confirmed, id)
	changed := wasPending || n != len(t.confirmed)
	if changed {
		t.rebuildLocked()
	}
	t.mu.Unlock()
	if changed {
		t.signal()
	}
}

func (t *thread) rebuildLocked() {
	out := make([]model.Message, 0, len(t.confirmed)+len(t.pending))
	seen := make(map[string]struct{}, len(t.confirmed))
	for _, m := range t.confirmed {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	for id, m := range t.pending {
		if _, dup := seen[id]; !dup {
			out = append(out, m)
		}
	}
	model.SortMessages(out)
	t.merged = out
}

func (t *thread) snapshot() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.merged))
	copy(out, t.merged)
	return out
}

func (t *thread) signal() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}

func without(msgs []model.Message, id string) []model.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
