package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/edume/internal/feed"
	"github.com/edume/internal/live"
	"github.com/edume/internal/logger"
	"github.com/edume/internal/messaging"
	"github.com/edume/internal/model"
	"github.com/edume/internal/repository"
)

// session: live-подписки одного соединения. Всё, что открыто здесь, отменяется в close.
type session struct {
	c   *Client
	hub *Hub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	feed      *feed.Geofeed
	filter    feed.Filter
	chats     *live.View[model.Chat]
	stream    *messaging.Stream
	openChats map[string]context.CancelFunc
	members   map[string]bool
	closed    bool
}

func newSession(c *Client) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		c:         c,
		hub:       c.hub,
		ctx:       ctx,
		cancel:    cancel,
		feed:      feed.New(c.hub.store),
		stream:    messaging.New(c.hub.store, c.hub.notifier),
		openChats: make(map[string]context.CancelFunc),
		members:   make(map[string]bool),
	}
}

func (s *session) send(t EventType, payload any) {
	s.hub.sendToClient(s.c, OutgoingMessage{Type: t, Payload: payload})
}

func (s *session) fail(msg string) {
	s.send(EventError, msg)
}

// goForward вызывает emit на каждый сигнал changed до отмены ctx.
func (s *session) goForward(ctx context.Context, changed <-chan struct{}, emit func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				emit()
			}
		}
	}()
}

func (s *session) subscribeFeed(msg IncomingMessage) {
	f, err := feed.NewFilter(msg.Latitude, msg.Longitude, msg.RadiusMeters, msg.Category, s.hub.opts.DefaultRadiusMeters)
	if err != nil {
		s.fail("invalid feed filter")
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.filter = f
	started := s.feed.Changed() != nil
	if !started {
		if err := s.feed.Start(s.ctx); err != nil {
			s.mu.Unlock()
			logger.Errorf("ws feed subscribe user=%s: %v", s.c.user.ID, err)
			s.fail("failed to load feed")
			return
		}
		s.goForward(s.ctx, s.feed.Changed(), s.emitFeed)
	}
	s.mu.Unlock()
	if started {
		s.emitFeed()
	}
}

func (s *session) setFilter(msg IncomingMessage) {
	f, err := feed.NewFilter(msg.Latitude, msg.Longitude, msg.RadiusMeters, msg.Category, s.hub.opts.DefaultRadiusMeters)
	if err != nil {
		s.fail("invalid feed filter")
		return
	}
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	s.emitFeed()
}

func (s *session) emitFeed() {
	s.mu.Lock()
	f := s.filter
	s.mu.Unlock()
	posts := s.feed.Visible(f)
	s.send(EventFeedSnapshot, FeedSnapshotPayload{Posts: NewPostViews(posts, time.Now())})
}

func (s *session) subscribeChats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.chats != nil {
		return
	}
	v, err := s.hub.registry.LiveChats(s.ctx, s.c.user.ID)
	if err != nil {
		logger.Errorf("ws chats subscribe user=%s: %v", s.c.user.ID, err)
		s.fail("failed to load chats")
		return
	}
	s.chats = v
	s.goForward(s.ctx, v.Changed(), s.emitChats)
}

func (s *session) emitChats() {
	s.mu.Lock()
	v := s.chats
	s.mu.Unlock()
	if v == nil {
		return
	}
	now := time.Now()
	items := v.Items()
	out := make([]ChatView, len(items))
	for i, c := range items {
		out[i] = NewChatView(c, s.c.user.ID, now)
	}
	s.send(EventChatsSnapshot, ChatsSnapshotPayload{Chats: out})
}

// isMember проверяет участие в чате один раз на чат за сессию.
func (s *session) isMember(ctx context.Context, chatID string) (bool, error) {
	s.mu.Lock()
	ok, cached := s.members[chatID]
	s.mu.Unlock()
	if cached {
		return ok, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := s.hub.chats.GetByID(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok = c.HasParticipant(s.c.user.ID)
	s.mu.Lock()
	s.members[chatID] = ok
	s.mu.Unlock()
	return ok, nil
}

func (s *session) openChat(ctx context.Context, chatID string) {
	if chatID == "" {
		s.fail("chat_id required")
		return
	}
	ok, err := s.isMember(ctx, chatID)
	if err != nil {
		logger.Errorf("ws check membership chat=%s user=%s: %v", chatID, s.c.user.ID, err)
		s.fail("internal error")
		return
	}
	if !ok {
		s.fail("not a member")
		return
	}
	if err := s.stream.Subscribe(s.ctx, chatID); err != nil {
		logger.Errorf("ws open chat=%s user=%s: %v", chatID, s.c.user.ID, err)
		s.fail("failed to open chat")
		return
	}
	s.mu.Lock()
	if _, running := s.openChats[chatID]; !running && !s.closed {
		fctx, fcancel := context.WithCancel(s.ctx)
		s.openChats[chatID] = fcancel
		s.goForward(fctx, s.stream.Changed(chatID), func() { s.emitMessages(chatID) })
	}
	s.mu.Unlock()
}

func (s *session) closeChat(chatID string) {
	s.mu.Lock()
	cancel := s.openChats[chatID]
	delete(s.openChats, chatID)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.stream.Unsubscribe(chatID)
}

func (s *session) emitMessages(chatID string) {
	s.send(EventMessagesSnapshot, MessagesSnapshotPayload{ChatID: chatID, Messages: s.stream.Messages(chatID)})
}

func (s *session) sendMessage(ctx context.Context, chatID, text string) {
	ok, err := s.isMember(ctx, chatID)
	if err != nil {
		logger.Errorf("ws check membership chat=%s user=%s: %v", chatID, s.c.user.ID, err)
		s.fail("internal error")
		return
	}
	if !ok {
		s.fail("not a member")
		return
	}
	d, err := s.stream.Send(s.ctx, chatID, s.c.user, text)
	if errors.Is(err, messaging.ErrEmptyMessage) {
		s.fail("message text required")
		return
	}
	if err != nil {
		s.fail("failed to send message")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := d.Wait(s.ctx); err != nil && s.ctx.Err() == nil {
			s.send(EventMessageFailed, MessageFailedPayload{
				ChatID:    chatID,
				MessageID: d.Message.ID,
				Error:     "failed to send message",
			})
		}
	}()
}

// close отменяет подписки соединения и ждёт начатые доставки.
func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	v := s.chats
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.feed.Cancel()
	if v != nil {
		v.Cancel()
	}
	s.stream.Close()
}
