package ws

import (
	"context"
	"sync"
	"time"

	"github.com/edume/internal/chat"
	"github.com/edume/internal/logger"
	"github.com/edume/internal/messaging"
	"github.com/edume/internal/repository"
	"github.com/edume/internal/storage"
)

// Options: лимиты соединений и таймауты WebSocket.
type Options struct {
	MaxConns            int
	SendBuffer          int
	WriteWait           time.Duration
	PongWait            time.Duration
	MaxMessageSize      int64
	DefaultRadiusMeters float64
}

func (o *Options) normalize() {
	if o.MaxConns <= 0 {
		o.MaxConns = 10000
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 16384
	}
	if o.DefaultRadiusMeters <= 0 {
		o.DefaultRadiusMeters = 80467
	}
}

// Hub tracks connections. Each Client owns its own feed, chat list and message stream;
// the hub only dispatches events and tears every connection down on shutdown.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	opts     Options
	store    storage.Store
	registry *chat.Registry
	chats    *repository.ChatRepository
	notifier messaging.Notifier

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(store storage.Store, registry *chat.Registry, notifier messaging.Notifier, opts Options) *Hub {
	opts.normalize()
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		opts:       opts,
		store:      store,
		registry:   registry,
		chats:      repository.NewChatRepository(store),
		notifier:   notifier,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
	logger.Infof("ws hub: closed %d connections", len(allClients))
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.opts.MaxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.opts.MaxConns, c.user.ID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.user.ID]; !ok {
		h.clients[c.user.ID] = make(map[*Client]struct{})
	}
	h.clients[c.user.ID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	logger.Debugf("ws connected user=%s", c.user.ID)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.user.ID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.user.ID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
	logger.Debugf("ws disconnected user=%s", c.user.ID)
}

// Count: число активных соединений.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// HandleMessage dispatches incoming WebSocket events to the connection's session.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	s := c.session
	switch msg.Type {
	case EventFeedSubscribe:
		s.subscribeFeed(msg)
	case EventFeedFilter:
		s.setFilter(msg)
	case EventChatsSubscribe:
		s.subscribeChats()
	case EventChatOpen:
		s.openChat(ctx, msg.ChatID)
	case EventChatClose:
		s.closeChat(msg.ChatID)
	case EventMessageSend:
		s.sendMessage(ctx, msg.ChatID, msg.Text)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.user.ID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
