package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edume/internal/chat"
	"github.com/edume/internal/logger"
	"github.com/edume/internal/model"
	"github.com/edume/internal/storage"
	"github.com/edume/internal/storage/memory"
)

type env struct {
	store *memory.Client
	hub   *Hub
	reg   *chat.Registry
	srv   *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	reg := chat.NewRegistry(store)
	hub := NewHub(store, reg, nil, Options{PongWait: 5 * time.Second, WriteWait: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := model.Participant{ID: r.URL.Query().Get("user_id"), Name: r.URL.Query().Get("user_name")}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cctx, ccancel := context.WithCancel(context.Background())
		c := NewClient(hub, conn, user)
		c.Start(cctx, ccancel)
		hub.Register(c)
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.done
		store.Close()
	})
	return &env{store: store, hub: hub, reg: reg, srv: srv}
}

func (e *env) dial(t *testing.T, userID, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?user_id=" + url.QueryEscape(userID) + "&user_name=" + url.QueryEscape(name)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func send(t *testing.T, conn *websocket.Conn, msg IncomingMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil читает события, пока match не вернёт true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(event) bool) event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev event
		require.NoError(t, conn.ReadJSON(&ev))
		if match(ev) {
			return ev
		}
	}
}

func ofType(typ EventType) func(event) bool {
	return func(ev event) bool { return ev.Type == typ }
}

func putPost(t *testing.T, store storage.Store, id string, lat, lon float64) {
	t.Helper()
	p := model.Post{
		ID: id, Title: "Post " + id, Description: "d", Category: model.CategoryTech,
		Timestamp: time.Now(), UserID: "owner", UserName: "Olga",
		Latitude: &lat, Longitude: &lon,
	}
	require.NoError(t, store.Put(context.Background(), storage.CollectionPosts, id, p.ToDocument()))
}

func TestFeedSubscribe_LiveSnapshots(t *testing.T) {
	e := newEnv(t)
	putPost(t, e.store, "near", 0, 0.0001)
	putPost(t, e.store, "far", 10, 10)

	conn := e.dial(t, "viewer", "Val")
	lat, lon := 0.0, 0.0
	send(t, conn, IncomingMessage{Type: EventFeedSubscribe, Latitude: &lat, Longitude: &lon, RadiusMeters: 1000})

	var payload FeedSnapshotPayload
	ev := readUntil(t, conn, ofType(EventFeedSnapshot))
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	require.Len(t, payload.Posts, 1)
	assert.Equal(t, "near", payload.Posts[0].ID)

	putPost(t, e.store, "nearer", 0, 0.00005)
	readUntil(t, conn, func(ev event) bool {
		if ev.Type != EventFeedSnapshot {
			return false
		}
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		return len(payload.Posts) == 2
	})

	send(t, conn, IncomingMessage{Type: EventFeedFilter, Category: "Pets"})
	readUntil(t, conn, func(ev event) bool {
		if ev.Type != EventFeedSnapshot {
			return false
		}
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		return len(payload.Posts) == 0
	})
}

func TestChatFlow_OpenSendAndList(t *testing.T) {
	e := newEnv(t)
	c, err := e.reg.CreateOrGet(context.Background(),
		chat.PostRef{ID: "p1", Title: "Math tutor"},
		model.Participant{ID: "owner", Name: "Olga"},
		model.Participant{ID: "viewer", Name: "Val"})
	require.NoError(t, err)

	viewer := e.dial(t, "viewer", "Val")
	send(t, viewer, IncomingMessage{Type: EventChatsSubscribe})
	var chats ChatsSnapshotPayload
	ev := readUntil(t, viewer, ofType(EventChatsSnapshot))
	require.NoError(t, json.Unmarshal(ev.Payload, &chats))
	require.Len(t, chats.Chats, 1)
	assert.Equal(t, "Olga", chats.Chats[0].OtherParticipantName)

	send(t, viewer, IncomingMessage{Type: EventChatOpen, ChatID: c.ID})
	readUntil(t, viewer, ofType(EventMessagesSnapshot))

	send(t, viewer, IncomingMessage{Type: EventMessageSend, ChatID: c.ID, Text: "Hi there"})
	var msgs MessagesSnapshotPayload
	readUntil(t, viewer, func(ev event) bool {
		if ev.Type != EventMessagesSnapshot {
			return false
		}
		require.NoError(t, json.Unmarshal(ev.Payload, &msgs))
		return len(msgs.Messages) == 1
	})
	assert.Equal(t, "Hi there", msgs.Messages[0].Text)
	assert.Equal(t, c.ID, msgs.ChatID)

	readUntil(t, viewer, func(ev event) bool {
		if ev.Type != EventChatsSnapshot {
			return false
		}
		require.NoError(t, json.Unmarshal(ev.Payload, &chats))
		return len(chats.Chats) == 1 && chats.Chats[0].LastMessage != nil
	})
	assert.Equal(t, "Hi there", *chats.Chats[0].LastMessage)

	send(t, viewer, IncomingMessage{Type: EventMessageSend, ChatID: c.ID, Text: "   "})
	ev = readUntil(t, viewer, ofType(EventError))
	assert.Contains(t, string(ev.Payload), "message text required")
}

func TestChatOpen_RejectsNonMember(t *testing.T) {
	e := newEnv(t)
	c, err := e.reg.CreateOrGet(context.Background(),
		chat.PostRef{ID: "p1", Title: "Math tutor"},
		model.Participant{ID: "owner", Name: "Olga"},
		model.Participant{ID: "viewer", Name: "Val"})
	require.NoError(t, err)

	stranger := e.dial(t, "stranger", "Sam")
	send(t, stranger, IncomingMessage{Type: EventChatOpen, ChatID: c.ID})
	ev := readUntil(t, stranger, ofType(EventError))
	assert.Contains(t, string(ev.Payload), "not a member")

	send(t, stranger, IncomingMessage{Type: EventMessageSend, ChatID: c.ID, Text: "hello"})
	ev = readUntil(t, stranger, ofType(EventError))
	assert.Contains(t, string(ev.Payload), "not a member")

	docs, err := e.store.Get(context.Background(), storage.Collection(storage.CollectionMessages))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUnknownAndMalformedEvents(t *testing.T) {
	e := newEnv(t)
	conn := e.dial(t, "viewer", "Val")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := readUntil(t, conn, ofType(EventError))
	assert.Contains(t, string(ev.Payload), "malformed")

	send(t, conn, IncomingMessage{Type: "feed.unsubscribe.everything"})
	ev = readUntil(t, conn, ofType(EventError))
	assert.Contains(t, string(ev.Payload), "unknown")
}

func TestDisconnectReleasesSubscriptions(t *testing.T) {
	e := newEnv(t)
	conn := e.dial(t, "viewer", "Val")
	send(t, conn, IncomingMessage{Type: EventFeedSubscribe})
	send(t, conn, IncomingMessage{Type: EventChatsSubscribe})
	readUntil(t, conn, ofType(EventChatsSnapshot))

	require.Eventually(t, func() bool { return e.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, e.store.ActiveSubscriptions(storage.CollectionPosts))
	assert.Equal(t, 1, e.store.ActiveSubscriptions(storage.CollectionChats))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return e.hub.Count() == 0 &&
			e.store.ActiveSubscriptions(storage.CollectionPosts) == 0 &&
			e.store.ActiveSubscriptions(storage.CollectionChats) == 0
	}, 3*time.Second, 10*time.Millisecond)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestClient_LogsFailedCloseFrame(t *testing.T) {
	out := &syncBuffer{}
	logger.SetOutput(out)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	e := newEnv(t)
	e.dial(t, "viewer", "Val")
	require.Eventually(t, func() bool { return e.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	e.hub.mu.RLock()
	var c *Client
	for cl := range e.hub.clients["viewer"] {
		c = cl
	}
	e.hub.mu.RUnlock()
	require.NotNil(t, c)

	// Соединение закрыто раньше отмены: close-фрейм уже не отправить.
	require.NoError(t, c.conn.Close())
	c.Close()
	c.Wait()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ws close message user=viewer")
	}, 2*time.Second, 10*time.Millisecond)
}
