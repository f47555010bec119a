package ws

import (
	"time"

	"github.com/edume/internal/model"
)

type EventType string

const (
	// client -> server
	EventFeedSubscribe  EventType = "feed.subscribe"
	EventFeedFilter     EventType = "feed.filter"
	EventChatsSubscribe EventType = "chats.subscribe"
	EventChatOpen       EventType = "chat.open"
	EventChatClose      EventType = "chat.close"
	EventMessageSend    EventType = "message.send"

	// server -> client
	EventFeedSnapshot     EventType = "feed.snapshot"
	EventChatsSnapshot    EventType = "chats.snapshot"
	EventMessagesSnapshot EventType = "messages.snapshot"
	EventMessageFailed    EventType = "message.failed"
	EventError            EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type   EventType `json:"type"`
	ChatID string    `json:"chat_id,omitempty"`
	Text   string    `json:"text,omitempty"`

	// feed.subscribe / feed.filter
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	RadiusMeters float64  `json:"radius_meters,omitempty"`
	Category     string   `json:"category,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type FeedSnapshotPayload struct {
	Posts []PostView `json:"posts"`
}

type ChatsSnapshotPayload struct {
	Chats []ChatView `json:"chats"`
}

type MessagesSnapshotPayload struct {
	ChatID   string          `json:"chat_id"`
	Messages []model.Message `json:"messages"`
}

// MessageFailedPayload tells the sender an optimistic message was rolled back.
type MessageFailedPayload struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// PostView is a post with its card display fields.
type PostView struct {
	model.Post
	PriceDisplay string `json:"price_display,omitempty"`
	TimeAgo      string `json:"time_ago"`
}

func NewPostView(p model.Post, now time.Time) PostView {
	v := PostView{Post: p, TimeAgo: p.TimeAgo(now)}
	if s, ok := p.PriceDisplay(); ok {
		v.PriceDisplay = s
	}
	return v
}

func NewPostViews(posts []model.Post, now time.Time) []PostView {
	out := make([]PostView, len(posts))
	for i, p := range posts {
		out[i] = NewPostView(p, now)
	}
	return out
}

// ChatView is a chat as seen by one participant.
type ChatView struct {
	model.Chat
	OtherParticipantID   string `json:"other_participant_id"`
	OtherParticipantName string `json:"other_participant_name"`
	LastMessageAgo       string `json:"last_message_ago,omitempty"`
}

func NewChatView(c model.Chat, viewerID string, now time.Time) ChatView {
	v := ChatView{
		Chat:                 c,
		OtherParticipantID:   c.OtherParticipantID(viewerID),
		OtherParticipantName: c.OtherParticipantName(viewerID),
	}
	if ago, ok := c.LastMessageAgo(now); ok {
		v.LastMessageAgo = ago
	}
	return v
}
