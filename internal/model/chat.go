package model

import (
	"fmt"
	"time"
)

// Chat is one thread between a post's author and one viewer.
// At most one Chat exists per (PostID, unordered participant pair).
type Chat struct {
	ID               string            `json:"id"`
	PostID           string            `json:"post_id"`
	PostTitle        string            `json:"post_title"`
	Participants     []string          `json:"participants"`
	ParticipantNames map[string]string `json:"participant_names"`
	LastMessage      *string           `json:"last_message,omitempty"`
	LastMessageTime  *time.Time        `json:"last_message_time,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// OtherParticipantID returns the first participant that is not the viewer.
func (c *Chat) OtherParticipantID(viewerID string) string {
	for _, id := range c.Participants {
		if id != viewerID {
			return id
		}
	}
	return ""
}

// OtherParticipantName falls back to "User" when the name map has no other entry.
func (c *Chat) OtherParticipantName(viewerID string) string {
	if other := c.OtherParticipantID(viewerID); other != "" {
		if name, ok := c.ParticipantNames[other]; ok && name != "" {
			return name
		}
	}
	for id, name := range c.ParticipantNames {
		if id != viewerID && name != "" {
			return name
		}
	}
	return "User"
}

// LastMessageAgo is absent until the first message has been sent.
func (c *Chat) LastMessageAgo(now time.Time) (string, bool) {
	if c.LastMessageTime == nil {
		return "", false
	}
	return relativeTime(*c.LastMessageTime, now), true
}

func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Chat) ToDocument() map[string]any {
	names := make(map[string]any, len(c.ParticipantNames))
	for k, v := range c.ParticipantNames {
		names[k] = v
	}
	participants := make([]any, len(c.Participants))
	for i, p := range c.Participants {
		participants[i] = p
	}
	doc := map[string]any{
		"id":               c.ID,
		"postId":           c.PostID,
		"postTitle":        c.PostTitle,
		"participants":     participants,
		"participantNames": names,
		"createdAt":        c.CreatedAt,
	}
	if c.LastMessage != nil {
		doc["lastMessage"] = *c.LastMessage
	}
	if c.LastMessageTime != nil {
		doc["lastMessageTime"] = *c.LastMessageTime
	}
	return doc
}

func ChatFromDocument(id string, data map[string]any) (Chat, error) {
	f := fields{data: data}
	c := Chat{
		ID:               f.stringOr("id", id),
		PostID:           f.requiredString("postId"),
		PostTitle:        f.requiredString("postTitle"),
		Participants:     f.stringSlice("participants"),
		ParticipantNames: f.stringMap("participantNames"),
		LastMessage:      f.optionalString("lastMessage"),
		LastMessageTime:  f.optionalTime("lastMessageTime"),
		CreatedAt:        f.timeOr("createdAt", time.Time{}),
	}
	if f.err != nil {
		return Chat{}, fmt.Errorf("chat %s: %w", id, f.err)
	}
	return c, nil
}
