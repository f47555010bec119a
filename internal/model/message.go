package model

import (
	"fmt"
	"sort"
	"time"
)

type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Before orders messages by timestamp, ties broken by id.
func (m *Message) Before(o *Message) bool {
	if !m.Timestamp.Equal(o.Timestamp) {
		return m.Timestamp.Before(o.Timestamp)
	}
	return m.ID < o.ID
}

// SortMessages sorts in place, oldest first.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(&msgs[j]) })
}

func (m *Message) ToDocument() map[string]any {
	return map[string]any{
		"id":         m.ID,
		"chatId":     m.ChatID,
		"senderId":   m.SenderID,
		"senderName": m.SenderName,
		"text":       m.Text,
		"timestamp":  m.Timestamp,
	}
}

func MessageFromDocument(id string, data map[string]any) (Message, error) {
	f := fields{data: data}
	m := Message{
		ID:         f.stringOr("id", id),
		ChatID:     f.requiredString("chatId"),
		SenderID:   f.requiredString("senderId"),
		SenderName: f.requiredString("senderName"),
		Text:       f.requiredString("text"),
		Timestamp:  f.timeOr("timestamp", time.Time{}),
	}
	if f.err != nil {
		return Message{}, fmt.Errorf("message %s: %w", id, f.err)
	}
	return m, nil
}
