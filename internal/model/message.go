package model

import (
	"time"
)

// MessageType classifies the content of a message.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeSystem:
		return true
	}
	return false
}

// Message represents a single chat message.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type"`
	CreatedAt      time.Time   `json:"created_at"`

	// ReadBy is the set of user IDs that have acknowledged the message.
	// The sender is always a member from creation.
	ReadBy []string `json:"read_by"`

	// IsRead is populated per requester when listing, not persisted.
	IsRead bool `json:"is_read"`
}

// ReadByUser reports whether the user is in the read-by set.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	ConversationID string      `json:"conversation_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"type,omitempty"`
}
