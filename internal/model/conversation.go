// Package model defines data structures for the realtime platform.
package model

import (
	"time"
)

// Conversation represents a chat thread between two or more users.
type Conversation struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"` // group chats only
	IsGroup      bool      `json:"is_group"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Populated by the service when listing, not persisted.
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	Name           string   `json:"name,omitempty"`
	IsGroup        bool     `json:"is_group"`
}
