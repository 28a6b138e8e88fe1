package model

import (
	"time"
)

// NotificationType classifies a user notification.
type NotificationType string

const (
	NotificationTypeLike    NotificationType = "like"
	NotificationTypeComment NotificationType = "comment"
	NotificationTypeFollow  NotificationType = "follow"
)

// Notification represents a user-level notification produced by feed actions.
// Notifications are never deleted; only the read flag is mutated.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	RecipientID string           `json:"recipient_id"`
	ActorID     string           `json:"actor_id,omitempty"`
	PostID      string           `json:"post_id,omitempty"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}
