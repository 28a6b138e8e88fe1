// Package store defines the durable storage collaborator interfaces the
// realtime core depends on, plus an in-memory implementation used by the
// default wiring and the tests. All methods may block on I/O; callers must
// not hold in-memory locks across them.
package store

import (
	"context"
	"time"

	"github.com/socialink/realtime-platform/internal/model"
)

// ConversationStore persists conversation records.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	// ConversationsByUser returns every conversation the user participates
	// in, most recently updated first.
	ConversationsByUser(ctx context.Context, userID string) ([]*model.Conversation, error)
	// DirectConversation returns the unique non-group conversation whose
	// participants are exactly {userA, userB}, or a not-found error.
	// Symmetric in argument order.
	DirectConversation(ctx context.Context, userA, userB string) (*model.Conversation, error)
	// TouchConversation bumps the conversation's update timestamp.
	TouchConversation(ctx context.Context, id string, at time.Time) error
}

// MessageStore persists message records and their read-by sets.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	// MessagesByConversation returns messages newest first.
	MessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*model.Message, error)
	LastMessage(ctx context.Context, conversationID string) (*model.Message, error)
	// UnreadCount counts messages in the conversation not sent by userID
	// and whose read-by set excludes userID.
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)
	// AddMessageReader atomically adds userID to the message's read-by set.
	// Idempotent; reports whether the set changed. Implementations must not
	// perform a read-modify-write that can lose concurrent additions.
	AddMessageReader(ctx context.Context, messageID, userID string) (bool, error)
	// MarkConversationRead adds userID to the read-by set of every message
	// in the conversation not already containing it, returning how many
	// messages changed.
	MarkConversationRead(ctx context.Context, conversationID, userID string) (int, error)
	// DeleteMessage removes the message permanently.
	DeleteMessage(ctx context.Context, id string) error
}

// NotificationStore persists notification records.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	// NotificationsByRecipient returns up to limit notifications for the
	// user, newest first.
	NotificationsByRecipient(ctx context.Context, userID string, limit int) ([]*model.Notification, error)
	// NotificationsSince returns up to limit notifications created at or
	// after since, newest first.
	NotificationsSince(ctx context.Context, userID string, since time.Time, limit int) ([]*model.Notification, error)
	UnreadNotificationCount(ctx context.Context, userID string) (int, error)
	// MarkNotificationRead flips the read flag, scoped to the recipient:
	// a mismatched recipient is a forbidden error.
	MarkNotificationRead(ctx context.Context, id, recipientID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
}

// UserDirectory is the identity collaborator. The realtime core only needs
// existence checks; registration and profiles live elsewhere.
type UserDirectory interface {
	UserExists(ctx context.Context, id string) (bool, error)
}
