package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/socialink/realtime-platform/internal/apperr"
	"github.com/socialink/realtime-platform/internal/model"
)

// Memory is a process-local implementation of every store interface, used by
// the default wiring and the tests. A relational store stands in for it in
// production deployments.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string]*model.Message
	notifications map[string]*model.Notification
	users         map[string]struct{}
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string]*model.Message),
		notifications: make(map[string]*model.Notification),
		users:         make(map[string]struct{}),
	}
}

// AddUser registers a user ID with the directory.
func (m *Memory) AddUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = struct{}{}
}

// UserExists implements UserDirectory.
func (m *Memory) UserExists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[id]
	return ok, nil
}

// --- ConversationStore ---

func (m *Memory) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (m *Memory) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	if !ok {
		return nil, apperr.NotFound("conversation not found")
	}
	return cloneConversation(conv), nil
}

func (m *Memory) ConversationsByUser(ctx context.Context, userID string) ([]*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Conversation
	for _, conv := range m.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *Memory) DirectConversation(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	// A direct conversation is a pair of distinct users; a self-pair would
	// match any two-participant conversation containing the user.
	if userA == userB {
		return nil, apperr.NotFound("conversation not found")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, conv := range m.conversations {
		if conv.IsGroup || len(conv.Participants) != 2 {
			continue
		}
		if conv.HasParticipant(userA) && conv.HasParticipant(userB) {
			return cloneConversation(conv), nil
		}
	}
	return nil, apperr.NotFound("conversation not found")
}

func (m *Memory) TouchConversation(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	conv.UpdatedAt = at
	return nil
}

// --- MessageStore ---

func (m *Memory) CreateMessage(ctx context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (m *Memory) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	return cloneMessage(msg), nil
}

func (m *Memory) MessagesByConversation(ctx context.Context, conversationID string, limit, offset int) ([]*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var msgs []*model.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			msgs = append(msgs, cloneMessage(msg))
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
	})
	if offset >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[offset:]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (m *Memory) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	msgs, err := m.MessagesByConversation(ctx, conversationID, 1, 0)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}
	return msgs[0], nil
}

func (m *Memory) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && msg.SenderID != userID && !msg.ReadByUser(userID) {
			count++
		}
	}
	return count, nil
}

// AddMessageReader performs the append-if-absent under the store lock, so
// concurrent calls for the same message never lose an addition.
func (m *Memory) AddMessageReader(ctx context.Context, messageID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return false, apperr.NotFound("message not found")
	}
	if msg.ReadByUser(userID) {
		return false, nil
	}
	msg.ReadBy = append(msg.ReadBy, userID)
	return true, nil
}

func (m *Memory) MarkConversationRead(ctx context.Context, conversationID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID || msg.ReadByUser(userID) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, userID)
		changed++
	}
	return changed, nil
}

func (m *Memory) DeleteMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[id]; !ok {
		return apperr.NotFound("message not found")
	}
	delete(m.messages, id)
	return nil
}

// --- NotificationStore ---

func (m *Memory) CreateNotification(ctx context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *n
	m.notifications[n.ID] = &clone
	return nil
}

func (m *Memory) NotificationsByRecipient(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	return m.notificationsWhere(userID, limit, func(n *model.Notification) bool {
		return true
	})
}

func (m *Memory) NotificationsSince(ctx context.Context, userID string, since time.Time, limit int) ([]*model.Notification, error) {
	return m.notificationsWhere(userID, limit, func(n *model.Notification) bool {
		return !n.CreatedAt.Before(since)
	})
}

func (m *Memory) notificationsWhere(userID string, limit int, keep func(*model.Notification) bool) ([]*model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Notification
	for _, n := range m.notifications {
		if n.RecipientID == userID && keep(n) {
			clone := *n
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) UnreadNotificationCount(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.notifications {
		if n.RecipientID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *Memory) MarkNotificationRead(ctx context.Context, id, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return apperr.NotFound("notification not found")
	}
	if n.RecipientID != recipientID {
		return apperr.Forbidden("notification belongs to another user")
	}
	n.IsRead = true
	return nil
}

func (m *Memory) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.RecipientID == userID {
			n.IsRead = true
		}
	}
	return nil
}

func cloneConversation(conv *model.Conversation) *model.Conversation {
	clone := *conv
	clone.Participants = append([]string(nil), conv.Participants...)
	return &clone
}

func cloneMessage(msg *model.Message) *model.Message {
	clone := *msg
	clone.ReadBy = append([]string(nil), msg.ReadBy...)
	return &clone
}
