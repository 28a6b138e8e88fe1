// Package service provides business logic for conversations, messages and
// notifications, independent of transport.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/socialink/realtime-platform/internal/apperr"
	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/internal/store"
	"github.com/socialink/realtime-platform/pkg/logger"
	"github.com/socialink/realtime-platform/pkg/metrics"
)

// ConversationService orchestrates conversation and message persistence.
type ConversationService struct {
	conversations store.ConversationStore
	messages      store.MessageStore
	users         store.UserDirectory
	logger        *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(
	conversations store.ConversationStore,
	messages store.MessageStore,
	users store.UserDirectory,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		logger:        log,
	}
}

// CreateConversation creates a conversation with the requester included in
// the participant set. A two-party non-group request returns the existing
// direct conversation between the pair if one exists.
func (s *ConversationService) CreateConversation(ctx context.Context, requesterID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	if len(req.ParticipantIDs) == 0 {
		return nil, apperr.Validation("at least one participant is required")
	}
	if !req.IsGroup && len(req.ParticipantIDs) != 1 {
		return nil, apperr.Validation("a direct conversation has exactly two participants")
	}
	if !req.IsGroup && req.ParticipantIDs[0] == requesterID {
		return nil, apperr.Validation("cannot start a direct conversation with yourself")
	}

	participants := dedupe(append([]string{requesterID}, req.ParticipantIDs...))
	for _, id := range participants {
		exists, err := s.users.UserExists(ctx, id)
		if err != nil {
			return nil, apperr.Storage("user lookup failed", err)
		}
		if !exists {
			return nil, apperr.NotFound("one or more participants not found")
		}
	}

	// Direct conversations are unique per pair by lookup-before-create.
	// Concurrent creates for the same pair can still race; the first record
	// found wins on subsequent lookups.
	if !req.IsGroup {
		if conv, err := s.FindDirectConversation(ctx, requesterID, req.ParticipantIDs[0]); err == nil {
			return conv, nil
		} else if !apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:           uuid.Must(uuid.NewV7()).String(),
		IsGroup:      req.IsGroup,
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.IsGroup {
		conv.Name = req.Name
	}

	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, apperr.Storage("failed to create conversation", err)
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.Bool("is_group", conv.IsGroup),
		zap.Int("participants", len(conv.Participants)),
	)
	metrics.ConversationsTotal.Inc()

	return conv, nil
}

// FindDirectConversation returns the unique non-group conversation containing
// exactly both users. Symmetric in argument order.
func (s *ConversationService) FindDirectConversation(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	return s.conversations.DirectConversation(ctx, userA, userB)
}

// GetUserConversations returns all conversations the user participates in,
// most recently updated first, annotated with last message and unread count.
func (s *ConversationService) GetUserConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	convs, err := s.conversations.ConversationsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Storage("failed to list conversations", err)
	}
	for _, conv := range convs {
		last, err := s.messages.LastMessage(ctx, conv.ID)
		if err != nil {
			return nil, apperr.Storage("failed to load last message", err)
		}
		unread, err := s.messages.UnreadCount(ctx, conv.ID, userID)
		if err != nil {
			return nil, apperr.Storage("failed to count unread messages", err)
		}
		conv.LastMessage = last
		conv.UnreadCount = unread
	}
	return convs, nil
}

// GetConversationByID fetches a conversation the requester participates in.
func (s *ConversationService) GetConversationByID(ctx context.Context, conversationID, requesterID string) (*model.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, apperr.Forbidden("access denied to this conversation")
	}
	return conv, nil
}

// SendMessage persists a new message with the sender pre-seeded in read-by
// and touches the conversation so recency ordering stays correct. The caller
// broadcasts only after this returns, so a client fetching messages right
// after the broadcast always finds the message stored.
func (s *ConversationService) SendMessage(ctx context.Context, senderID string, req *model.SendMessageRequest) (*model.Message, error) {
	if req.Content == "" {
		return nil, apperr.Validation("message content cannot be empty")
	}
	msgType := req.Type
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, apperr.Validation("unknown message type")
	}

	if _, err := s.GetConversationByID(ctx, req.ConversationID, senderID); err != nil {
		return nil, err
	}

	now := time.Now()
	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: req.ConversationID,
		SenderID:       senderID,
		Content:        req.Content,
		Type:           msgType,
		CreatedAt:      now,
		ReadBy:         []string{senderID},
		IsRead:         true,
	}

	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, apperr.Storage("failed to save message", err)
	}
	if err := s.conversations.TouchConversation(ctx, req.ConversationID, now); err != nil {
		s.logger.Warn("failed to touch conversation",
			zap.String("conversation_id", req.ConversationID), zap.Error(err))
	}

	metrics.MessagesTotal.WithLabelValues(string(msgType)).Inc()
	return msg, nil
}

// GetMessages returns messages in chronological order, each annotated with
// whether the requester has read it.
func (s *ConversationService) GetMessages(ctx context.Context, conversationID, requesterID string, limit, offset int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.GetConversationByID(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.MessagesByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, apperr.Storage("failed to load messages", err)
	}

	// Storage yields newest first; delivery is chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	for _, msg := range msgs {
		msg.IsRead = msg.ReadByUser(requesterID)
	}
	return msgs, nil
}

// MarkMessageAsRead adds the user to the message's read-by set. Idempotent.
// Returns the message's conversation ID for receipt targeting.
func (s *ConversationService) MarkMessageAsRead(ctx context.Context, messageID, userID string) (string, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	if _, err := s.GetConversationByID(ctx, msg.ConversationID, userID); err != nil {
		return "", err
	}
	if _, err := s.messages.AddMessageReader(ctx, messageID, userID); err != nil {
		return "", apperr.Storage("failed to mark message as read", err)
	}
	return msg.ConversationID, nil
}

// MarkAllMessagesAsRead adds the user to the read-by set of every message in
// the conversation not already containing them.
func (s *ConversationService) MarkAllMessagesAsRead(ctx context.Context, conversationID, userID string) error {
	if _, err := s.GetConversationByID(ctx, conversationID, userID); err != nil {
		return err
	}
	if _, err := s.messages.MarkConversationRead(ctx, conversationID, userID); err != nil {
		return apperr.Storage("failed to mark messages as read", err)
	}
	return nil
}

// DeleteMessage hard-removes a message. Only the sender may delete it.
func (s *ConversationService) DeleteMessage(ctx context.Context, messageID, userID string) (*model.Message, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, apperr.Forbidden("you can only delete your own messages")
	}
	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		return nil, apperr.Storage("failed to delete message", err)
	}
	return msg, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
