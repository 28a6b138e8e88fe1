package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialink/realtime-platform/internal/apperr"
	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/internal/store"
	"github.com/socialink/realtime-platform/pkg/logger"
)

func newTestConversationService(t *testing.T, users ...string) (*ConversationService, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	for _, u := range users {
		mem.AddUser(u)
	}
	return NewConversationService(mem, mem, mem, logger.NewNop()), mem
}

func TestCreateConversationValidatesParticipants(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice")
	ctx := context.Background()

	_, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"ghost"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateDirectConversationIsIdempotent(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob")
	ctx := context.Background()

	first, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)
	assert.False(t, first.IsGroup)
	assert.Len(t, first.Participants, 2)

	// Creating again, even from the other side, returns the same record.
	second, err := svc.CreateConversation(ctx, "bob", &model.CreateConversationRequest{
		ParticipantIDs: []string{"alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindDirectConversationIsSymmetric(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob", "carol")
	ctx := context.Background()

	_, err := svc.FindDirectConversation(ctx, "alice", "bob")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	ab, err := svc.FindDirectConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	ba, err := svc.FindDirectConversation(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, ab.ID)
	assert.Equal(t, conv.ID, ba.ID)

	// A different pair has no conversation.
	_, err = svc.FindDirectConversation(ctx, "alice", "carol")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSelfDirectConversationRejected(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	// A self lookup must not match the pair conversation just because it
	// contains the user twice over.
	_, err = svc.FindDirectConversation(ctx, "alice", "alice")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// Creating a direct conversation with oneself is invalid, not an
	// accidental hit on an existing conversation.
	got, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"alice"},
	})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// The existing pair conversation is untouched.
	again, err := svc.FindDirectConversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.Len(t, again.Participants, 2)
}

func TestSendMessageSeedsReadByWithSender(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, msg.ReadBy)
	assert.Equal(t, model.MessageTypeText, msg.Type)
}

func TestSendMessageRequiresParticipant(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob", "mallory")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "mallory", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "let me in",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestNonParticipantAlwaysForbidden(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob", "mallory")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hello",
	})
	require.NoError(t, err)

	_, err = svc.GetMessages(ctx, conv.ID, "mallory", 50, 0)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.MarkMessageAsRead(ctx, msg.ID, "mallory")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	err = svc.MarkAllMessagesAsRead(ctx, conv.ID, "mallory")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestMarkMessageAsReadIsIdempotent(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hello",
	})
	require.NoError(t, err)

	convID, err := svc.MarkMessageAsRead(ctx, msg.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, convID)

	_, err = svc.MarkMessageAsRead(ctx, msg.ID, "bob")
	require.NoError(t, err)

	msgs, err := svc.GetMessages(ctx, conv.ID, "bob", 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, msgs[0].ReadBy)
}

func TestDirectConversationReadFlow(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hello",
	})
	require.NoError(t, err)

	_, err = svc.MarkMessageAsRead(ctx, msg.ID, "bob")
	require.NoError(t, err)

	convs, err := svc.GetUserConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 0, convs[0].UnreadCount)

	msgs, err := svc.GetMessages(ctx, conv.ID, "alice", 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, msgs[0].ReadBy)
}

func TestUnreadCountAndCatchupOrdering(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob", "carol")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob", "carol"},
		Name:           "trio",
		IsGroup:        true,
	})
	require.NoError(t, err)

	// Three messages land while carol is offline.
	for _, content := range []string{"one", "two", "three"} {
		_, err := svc.SendMessage(ctx, "alice", &model.SendMessageRequest{
			ConversationID: conv.ID,
			Content:        content,
		})
		require.NoError(t, err)
	}

	convs, err := svc.GetUserConversations(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 3, convs[0].UnreadCount)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "three", convs[0].LastMessage.Content)

	msgs, err := svc.GetMessages(ctx, conv.ID, "carol", 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, "three", msgs[2].Content)
	assert.False(t, msgs[0].IsRead)

	err = svc.MarkAllMessagesAsRead(ctx, conv.ID, "carol")
	require.NoError(t, err)

	convs, err = svc.GetUserConversations(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 0, convs[0].UnreadCount)
}

func TestSendersOwnMessagesNeverUnread(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hello",
	})
	require.NoError(t, err)

	convs, err := svc.GetUserConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, convs[0].UnreadCount)
}

func TestDeleteMessageOnlyBySender(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)
	msg, err := svc.SendMessage(ctx, "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "oops",
	})
	require.NoError(t, err)

	_, err = svc.DeleteMessage(ctx, msg.ID, "bob")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	deleted, err := svc.DeleteMessage(ctx, msg.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, deleted.ID)

	msgs, err := svc.GetMessages(ctx, conv.ID, "alice", 50, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = svc.DeleteMessage(ctx, msg.ID, "alice")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetConversationByIDErrors(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob", "mallory")
	ctx := context.Background()

	_, err := svc.GetConversationByID(ctx, "missing", "alice")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	_, err = svc.GetConversationByID(ctx, conv.ID, "mallory")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestSendMessageValidation(t *testing.T) {
	svc, _ := newTestConversationService(t, "alice", "bob")
	ctx := context.Background()

	conv, err := svc.CreateConversation(ctx, "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.SendMessage(ctx, "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hi",
		Type:           model.MessageType("carrier-pigeon"),
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
