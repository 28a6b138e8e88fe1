// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/socialink/realtime-platform/internal/middleware"
	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/internal/service"
	"github.com/socialink/realtime-platform/internal/ws"
	"github.com/socialink/realtime-platform/pkg/logger"
)

// ChatHandler handles the REST chat endpoints. Mutations fan out through the
// chat gateway so HTTP and websocket clients observe the same events.
type ChatHandler struct {
	service *service.ConversationService
	gateway *ws.ChatGateway
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ConversationService, gateway *ws.ChatGateway, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		gateway: gateway,
		logger:  log,
	}
}

// CreateConversation handles POST /api/v1/chat/conversations
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		if err := middleware.ValidateConversationName(req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := h.service.CreateConversation(ctx, userID, &req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// ListConversations handles GET /api/v1/chat/conversations
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	convs, err := h.service.GetUserConversations(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

// GetConversation handles GET /api/v1/chat/conversations/{id}
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.GetConversationByID(ctx, conversationID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// GetOrCreateDirectConversation handles GET /api/v1/chat/direct/{userId}
func (h *ChatHandler) GetOrCreateDirectConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	otherUserID := chi.URLParam(r, "userId")

	if err := middleware.ValidateID(otherUserID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.service.CreateConversation(ctx, userID, &model.CreateConversationRequest{
		ParticipantIDs: []string{otherUserID},
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// GetMessages handles GET /api/v1/chat/conversations/{id}/messages
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := 50, 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	msgs, err := h.service.GetMessages(ctx, conversationID, userID, limit, offset)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

// SendMessage handles POST /api/v1/chat/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.SendMessage(ctx, userID, &req)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.gateway.BroadcastNewMessage(msg)
	writeJSON(w, http.StatusCreated, msg)
}

// MarkMessageRead handles POST /api/v1/chat/messages/{id}/read
func (h *ChatHandler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	messageID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.service.MarkMessageAsRead(ctx, messageID, userID); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MarkAllRead handles POST /api/v1/chat/conversations/{id}/read-all
func (h *ChatHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.MarkAllMessagesAsRead(ctx, conversationID, userID); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteMessage handles DELETE /api/v1/chat/messages/{id}
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	messageID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.service.DeleteMessage(ctx, messageID, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.gateway.NotifyMessageDeleted(msg.ConversationID, msg.ID)
	w.WriteHeader(http.StatusNoContent)
}
