package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/socialink/realtime-platform/internal/middleware"
	"github.com/socialink/realtime-platform/internal/service"
	"github.com/socialink/realtime-platform/pkg/logger"
)

// NotificationHandler handles the REST notification endpoints.
type NotificationHandler struct {
	service *service.NotificationService
	logger  *logger.Logger
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(svc *service.NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	ns, err := h.service.GetUserNotifications(ctx, userID, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ns)
}

// UnreadCount handles GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	count, err := h.service.GetUnreadCount(ctx, userID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// MarkRead handles POST /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	notificationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(notificationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.MarkAsRead(ctx, notificationID, userID); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MarkAllRead handles POST /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.service.MarkAllAsRead(ctx, userID); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
