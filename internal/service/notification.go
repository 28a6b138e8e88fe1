package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/socialink/realtime-platform/internal/apperr"
	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/internal/store"
	"github.com/socialink/realtime-platform/pkg/logger"
	"github.com/socialink/realtime-platform/pkg/metrics"
)

// NotificationService orchestrates notification persistence and queries. The
// create methods are invoked by the feed-side collaborators (posts, follows)
// and return the created record so the caller can push it live.
type NotificationService struct {
	notifications store.NotificationStore
	logger        *logger.Logger
}

// NewNotificationService creates a new notification service.
func NewNotificationService(notifications store.NotificationStore, log *logger.Logger) *NotificationService {
	return &NotificationService{notifications: notifications, logger: log}
}

// CreateLikeNotification records a like notification. Returns nil without
// persisting when the actor likes their own post.
func (s *NotificationService) CreateLikeNotification(ctx context.Context, actorID, recipientID, postID, actorName string) (*model.Notification, error) {
	if actorID == recipientID {
		return nil, nil
	}
	return s.create(ctx, &model.Notification{
		Type:        model.NotificationTypeLike,
		Message:     fmt.Sprintf("%s liked your post", actorName),
		RecipientID: recipientID,
		ActorID:     actorID,
		PostID:      postID,
	})
}

// CreateCommentNotification records a comment notification. Returns nil
// without persisting when the actor comments on their own post.
func (s *NotificationService) CreateCommentNotification(ctx context.Context, actorID, recipientID, postID, actorName string) (*model.Notification, error) {
	if actorID == recipientID {
		return nil, nil
	}
	return s.create(ctx, &model.Notification{
		Type:        model.NotificationTypeComment,
		Message:     fmt.Sprintf("%s commented on your post", actorName),
		RecipientID: recipientID,
		ActorID:     actorID,
		PostID:      postID,
	})
}

// CreateFollowNotification records a follow notification. No self-follow
// path exists upstream, but the guard is kept anyway.
func (s *NotificationService) CreateFollowNotification(ctx context.Context, actorID, recipientID, actorName string) (*model.Notification, error) {
	if actorID == recipientID {
		return nil, nil
	}
	return s.create(ctx, &model.Notification{
		Type:        model.NotificationTypeFollow,
		Message:     fmt.Sprintf("%s started following you", actorName),
		RecipientID: recipientID,
		ActorID:     actorID,
	})
}

func (s *NotificationService) create(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	n.ID = uuid.Must(uuid.NewV7()).String()
	n.CreatedAt = time.Now()
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		return nil, apperr.Storage("failed to save notification", err)
	}
	s.logger.Debug("notification created",
		zap.String("notification_id", n.ID),
		zap.String("type", string(n.Type)),
		zap.String("recipient_id", n.RecipientID),
	)
	metrics.NotificationsTotal.WithLabelValues(string(n.Type)).Inc()
	return n, nil
}

// GetUserNotifications returns the user's notifications, newest first.
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	ns, err := s.notifications.NotificationsByRecipient(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Storage("failed to load notifications", err)
	}
	return ns, nil
}

// GetUnreadCount returns the number of unread notifications for the user.
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.notifications.UnreadNotificationCount(ctx, userID)
	if err != nil {
		return 0, apperr.Storage("failed to count notifications", err)
	}
	return count, nil
}

// MarkAsRead flips the read flag on one notification, scoped to its
// recipient.
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID string) error {
	return s.notifications.MarkNotificationRead(ctx, notificationID, userID)
}

// MarkAllAsRead flips the read flag on all of the user's notifications.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	if err := s.notifications.MarkAllNotificationsRead(ctx, userID); err != nil {
		return apperr.Storage("failed to mark notifications as read", err)
	}
	return nil
}

// GetNotificationsSince returns notifications created at or after the given
// time, newest first. Used for the offline catch-up push.
func (s *NotificationService) GetNotificationsSince(ctx context.Context, userID string, since time.Time, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 10
	}
	ns, err := s.notifications.NotificationsSince(ctx, userID, since, limit)
	if err != nil {
		return nil, apperr.Storage("failed to load notifications", err)
	}
	return ns, nil
}
