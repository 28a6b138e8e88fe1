package nats

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/internal/service"
	"github.com/socialink/realtime-platform/internal/ws"
	"github.com/socialink/realtime-platform/pkg/logger"
)

// Feed event subjects published by the posts and users services.
const (
	SubjectFeedLike    = "feed.like"
	SubjectFeedComment = "feed.comment"
	SubjectFeedFollow  = "feed.follow"

	feedSubjectWildcard = "feed.*"
	feedQueueGroup      = "realtime-notifications"
)

// FeedEvent is the message the feed-side collaborators publish when a like,
// comment or follow lands.
type FeedEvent struct {
	ActorID     string `json:"actor_id"`
	ActorName   string `json:"actor_name"`
	RecipientID string `json:"recipient_id"`
	PostID      string `json:"post_id,omitempty"`
}

// FeedBridge subscribes to feed events, persists the resulting notification
// and pushes it live through the notification gateway.
type FeedBridge struct {
	client        *Client
	notifications *service.NotificationService
	gateway       *ws.NotificationGateway
	logger        *logger.Logger
	sub           *nats.Subscription
}

// NewFeedBridge creates the bridge.
func NewFeedBridge(client *Client, notifications *service.NotificationService, gateway *ws.NotificationGateway, log *logger.Logger) *FeedBridge {
	return &FeedBridge{
		client:        client,
		notifications: notifications,
		gateway:       gateway,
		logger:        log,
	}
}

// Start subscribes to the feed subjects. Instances share a queue group so
// each event is handled once.
func (b *FeedBridge) Start(ctx context.Context) error {
	sub, err := b.client.Conn().QueueSubscribe(feedSubjectWildcard, feedQueueGroup, func(msg *nats.Msg) {
		b.handle(ctx, msg)
	})
	if err != nil {
		return err
	}
	b.sub = sub
	b.logger.Info("feed bridge subscribed", zap.String("subject", feedSubjectWildcard))
	return nil
}

// Stop unsubscribes from the feed subjects.
func (b *FeedBridge) Stop() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
}

func (b *FeedBridge) handle(ctx context.Context, msg *nats.Msg) {
	var ev FeedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		b.logger.Warn("malformed feed event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	var (
		n   *model.Notification
		err error
	)
	switch msg.Subject {
	case SubjectFeedLike:
		n, err = b.notifications.CreateLikeNotification(ctx, ev.ActorID, ev.RecipientID, ev.PostID, ev.ActorName)
	case SubjectFeedComment:
		n, err = b.notifications.CreateCommentNotification(ctx, ev.ActorID, ev.RecipientID, ev.PostID, ev.ActorName)
	case SubjectFeedFollow:
		n, err = b.notifications.CreateFollowNotification(ctx, ev.ActorID, ev.RecipientID, ev.ActorName)
	default:
		b.logger.Warn("unknown feed subject", zap.String("subject", msg.Subject))
		return
	}
	if err != nil {
		b.logger.Error("failed to create notification", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	if n == nil {
		// Self-action, suppressed.
		return
	}

	b.gateway.SendNotificationToUser(ctx, n.RecipientID, n)
}
