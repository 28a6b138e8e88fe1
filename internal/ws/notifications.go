package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/socialink/realtime-platform/internal/apperr"
	"github.com/socialink/realtime-platform/internal/middleware"
	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/internal/service"
	"github.com/socialink/realtime-platform/pkg/logger"
	"github.com/socialink/realtime-platform/pkg/metrics"
)

// NotificationGatewayConfig carries the tunables for the notification
// namespace.
type NotificationGatewayConfig struct {
	JWTSecret  string
	SendBuffer int

	// RecentLimit is how many notifications are pushed on connect.
	RecentLimit int
	// CatchupWindow bounds how far back the offline catch-up looks.
	CatchupWindow time.Duration
	// CatchupMax caps how many missed notifications are replayed.
	CatchupMax int
	// CatchupDelay spaces the replayed items so client UIs can animate
	// each arrival.
	CatchupDelay time.Duration
}

func (cfg *NotificationGatewayConfig) applyDefaults() {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 10
	}
	if cfg.CatchupWindow <= 0 {
		cfg.CatchupWindow = 24 * time.Hour
	}
	if cfg.CatchupMax <= 0 {
		cfg.CatchupMax = 5
	}
	if cfg.CatchupDelay < 0 {
		cfg.CatchupDelay = 0
	} else if cfg.CatchupDelay == 0 {
		cfg.CatchupDelay = 100 * time.Millisecond
	}
}

// NotificationGateway is the connection lifecycle handler for user-level
// notifications. On connect it pushes the unread count, the recent list and
// a one-time catch-up of notifications missed while offline.
type NotificationGateway struct {
	cfg           NotificationGatewayConfig
	presence      *Presence
	rooms         *Rooms
	notifications *service.NotificationService
	upgrader      websocket.Upgrader
	logger        *logger.Logger
}

// NewNotificationGateway creates the notification gateway.
func NewNotificationGateway(cfg NotificationGatewayConfig, notifications *service.NotificationService, log *logger.Logger) *NotificationGateway {
	cfg.applyDefaults()
	return &NotificationGateway{
		cfg:           cfg,
		presence:      NewPresence(),
		rooms:         NewRooms(),
		notifications: notifications,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
}

// HandleConnection upgrades the request and runs the connection to
// completion. GET /ws/notifications.
func (g *NotificationGateway) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	userID, err := middleware.VerifyToken(g.cfg.JWTSecret, token)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c := newClient(userID, conn, g.cfg.SendBuffer, g.logger.WithConnection("notifications", userID))
	go c.writePump()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.connect(ctx, c)
	c.readLoop(func(env model.Envelope) {
		g.dispatch(ctx, c, env)
	})
	g.disconnect(c)
}

func (g *NotificationGateway) connect(ctx context.Context, c *Client) {
	if prev := g.presence.Register(c.UserID, c); prev != nil {
		prev.sendError(string(apperr.KindAuthentication), "signed in from another location")
		prev.close()
		metrics.ConnectionsEvicted.Inc()
	}
	g.rooms.Join(c, UserRoom(c.UserID))
	metrics.ConnectionsActive.WithLabelValues("notifications").Inc()
	c.logger.Info("connected")

	g.pushState(ctx, c)
	go g.pushCatchup(ctx, c)
}

func (g *NotificationGateway) disconnect(c *Client) {
	g.rooms.LeaveAll(c)
	g.presence.Unregister(c.UserID, c)
	c.close()
	metrics.ConnectionsActive.WithLabelValues("notifications").Dec()
	c.logger.Info("disconnected")
}

// pushState sends the current unread count and recent notifications.
func (g *NotificationGateway) pushState(ctx context.Context, c *Client) {
	unread, err := g.notifications.GetUnreadCount(ctx, c.UserID)
	if err != nil {
		c.logger.Warn("failed to load unread count", zap.Error(err))
		return
	}
	recent, err := g.notifications.GetUserNotifications(ctx, c.UserID, g.cfg.RecentLimit)
	if err != nil {
		c.logger.Warn("failed to load notifications", zap.Error(err))
		return
	}
	c.sendEvent(model.EventUnreadCount, model.UnreadCountPayload{Count: unread})
	c.sendEvent(model.EventNotifications, model.NotificationsPayload{Notifications: recent})
}

// pushCatchup replays unread notifications from the offline window one at a
// time with a small delay between items.
func (g *NotificationGateway) pushCatchup(ctx context.Context, c *Client) {
	since := time.Now().Add(-g.cfg.CatchupWindow)
	missed, err := g.notifications.GetNotificationsSince(ctx, c.UserID, since, 0)
	if err != nil {
		c.logger.Warn("failed to load catch-up notifications", zap.Error(err))
		return
	}

	sent := 0
	for _, n := range missed {
		if n.IsRead {
			continue
		}
		if sent >= g.cfg.CatchupMax {
			break
		}
		c.sendEvent(model.EventNewNotification, n)
		sent++

		select {
		case <-time.After(g.cfg.CatchupDelay):
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (g *NotificationGateway) dispatch(ctx context.Context, c *Client, env model.Envelope) {
	var err error
	switch env.Event {
	case model.EventGetNotifications:
		err = g.handleGetNotifications(ctx, c, env)
	case model.EventMarkAsRead:
		err = g.handleMarkAsRead(ctx, c, env)
	case model.EventMarkAllAsRead:
		err = g.handleMarkAllAsRead(ctx, c)
	default:
		err = apperr.Validation("unknown event: " + env.Event)
	}
	if err != nil {
		c.sendError(string(apperr.KindOf(err)), apperr.UserMessage(err))
		if apperr.KindOf(err) == apperr.KindStorage {
			c.logger.Error("event failed", zap.String("event", env.Event), zap.Error(err))
		}
	}
}

func (g *NotificationGateway) handleGetNotifications(ctx context.Context, c *Client, env model.Envelope) error {
	var p model.GetNotificationsPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return err
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	ns, err := g.notifications.GetUserNotifications(ctx, c.UserID, p.Limit)
	if err != nil {
		return err
	}
	c.sendEvent(model.EventNotifications, model.NotificationsPayload{Notifications: ns})
	return nil
}

func (g *NotificationGateway) handleMarkAsRead(ctx context.Context, c *Client, env model.Envelope) error {
	var p model.MarkNotificationReadPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return err
	}
	if err := g.notifications.MarkAsRead(ctx, p.NotificationID, c.UserID); err != nil {
		return err
	}
	unread, err := g.notifications.GetUnreadCount(ctx, c.UserID)
	if err != nil {
		return err
	}
	// Count goes back to the caller only, not the room.
	c.sendEvent(model.EventUnreadCount, model.UnreadCountPayload{Count: unread})
	return nil
}

func (g *NotificationGateway) handleMarkAllAsRead(ctx context.Context, c *Client) error {
	if err := g.notifications.MarkAllAsRead(ctx, c.UserID); err != nil {
		return err
	}
	c.sendEvent(model.EventUnreadCount, model.UnreadCountPayload{Count: 0})
	return nil
}

// SendNotificationToUser pushes a freshly created notification to its
// recipient, if connected, together with an updated unread count. Invoked by
// the feed-side collaborators after a like, comment or follow.
func (g *NotificationGateway) SendNotificationToUser(ctx context.Context, userID string, n *model.Notification) {
	room := UserRoom(userID)
	g.rooms.Broadcast(room, model.EventNewNotification, n, nil)

	unread, err := g.notifications.GetUnreadCount(ctx, userID)
	if err != nil {
		g.logger.Warn("failed to refresh unread count", zap.String("user_id", userID), zap.Error(err))
		return
	}
	g.rooms.Broadcast(room, model.EventUnreadCount, model.UnreadCountPayload{Count: unread}, nil)
}

// IsUserOnline reports whether the user has a live notification connection.
func (g *NotificationGateway) IsUserOnline(userID string) bool {
	return g.presence.IsOnline(userID)
}
