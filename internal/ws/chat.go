package ws

import (
	"context"
	"encoding/json"
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

// ChatGatewayConfig carries the tunables for the chat namespace.
type ChatGatewayConfig struct {
	JWTSecret  string
	SendBuffer int
	TypingIdle time.Duration
}

// ChatGateway is the connection lifecycle handler for the chat namespace.
// Each connection moves through connecting, authenticating, joined and
// disconnected; only an authentication failure or a transport error ends it.
// Every inbound event maps to one service call whose typed result a uniform
// fan-out step turns into zero or more room broadcasts.
type ChatGateway struct {
	cfg           ChatGatewayConfig
	presence      *Presence
	rooms         *Rooms
	typing        *TypingTracker
	conversations *service.ConversationService
	upgrader      websocket.Upgrader
	logger        *logger.Logger
}

// NewChatGateway creates the chat gateway.
func NewChatGateway(cfg ChatGatewayConfig, conversations *service.ConversationService, log *logger.Logger) *ChatGateway {
	g := &ChatGateway{
		cfg:           cfg,
		presence:      NewPresence(),
		rooms:         NewRooms(),
		conversations: conversations,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log,
	}
	g.typing = NewTypingTracker(cfg.TypingIdle, g.typingExpired)
	return g
}

// broadcast is one unit of fan-out produced by an event handler.
type broadcast struct {
	room    Room
	event   string
	data    any
	exclude *Client
}

// HandleConnection upgrades the request and runs the connection to
// completion. GET /ws/chat.
func (g *ChatGateway) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	userID, err := middleware.VerifyToken(g.cfg.JWTSecret, token)
	if err != nil {
		// Authentication failure is terminal: close without processing.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	c := newClient(userID, conn, g.cfg.SendBuffer, g.logger.WithConnection("chat", userID))
	go c.writePump()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.connect(ctx, c)
	c.readLoop(func(env model.Envelope) {
		g.dispatch(ctx, c, env)
	})
	g.disconnect(c)
}

// connect registers presence, seeds room memberships from the user's stored
// conversations and announces the user online.
func (g *ChatGateway) connect(ctx context.Context, c *Client) {
	if prev := g.presence.Register(c.UserID, c); prev != nil {
		prev.sendError(string(apperr.KindAuthentication), "signed in from another location")
		prev.close()
		metrics.ConnectionsEvicted.Inc()
	}

	g.rooms.Join(c, UserRoom(c.UserID))
	convs, err := g.conversations.GetUserConversations(ctx, c.UserID)
	if err != nil {
		c.logger.Warn("failed to seed conversation rooms", zap.Error(err))
	}
	for _, conv := range convs {
		g.rooms.Join(c, ConversationRoom(conv.ID))
	}

	g.broadcastAll(model.EventUserOnline, model.PresencePayload{UserID: c.UserID}, c)
	metrics.ConnectionsActive.WithLabelValues("chat").Inc()
	c.logger.Info("connected")
}

// disconnect tears the connection down: typing state, room memberships, then
// the presence entry (only if it still belongs to this connection).
func (g *ChatGateway) disconnect(c *Client) {
	for _, conversationID := range g.typing.ClearUser(c.UserID) {
		g.rooms.Broadcast(ConversationRoom(conversationID), model.EventUserTyping,
			model.UserTypingPayload{ConversationID: conversationID, UserID: c.UserID}, c)
	}
	g.rooms.LeaveAll(c)

	if g.presence.Unregister(c.UserID, c) {
		g.broadcastAll(model.EventUserOffline, model.PresencePayload{UserID: c.UserID}, c)
	}

	c.close()
	metrics.ConnectionsActive.WithLabelValues("chat").Dec()
	c.logger.Info("disconnected")
}

// dispatch routes one inbound event. Service errors become a single scoped
// error event; they never terminate the connection.
func (g *ChatGateway) dispatch(ctx context.Context, c *Client, env model.Envelope) {
	var out []broadcast
	var err error

	switch env.Event {
	case model.EventJoinConversation:
		out, err = g.handleJoinConversation(ctx, c, env)
	case model.EventLeaveConversation:
		out, err = g.handleLeaveConversation(c, env)
	case model.EventSendMessage:
		out, err = g.handleSendMessage(ctx, c, env)
	case model.EventMarkMessageRead:
		out, err = g.handleMarkMessageRead(ctx, c, env)
	case model.EventMarkAllRead:
		out, err = g.handleMarkAllRead(ctx, c, env)
	case model.EventTyping:
		out, err = g.handleTyping(c, env)
	default:
		err = apperr.Validation("unknown event: " + env.Event)
	}

	if err != nil {
		if env.Event == model.EventSendMessage {
			c.sendEvent(model.EventMessageError, model.ErrorPayload{
				Kind:    string(apperr.KindOf(err)),
				Message: apperr.UserMessage(err),
			})
		} else {
			c.sendError(string(apperr.KindOf(err)), apperr.UserMessage(err))
		}
		if apperr.KindOf(err) == apperr.KindStorage {
			c.logger.Error("event failed", zap.String("event", env.Event), zap.Error(err))
		}
		return
	}

	for _, b := range out {
		g.rooms.Broadcast(b.room, b.event, b.data, b.exclude)
	}
}

func (g *ChatGateway) handleJoinConversation(ctx context.Context, c *Client, env model.Envelope) ([]broadcast, error) {
	var p model.JoinConversationPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return nil, err
	}
	// Only participants may join the room.
	if _, err := g.conversations.GetConversationByID(ctx, p.ConversationID, c.UserID); err != nil {
		return nil, err
	}
	room := ConversationRoom(p.ConversationID)
	g.rooms.Join(c, room)
	return []broadcast{{
		room:    room,
		event:   model.EventUserJoinedConv,
		data:    model.ConversationMemberPayload{ConversationID: p.ConversationID, UserID: c.UserID},
		exclude: c,
	}}, nil
}

func (g *ChatGateway) handleLeaveConversation(c *Client, env model.Envelope) ([]broadcast, error) {
	var p model.JoinConversationPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return nil, err
	}
	room := ConversationRoom(p.ConversationID)
	g.rooms.Leave(c, room)
	return []broadcast{{
		room:    room,
		event:   model.EventUserLeftConv,
		data:    model.ConversationMemberPayload{ConversationID: p.ConversationID, UserID: c.UserID},
		exclude: c,
	}}, nil
}

func (g *ChatGateway) handleSendMessage(ctx context.Context, c *Client, env model.Envelope) ([]broadcast, error) {
	var req model.SendMessageRequest
	if err := decodePayload(env.Data, &req); err != nil {
		return nil, err
	}

	// Persistence completes before the broadcast is enqueued, so a client
	// fetching messages right after newMessage always finds it stored.
	msg, err := g.conversations.SendMessage(ctx, c.UserID, &req)
	if err != nil {
		return nil, err
	}

	out := []broadcast{{
		room:  ConversationRoom(msg.ConversationID),
		event: model.EventNewMessage,
		data:  model.NewMessagePayload{ConversationID: msg.ConversationID, Message: msg},
	}}

	// A message from the typer supersedes their typing indicator.
	if g.typing.Clear(msg.ConversationID, c.UserID) {
		out = append(out, broadcast{
			room:    ConversationRoom(msg.ConversationID),
			event:   model.EventUserTyping,
			data:    model.UserTypingPayload{ConversationID: msg.ConversationID, UserID: c.UserID},
			exclude: c,
		})
	}

	c.sendEvent(model.EventMessageSent, model.MessageSentPayload{MessageID: msg.ID})
	return out, nil
}

func (g *ChatGateway) handleMarkMessageRead(ctx context.Context, c *Client, env model.Envelope) ([]broadcast, error) {
	var p model.MarkMessageReadPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return nil, err
	}
	conversationID, err := g.conversations.MarkMessageAsRead(ctx, p.MessageID, c.UserID)
	if err != nil {
		return nil, err
	}
	return []broadcast{{
		room:  ConversationRoom(conversationID),
		event: model.EventMessageRead,
		data: model.MessageReadPayload{
			ConversationID: conversationID,
			MessageID:      p.MessageID,
			UserID:         c.UserID,
		},
		exclude: c,
	}}, nil
}

func (g *ChatGateway) handleMarkAllRead(ctx context.Context, c *Client, env model.Envelope) ([]broadcast, error) {
	var p model.MarkAllReadPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return nil, err
	}
	if err := g.conversations.MarkAllMessagesAsRead(ctx, p.ConversationID, c.UserID); err != nil {
		return nil, err
	}
	return []broadcast{{
		room:    ConversationRoom(p.ConversationID),
		event:   model.EventAllMessagesRead,
		data:    model.AllMessagesReadPayload{ConversationID: p.ConversationID, UserID: c.UserID},
		exclude: c,
	}}, nil
}

func (g *ChatGateway) handleTyping(c *Client, env model.Envelope) ([]broadcast, error) {
	var p model.TypingPayload
	if err := decodePayload(env.Data, &p); err != nil {
		return nil, err
	}
	g.typing.Set(p.ConversationID, c.UserID, p.IsTyping)
	return []broadcast{{
		room:  ConversationRoom(p.ConversationID),
		event: model.EventUserTyping,
		data: model.UserTypingPayload{
			ConversationID: p.ConversationID,
			UserID:         c.UserID,
			IsTyping:       p.IsTyping,
		},
		exclude: c,
	}}, nil
}

// typingExpired fires when a typing indicator lapses without an explicit
// stop and without a message from the typer.
func (g *ChatGateway) typingExpired(conversationID, userID string) {
	var exclude *Client
	if c, ok := g.presence.Lookup(userID); ok {
		exclude = c
	}
	g.rooms.Broadcast(ConversationRoom(conversationID), model.EventUserTyping,
		model.UserTypingPayload{ConversationID: conversationID, UserID: userID}, exclude)
}

// broadcastAll delivers a presence event to every live connection.
// Best-effort; delivery is not guaranteed.
func (g *ChatGateway) broadcastAll(event string, data any, exclude *Client) {
	raw, err := json.Marshal(model.Envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	g.presence.Each(func(c *Client) {
		if c != exclude {
			if c.enqueue(raw) {
				metrics.BroadcastsDelivered.WithLabelValues(event).Inc()
			} else {
				metrics.BroadcastsDropped.Inc()
			}
		}
	})
}

// IsUserOnline reports whether the user has a live chat connection.
func (g *ChatGateway) IsUserOnline(userID string) bool {
	return g.presence.IsOnline(userID)
}

// BroadcastNewMessage fans a message out to its conversation room. Used by
// the REST send path so HTTP and websocket sends behave identically.
func (g *ChatGateway) BroadcastNewMessage(msg *model.Message) {
	g.rooms.Broadcast(ConversationRoom(msg.ConversationID), model.EventNewMessage,
		model.NewMessagePayload{ConversationID: msg.ConversationID, Message: msg}, nil)

	// A message from the typer supersedes their typing indicator, same as
	// the websocket send path.
	if g.typing.Clear(msg.ConversationID, msg.SenderID) {
		var exclude *Client
		if c, ok := g.presence.Lookup(msg.SenderID); ok {
			exclude = c
		}
		g.rooms.Broadcast(ConversationRoom(msg.ConversationID), model.EventUserTyping,
			model.UserTypingPayload{ConversationID: msg.ConversationID, UserID: msg.SenderID}, exclude)
	}
}

// NotifyMessageDeleted tells a conversation's connected participants that a
// message was removed.
func (g *ChatGateway) NotifyMessageDeleted(conversationID, messageID string) {
	g.rooms.Broadcast(ConversationRoom(conversationID), model.EventMessageDeleted,
		model.MessageDeletedPayload{ConversationID: conversationID, MessageID: messageID}, nil)
}

// decodePayload converts the loosely-typed envelope data into a concrete
// payload struct.
func decodePayload(data any, dst any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return apperr.Validation("malformed payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("malformed payload")
	}
	return nil
}
