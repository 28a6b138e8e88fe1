package model

// Event names exchanged over the websocket channels. Inbound names are sent
// by clients, outbound names by the server.
const (
	// Chat namespace, inbound.
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventSendMessage       = "sendMessage"
	EventMarkMessageRead   = "markMessageRead"
	EventMarkAllRead       = "markAllRead"
	EventTyping            = "typing"

	// Chat namespace, outbound.
	EventNewMessage      = "newMessage"
	EventMessageSent     = "messageSent"
	EventMessageError    = "messageError"
	EventMessageRead     = "messageRead"
	EventAllMessagesRead = "allMessagesRead"
	EventUserTyping      = "userTyping"
	EventUserOnline      = "userOnline"
	EventUserOffline     = "userOffline"
	EventUserJoinedConv  = "userJoinedConversation"
	EventUserLeftConv    = "userLeftConversation"
	EventMessageDeleted  = "messageDeleted"
	EventError           = "error"

	// Notification namespace, inbound.
	EventGetNotifications = "getNotifications"
	EventMarkAsRead       = "markAsRead"
	EventMarkAllAsRead    = "markAllAsRead"

	// Notification namespace, outbound.
	EventNewNotification = "newNotification"
	EventUnreadCount     = "unreadCount"
	EventNotifications   = "notifications"
)

// Envelope is the wire framing for every websocket event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound payloads.

type JoinConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

type MarkMessageReadPayload struct {
	MessageID string `json:"message_id"`
}

type MarkAllReadPayload struct {
	ConversationID string `json:"conversation_id"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

type GetNotificationsPayload struct {
	Limit int `json:"limit"`
}

type MarkNotificationReadPayload struct {
	NotificationID string `json:"notification_id"`
}

// Outbound payloads.

type NewMessagePayload struct {
	ConversationID string   `json:"conversation_id"`
	Message        *Message `json:"message"`
}

type MessageSentPayload struct {
	MessageID string `json:"message_id"`
}

// MessageReadPayload always carries the conversation ID so clients can target
// the receipt without a lookup.
type MessageReadPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	UserID         string `json:"user_id"`
}

type AllMessagesReadPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type UserTypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

type PresencePayload struct {
	UserID string `json:"user_id"`
}

type ConversationMemberPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type MessageDeletedPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// ErrorPayload is the single scoped error event emitted for a failed action.
// Kind is stable so clients can branch on it.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type UnreadCountPayload struct {
	Count int `json:"count"`
}

type NotificationsPayload struct {
	Notifications []*Notification `json:"notifications"`
}
