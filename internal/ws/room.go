// Package ws implements the realtime websocket layer: presence, room
// membership, typing state and the chat and notification gateways.
package ws

import (
	"fmt"
)

type roomKind uint8

const (
	roomKindUser roomKind = iota + 1
	roomKindConversation
)

// Room is a typed broadcast group identifier. Using a value type instead of
// formatted strings rules out collisions between the user and conversation
// namespaces.
type Room struct {
	kind roomKind
	id   string
}

// UserRoom returns the per-user room used for direct delivery to one user's
// connection regardless of active conversation.
func UserRoom(userID string) Room {
	return Room{kind: roomKindUser, id: userID}
}

// ConversationRoom returns the per-conversation room used for message,
// typing and read-receipt fan-out.
func ConversationRoom(conversationID string) Room {
	return Room{kind: roomKindConversation, id: conversationID}
}

// IsZero reports whether r is the zero room.
func (r Room) IsZero() bool { return r.kind == 0 }

// String renders the room for logs.
func (r Room) String() string {
	switch r.kind {
	case roomKindUser:
		return fmt.Sprintf("user:%s", r.id)
	case roomKindConversation:
		return fmt.Sprintf("conversation:%s", r.id)
	}
	return "room:unknown"
}
