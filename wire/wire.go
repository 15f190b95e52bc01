// Package wire defines the JSON payload types carried inside chatsync frames.
// The gateway and the Go SDK share these definitions.
package wire

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes a payload.
func Marshal(v any) ([]byte, error) { return codec.Marshal(v) }

// Unmarshal decodes a payload into v.
func Unmarshal(data []byte, v any) error { return codec.Unmarshal(data, v) }

// Message is one chat message as the backend serves it, both in history
// responses and in live events.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Edited         bool      `json:"edited,omitempty"`
}

// ConnectPayload is the payload of a connect frame (client -> server).
type ConnectPayload struct {
	Token string `json:"token"`
}

// AuthResultPayload is the payload of auth_ok / auth_fail (server -> client).
type AuthResultPayload struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// RoomPayload is the payload of join_chat and leave_chat (client -> server).
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendPayload is the payload of send_message (client -> server).
type SendPayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// EditPayload is the payload of edit_message (client -> server).
type EditPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId"`
	Content        string `json:"content"`
}

// DeletePayload is the payload of delete_message (client -> server) and of
// message_deleted (server -> client).
type DeletePayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId"`
}

// MessagePayload wraps a message in receive_message and message_edited
// (server -> client).
type MessagePayload struct {
	Message Message `json:"message"`
}

// PresencePayload is the payload of user_joined / user_left (server -> client).
type PresencePayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// ErrorPayload is the payload of an error frame (server -> client).
type ErrorPayload struct {
	Message string `json:"message"`
}

// ClosePayload is the payload of a close frame (server -> client).
type ClosePayload struct {
	Reason string `json:"reason,omitempty"`
}
