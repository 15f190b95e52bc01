package chatsync

import (
	"log/slog"
	"time"

	"github.com/NeboLoop/chatsync-go-sdk/wire"
)

// Message is a chat message held in the Store.
type Message = wire.Message

// Presence reports a participant entering or leaving a conversation room.
type Presence = wire.PresencePayload

// ConnState is the connectivity signal surfaced to the consumer.
type ConnState int

const (
	// StateDisabled: no token or no conversation selected; no channel.
	StateDisabled ConnState = iota
	// StateConnecting: dialing and authenticating.
	StateConnecting
	// StateConnected: channel open.
	StateConnected
	// StateDegraded: the channel failed or was closed by the server. No
	// reconnect happens until the next token or conversation change.
	StateDegraded
)

func (s ConnState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	}
	return "unknown"
}

// Config holds connection parameters.
type Config struct {
	Endpoint         string        // WebSocket URL (e.g. "ws://localhost:8000/ws")
	APIEndpoint      string        // REST API URL; derived from Endpoint if empty
	UserID           string        // local participant id; taken from the token "sub" claim if empty
	HandshakeTimeout time.Duration // connect -> auth_ok deadline, default 10s
	HistoryPageSize  int           // messages per history request, default 50
	HistoryLimit     int           // max messages loaded on open, default 500
	SendBuffer       int           // outbound frame queue, default 256

	// History overrides the REST history loader built from APIEndpoint.
	History HistoryLoader

	// ConfirmDelete is asked before a delete is emitted. Nil confirms.
	ConfirmDelete func(Message) bool

	Logger *slog.Logger
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultHistoryPageSize  = 50
	defaultHistoryLimit     = 500
	defaultSendBuffer       = 256
)

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.HistoryPageSize <= 0 {
		c.HistoryPageSize = defaultHistoryPageSize
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Callbacks are the consumer-facing notifications of a Client. All slots are
// optional. They are never invoked while the Client holds a lock and none
// starts once Close has been called. Callbacks may read from the Client and
// call Send, Edit or Delete, but must not call SetToken, Select or Close.
type Callbacks struct {
	// OnChange receives the ordered message list after every effective
	// mutation of the active conversation.
	OnChange func(conversationID string, messages []Message)
	// OnConnectivity reports channel state transitions.
	OnConnectivity func(state ConnState, err error)
	// OnHistoryError reports a failed history fetch for the active conversation.
	OnHistoryError func(conversationID string, err error)
	// OnPresence reports user_joined (joined=true) and user_left events.
	OnPresence func(p Presence, joined bool)
	// OnServerError reports error events sent by the server.
	OnServerError func(err error)
}
