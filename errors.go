package chatsync

import "errors"

// Precondition errors returned synchronously by Send, Edit and Delete.
// Nothing is emitted and the Store is untouched when one is returned.
var (
	ErrNotConnected     = errors.New("channel not connected")
	ErrNoConversation   = errors.New("no conversation joined")
	ErrEmptyContent     = errors.New("content is empty")
	ErrUnknownMessage   = errors.New("message not in store")
	ErrNotAuthor        = errors.New("message authored by another participant")
	ErrContentUnchanged = errors.New("content unchanged")
	ErrDeleteCancelled  = errors.New("delete not confirmed")
)

// Channel errors.
var (
	ErrClosed         = errors.New("channel closed")
	ErrSendBufferFull = errors.New("send buffer full")
	ErrAuthFailed     = errors.New("auth failed")
)

// ServerError is an error event pushed by the gateway. CorrelationID names
// the outbound frame it answers, when the server echoes one.
type ServerError struct {
	Message       string
	CorrelationID string
}

func (e *ServerError) Error() string { return "server: " + e.Message }
