package chatsync

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/NeboLoop/chatsync-go-sdk/frame"
	"github.com/NeboLoop/chatsync-go-sdk/wire"
)

// Outbound is the channel side the Dispatcher writes to.
type Outbound interface {
	Emitter
	// Room returns the joined conversation, ErrNotConnected when there is
	// no channel or ErrNoConversation when no room is joined.
	Room() (string, error)
}

// Dispatcher turns user actions into channel emissions. Emissions are
// fire-and-forget: the outcome arrives later as an inbound event.
//
// Edits are applied to the Store before the round trip and rolled back if
// the emission fails synchronously. Sends and deletes are not applied
// locally; the store changes only when the server echoes them.
type Dispatcher struct {
	out     Outbound
	view    func() *Store
	self    func() string
	confirm func(Message) bool
	changed func(*Store)
	logger  *slog.Logger
}

// NewDispatcher wires a dispatcher. view returns the active store (nil when
// no conversation is open), self the local participant id. confirm and
// changed may be nil.
func NewDispatcher(out Outbound, view func() *Store, self func() string, confirm func(Message) bool, changed func(*Store), logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		out:     out,
		view:    view,
		self:    self,
		confirm: confirm,
		changed: changed,
		logger:  logger.With("component", "dispatcher"),
	}
}

// Send emits a new message to the joined conversation.
func (d *Dispatcher) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}
	room, err := d.out.Room()
	if err != nil {
		return err
	}
	if err := d.out.Emit(frame.TypeSendMessage, wire.SendPayload{ConversationID: room, Content: content}); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Edit changes the content of one of the local participant's messages.
func (d *Dispatcher) Edit(messageID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}
	s, cur, room, err := d.owned(messageID)
	if err != nil {
		return err
	}
	if cur.Content == content {
		return ErrContentUnchanged
	}

	rev, ok := s.ApplyLocalEdit(messageID, content)
	if !ok {
		return fmt.Errorf("edit %s: %w", messageID, ErrUnknownMessage)
	}
	err = d.out.Emit(frame.TypeEditMessage, wire.EditPayload{
		ConversationID: room,
		MessageID:      messageID,
		Content:        content,
	})
	if err != nil {
		if s.Revert(rev) {
			d.logger.Debug("optimistic edit rolled back", "message_id", messageID, "error", err)
			if d.changed != nil {
				d.changed(s)
			}
		}
		return fmt.Errorf("edit %s: %w", messageID, err)
	}
	if d.changed != nil {
		d.changed(s)
	}
	return nil
}

// Delete asks the server to remove one of the local participant's messages.
func (d *Dispatcher) Delete(messageID string) error {
	_, cur, room, err := d.owned(messageID)
	if err != nil {
		return err
	}
	if d.confirm != nil && !d.confirm(cur) {
		return ErrDeleteCancelled
	}
	if err := d.out.Emit(frame.TypeDeleteMessage, wire.DeletePayload{ConversationID: room, MessageID: messageID}); err != nil {
		return fmt.Errorf("delete %s: %w", messageID, err)
	}
	return nil
}

// owned checks that messageID is in the active store, authored locally, and
// that the channel is joined to that store's conversation.
func (d *Dispatcher) owned(messageID string) (*Store, Message, string, error) {
	s := d.view()
	if s == nil {
		return nil, Message{}, "", ErrNoConversation
	}
	cur, ok := s.Get(messageID)
	if !ok {
		return nil, Message{}, "", fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}
	if self := d.self(); self == "" || cur.SenderID != self {
		return nil, Message{}, "", fmt.Errorf("%w: %s", ErrNotAuthor, messageID)
	}
	room, err := d.out.Room()
	if err != nil {
		return nil, Message{}, "", err
	}
	if room != s.ConversationID() {
		return nil, Message{}, "", ErrNoConversation
	}
	return s, cur, room, nil
}
