package chatsync

import (
	"fmt"
	"sync"

	"github.com/NeboLoop/chatsync-go-sdk/frame"
	"github.com/NeboLoop/chatsync-go-sdk/wire"
)

// Emitter puts one named event on the channel.
type Emitter interface {
	Emit(eventType uint8, payload any) error
}

// RoomController tracks the single conversation room a channel session is
// subscribed to. States are NoRoom (joined == "") and Joined(id).
type RoomController struct {
	mu     sync.Mutex
	out    Emitter
	joined string
}

// NewRoomController creates a controller in the NoRoom state.
func NewRoomController(out Emitter) *RoomController {
	return &RoomController{out: out}
}

// Select moves membership to conversationID. Switching rooms emits leave for
// the old room immediately followed by join for the new one; selecting the
// current room does nothing and "" leaves.
func (r *RoomController) Select(conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conversationID == r.joined {
		return nil
	}
	if r.joined != "" {
		prev := r.joined
		r.joined = ""
		if err := r.out.Emit(frame.TypeLeaveChat, wire.RoomPayload{ConversationID: prev}); err != nil {
			return fmt.Errorf("leave %s: %w", prev, err)
		}
	}
	if conversationID == "" {
		return nil
	}
	if err := r.out.Emit(frame.TypeJoinChat, wire.RoomPayload{ConversationID: conversationID}); err != nil {
		return fmt.Errorf("join %s: %w", conversationID, err)
	}
	r.joined = conversationID
	return nil
}

// Leave emits leave for the current room, if any.
func (r *RoomController) Leave() error { return r.Select("") }

// Reset forgets the current room without emitting anything. Used when the
// channel is already gone.
func (r *RoomController) Reset() {
	r.mu.Lock()
	r.joined = ""
	r.mu.Unlock()
}

// Joined returns the current room.
func (r *RoomController) Joined() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined, r.joined != ""
}
