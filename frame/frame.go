// Package frame implements the binary frame codec used on the chatsync
// channel. Every named event travels as one frame.
//
// Header layout (23 bytes, big-endian):
//
//	[0]     proto_version  uint8
//	[1]     event_type     uint8
//	[2]     flags          uint8  (bit0=compressed, others reserved)
//	[3-6]   payload_len    uint32
//	[7-22]  correlation_id 16 bytes (ULID)
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	HeaderSize    = 23
	ProtoVersion  = 1
	MaxPayloadLen = 32 * 1024 // 32 KB hard limit
)

// Event types. Must fit in uint8.
const (
	TypeConnect        uint8 = 1
	TypeAuthOK         uint8 = 2
	TypeAuthFail       uint8 = 3
	TypeJoinChat       uint8 = 4
	TypeLeaveChat      uint8 = 5
	TypeSendMessage    uint8 = 6
	TypeEditMessage    uint8 = 7
	TypeDeleteMessage  uint8 = 8
	TypeReceiveMessage uint8 = 9
	TypeMessageEdited  uint8 = 10
	TypeMessageDeleted uint8 = 11
	TypeUserJoined     uint8 = 12
	TypeUserLeft       uint8 = 13
	TypeError          uint8 = 14
	TypeClose          uint8 = 15
)

var eventNames = map[uint8]string{
	TypeConnect:        "connect",
	TypeAuthOK:         "auth_ok",
	TypeAuthFail:       "auth_fail",
	TypeJoinChat:       "join_chat",
	TypeLeaveChat:      "leave_chat",
	TypeSendMessage:    "send_message",
	TypeEditMessage:    "edit_message",
	TypeDeleteMessage:  "delete_message",
	TypeReceiveMessage: "receive_message",
	TypeMessageEdited:  "message_edited",
	TypeMessageDeleted: "message_deleted",
	TypeUserJoined:     "user_joined",
	TypeUserLeft:       "user_left",
	TypeError:          "error",
	TypeClose:          "close",
}

// EventName returns the protocol name of an event type, or "unknown".
func EventName(t uint8) string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// FlagCompressed marks a zstd-compressed payload.
const FlagCompressed uint8 = 1 << 0

var (
	ErrBadVersion      = errors.New("frame: unsupported protocol version")
	ErrPayloadTooLarge = errors.New("frame: payload exceeds maximum size")
	ErrShortRead       = errors.New("frame: short read")
)

// Header is the fixed 23-byte header preceding every frame.
type Header struct {
	Version       uint8
	Type          uint8
	Flags         uint8
	PayloadLen    uint32
	CorrelationID ID
}

// Encode serialises a header and payload into a single byte slice.
func Encode(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLen {
		return nil, ErrPayloadTooLarge
	}
	h.PayloadLen = uint32(len(payload))
	h.Version = ProtoVersion

	out := make([]byte, HeaderSize+len(payload))
	putHeader(out, h)
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Decode parses a byte slice into a header and payload.
func Decode(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, ErrShortRead
	}
	h, err := parseHeader(data[:HeaderSize])
	if err != nil {
		return Header{}, nil, err
	}

	end := HeaderSize + int(h.PayloadLen)
	if len(data) < end {
		return Header{}, nil, ErrShortRead
	}
	return h, data[HeaderSize:end], nil
}

func putHeader(out []byte, h Header) {
	out[0] = h.Version
	out[1] = h.Type
	out[2] = h.Flags
	binary.BigEndian.PutUint32(out[3:7], h.PayloadLen)
	copy(out[7:23], h.CorrelationID[:])
}

func parseHeader(hdr []byte) (Header, error) {
	var h Header
	h.Version = hdr[0]
	if h.Version != ProtoVersion {
		return Header{}, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, h.Version, ProtoVersion)
	}
	h.Type = hdr[1]
	h.Flags = hdr[2]
	h.PayloadLen = binary.BigEndian.Uint32(hdr[3:7])
	copy(h.CorrelationID[:], hdr[7:23])

	if h.PayloadLen > MaxPayloadLen {
		return Header{}, ErrPayloadTooLarge
	}
	return h, nil
}

// Name returns the protocol name of the header's event type.
func (h Header) Name() string { return EventName(h.Type) }

// IsCompressed returns true if the compressed flag is set.
func (h Header) IsCompressed() bool { return h.Flags&FlagCompressed != 0 }
