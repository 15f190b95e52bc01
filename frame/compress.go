package frame

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const compressionThreshold = 1024 // only compress payloads > 1KB

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)
)

// Seal builds a complete frame for the given event, compressing the payload
// with zstd when it is large enough for that to pay off.
func Seal(eventType uint8, id ID, payload []byte) ([]byte, error) {
	h := Header{Type: eventType, CorrelationID: id}
	if len(payload) > compressionThreshold {
		compressed := encoder.EncodeAll(payload, make([]byte, 0, len(payload)))
		if len(compressed) < len(payload) {
			h.Flags |= FlagCompressed
			payload = compressed
		}
	}
	return Encode(h, payload)
}

// Open decodes a frame and returns its header and the plain payload.
func Open(data []byte) (Header, []byte, error) {
	h, payload, err := Decode(data)
	if err != nil {
		return Header{}, nil, err
	}
	if !h.IsCompressed() {
		return h, payload, nil
	}
	plain, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return Header{}, nil, fmt.Errorf("frame: decompress %s: %w", h.Name(), err)
	}
	if len(plain) > MaxPayloadLen {
		return Header{}, nil, ErrPayloadTooLarge
	}
	return h, plain, nil
}
