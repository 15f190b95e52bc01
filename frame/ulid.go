package frame

import (
	"crypto/rand"
	"sync"
	"time"
)

// ID is a 16-byte ULID used to correlate an outbound frame with log lines
// on both ends of the channel.
type ID [16]byte

// IsZero reports whether the id was never assigned.
func (id ID) IsZero() bool { return id == ID{} }

// Time extracts the millisecond timestamp from the id.
func (id ID) Time() time.Time {
	ms := uint64(id[0])<<40 | uint64(id[1])<<32 | uint64(id[2])<<24 |
		uint64(id[3])<<16 | uint64(id[4])<<8 | uint64(id[5])
	return time.UnixMilli(int64(ms))
}

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// String renders the id in the canonical 26-character Crockford base32 form.
func (id ID) String() string {
	var out [26]byte
	// 128 bits -> 26 chars of 5 bits; the first char carries the top 3 bits.
	var acc uint64
	bits := 0
	pos := 25
	for i := 15; i >= 0; i-- {
		acc |= uint64(id[i]) << bits
		bits += 8
		for bits >= 5 && pos >= 0 {
			out[pos] = crockford[acc&0x1f]
			acc >>= 5
			bits -= 5
			pos--
		}
	}
	if pos >= 0 {
		out[pos] = crockford[acc&0x1f]
	}
	return string(out[:])
}

// IDGen generates monotonic ULIDs.
// Thread-safe via mutex. Entropy from crypto/rand.
type IDGen struct {
	mu   sync.Mutex
	last ID
}

// NewIDGen creates a new generator.
func NewIDGen() *IDGen {
	return &IDGen{}
}

// Next returns a new monotonic id.
//
// Layout:
//
//	[0-5]   48-bit Unix millisecond timestamp (big-endian)
//	[6-15]  80-bit random, monotonically incrementing within same ms
func (g *IDGen) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := uint64(time.Now().UnixMilli())

	var id ID
	id[0] = byte(now >> 40)
	id[1] = byte(now >> 32)
	id[2] = byte(now >> 24)
	id[3] = byte(now >> 16)
	id[4] = byte(now >> 8)
	id[5] = byte(now)

	if [6]byte(id[:6]) == [6]byte(g.last[:6]) {
		copy(id[6:], g.last[6:])
		for i := 15; i >= 6; i-- {
			id[i]++
			if id[i] != 0 {
				break
			}
		}
	} else {
		rand.Read(id[6:])
	}

	g.last = id
	return id
}
