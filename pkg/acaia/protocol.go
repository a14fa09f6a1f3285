package acaia

import (
	"bytes"
	"math"
)

const (
	header1 = 0xEF
	header2 = 0xDD

	metadataLen = 5

	msgHeartbeat = 0x00
	msgTare      = 0x04
	msgInfo      = 0x07
	msgIdent     = 0x0B
	msgEvent     = 0x0C

	eventWeight       = 5
	eventWeightStatus = 11

	weightPayloadLen = 6
	tarePayloadLen   = 17
)

var (
	header = []byte{header1, header2}

	identPayload     = []byte{0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x30, 0x31, 0x32, 0x33, 0x34, 0x9A, 0x6D}
	configPayload    = []byte{0x09, 0x00, 0x01, 0x01, 0x02, 0x02, 0x01, 0x03, 0x04, 0x11, 0x06}
	heartbeatPayload = []byte{0x02, 0x00, 0x02, 0x00}
)

// message denotes a complete frame extracted from the notification stream
type message struct {
	msgType byte
	event   byte
	data    []byte
}

// weight decodes the weight carried by a weight event, if any
func (m message) weight() (float64, bool) {
	if m.msgType != msgEvent {
		return 0, false
	}

	var offset int
	switch m.event {
	case eventWeight:
		offset = metadataLen
	case eventWeightStatus:
		offset = metadataLen + 3
	default:
		return 0, false
	}
	if len(m.data) < offset+weightPayloadLen {
		return 0, false
	}

	return decodeWeight(m.data[offset : offset+weightPayloadLen]), true
}

// decodeWeight decodes a 24 bit little-endian magnitude, scaled by the unit exponent at
// index 4 and negated if the sign byte at index 5 exceeds 1
func decodeWeight(payload []byte) float64 {
	value := uint32(payload[2])<<16 | uint32(payload[1])<<8 | uint32(payload[0])
	weight := float64(value) / math.Pow(10, float64(payload[4]))
	if payload[5] > 1 {
		weight = -weight
	}

	return weight
}

// reassembler buffers notification fragments until complete messages are available
type reassembler struct {
	buf []byte
}

// Push appends a fragment and returns all messages completed by it. The second
// return value reports if any (possibly incomplete) non-info message was seen
func (r *reassembler) Push(data []byte) (msgs []message, notified bool) {
	r.buf = append(r.buf, data...)

	for len(r.buf) > metadataLen {
		start := bytes.Index(r.buf, header)
		if start < 0 {

			// Retain a trailing first header byte, the second one may follow
			if r.buf[len(r.buf)-1] == header1 {
				r.buf = r.buf[len(r.buf)-1:]
			} else {
				r.buf = r.buf[:0]
			}
			return
		}
		r.buf = r.buf[start:]
		if len(r.buf) <= metadataLen {
			return
		}

		msgType, length, event := r.buf[2], int(r.buf[3]), r.buf[4]
		if msgType != msgInfo {
			notified = true
		}

		end := metadataLen + length
		if len(r.buf) < end {
			return
		}

		msgs = append(msgs, message{
			msgType: msgType,
			event:   event,
			data:    append([]byte(nil), r.buf[:end]...),
		})
		r.buf = r.buf[end:]
	}

	return
}

// Reset discards all buffered data
func (r *reassembler) Reset() {
	r.buf = r.buf[:0]
}

// Len returns the number of buffered bytes
func (r *reassembler) Len() int {
	return len(r.buf)
}

func encode(msgType byte, payload []byte) []byte {
	return append([]byte{header1, header2, msgType}, payload...)
}
