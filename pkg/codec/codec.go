// Package codec provides the fixed-point encodings of the DE1 wire protocol
// and the checksum helpers shared by several scale protocols
package codec

import (
	"encoding/binary"
	"math"
)

const (

	// U8P4Max denotes the largest value representable as U8P4
	U8P4Max = 255. / 16.

	// U8P1Max denotes the largest value representable as U8P1
	U8P1Max = 255. / 2.

	// F817Max denotes the largest duration (in seconds) representable as F8_1_7
	F817Max = 127.

	// U10P0Max denotes the largest value representable as U10P0
	U10P0Max = 1023

	f817CoarseThreshold = 12.75
	f817CoarseFlag      = 0x80
)

// EncodeU8P4 encodes a value as unsigned byte with 4 fractional bits
func EncodeU8P4(v float64) byte {
	return byte(math.Round(clamp(v, 0, U8P4Max) * 16.))
}

// DecodeU8P4 decodes a U8P4 byte
func DecodeU8P4(b byte) float64 {
	return float64(b) / 16.
}

// EncodeU8P1 encodes a value as unsigned byte with 1 fractional bit
func EncodeU8P1(v float64) byte {
	return byte(math.Round(clamp(v, 0, U8P1Max) * 2.))
}

// DecodeU8P1 decodes a U8P1 byte
func DecodeU8P1(b byte) float64 {
	return float64(b) / 2.
}

// EncodeF8_1_7 encodes a duration in seconds. Values below 12.75s are stored
// in tenths of a second, larger values in whole seconds with the top bit set
func EncodeF8_1_7(v float64) byte {
	v = clamp(v, 0, F817Max)
	if v < f817CoarseThreshold {
		return byte(math.Round(v * 10.))
	}

	return byte(math.Round(v)) | f817CoarseFlag
}

// DecodeF8_1_7 decodes an F8_1_7 byte
func DecodeF8_1_7(b byte) float64 {
	if b&f817CoarseFlag != 0 {
		return float64(b &^ f817CoarseFlag)
	}

	return float64(b) / 10.
}

// EncodeU10P0 encodes a value as 10 bit unsigned integer in big endian order
func EncodeU10P0(v float64) [2]byte {
	var res [2]byte
	binary.BigEndian.PutUint16(res[:], uint16(math.Round(clamp(v, 0, U10P0Max))))

	return res
}

// DecodeU10P0 decodes a big endian U10P0 field
func DecodeU10P0(b [2]byte) float64 {
	return float64(binary.BigEndian.Uint16(b[:]) & U10P0Max)
}

// XOR returns the running XOR of all provided bytes
func XOR(data ...byte) (res byte) {
	for _, b := range data {
		res ^= b
	}

	return
}

////////////////////////////////////////////////////////////////////////////////

func clamp(v, min, max float64) float64 {
	if math.IsNaN(v) || v < min {
		return min
	}
	if v > max {
		return max
	}

	return v
}
