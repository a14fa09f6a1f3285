package transport

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BaseUUID denotes the Bluetooth SIG base UUID all 16 bit identifiers are expanded over
var BaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// UUID16 expands a 16 bit SIG identifier to its full 128 bit form
func UUID16(id uint16) uuid.UUID {
	res := BaseUUID
	binary.BigEndian.PutUint16(res[2:4], id)

	return res
}

// ParseUUID parses a UUID in 16 bit ("ffe0"), compact 128 bit or canonical form
func ParseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if len(s) == 4 {
		var id uint16
		if _, err := fmt.Sscanf(s, "%04x", &id); err != nil {
			return uuid.Nil, fmt.Errorf("invalid 16 bit UUID `%s`: %w", s, err)
		}
		return UUID16(id), nil
	}

	res, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID `%s`: %w", s, err)
	}

	return res, nil
}

// MustParseUUID parses a UUID and panics on failure (for static tables only)
func MustParseUUID(s string) uuid.UUID {
	res, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}

	return res
}

// ShortUUID returns the 16 bit representation of a SIG based UUID
func ShortUUID(u uuid.UUID) (uint16, bool) {
	base := u
	base[2], base[3] = 0, 0
	if base != BaseUUID || u[0] != 0 || u[1] != 0 {
		return 0, false
	}

	return binary.BigEndian.Uint16(u[2:4]), true
}
