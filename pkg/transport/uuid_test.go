package transport

import (
	"testing"

	"github.com/google/uuid"

	"gotest.tools/v3/assert"
)

func TestParseUUID(t *testing.T) {
	for _, c := range []struct {
		in       string
		expected string
	}{
		{"ffe0", "0000ffe0-0000-1000-8000-00805f9b34fb"},
		{"0xFFE0", "0000ffe0-0000-1000-8000-00805f9b34fb"},
		{"0000A000-0000-1000-8000-00805F9B34FB", "0000a000-0000-1000-8000-00805f9b34fb"},
		{"49535343fe7d4ae58fa99fafd205e455", "49535343-fe7d-4ae5-8fa9-9fafd205e455"},
	} {
		u, err := ParseUUID(c.in)
		assert.NilError(t, err)
		assert.Equal(t, u.String(), c.expected)
	}

	_, err := ParseUUID("xyz")
	assert.ErrorContains(t, err, "invalid UUID")
}

func TestShortUUID(t *testing.T) {
	id, ok := ShortUUID(UUID16(0x2A80))
	assert.Assert(t, ok)
	assert.Equal(t, id, uint16(0x2A80))

	_, ok = ShortUUID(MustParseUUID("49535343-FE7D-4AE5-8FA9-9FAFD205E455"))
	assert.Assert(t, !ok)
}

func TestAdvertisementHasService(t *testing.T) {
	adv := Advertisement{
		Services: []uuid.UUID{UUID16(0x1820)},
	}
	assert.Assert(t, adv.HasService(UUID16(0x1820)))
	assert.Assert(t, !adv.HasService(UUID16(0xFFE0)))
	assert.Equal(t, NormalizeAddress(" aa:bb:cc:dd:ee:ff "), "AA:BB:CC:DD:EE:FF")
}
