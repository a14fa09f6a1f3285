package hiroia

import (
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/mock"
	"github.com/fako1024/de1ble/pkg/scale"
	"gotest.tools/v3/assert"
)

func TestParseWeight(t *testing.T) {
	for _, c := range []struct {
		in       []byte
		expected float64
	}{
		{[]byte{0x01, 0x00, 0x00, 0x00, 0xE8, 0x03, 0x00}, 100.},
		{[]byte{0x01, 0x00, 0x00, 0x00, 0xE8, 0x03, 0x00, 0x00}, 100.},
		{[]byte{0x01, 0x00, 0x00, 0x00, 0xFE, 0xFF, 0xFF}, -0.1},
		{[]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x80}, -838860.7},
	} {
		weight, err := parseWeight(c.in)
		assert.NilError(t, err)
		assert.Assert(t, weight-c.expected < 1e-9 && c.expected-weight < 1e-9, "want %v, have %v", c.expected, weight)
	}

	_, err := parseWeight([]byte{0x01, 0x00})
	assert.ErrorContains(t, err, "too short")
}

func TestTare(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	tr := mock.NewTransport(sched, mock.WithService(dataService))
	h := New(tr, sched)

	assert.NilError(t, h.Connect(scale.Identity{Address: "AA:BB", Name: "HIROIA JIMMY"}))
	assert.Assert(t, h.IsConnected())
	assert.Equal(t, tr.Subscriptions(statusCharacteristic), 1)

	assert.NilError(t, h.Tare())
	assert.DeepEqual(t, tr.WritesTo(commandCharacteristic), [][]byte{{0x07, 0x00}})

	tr.Notify(statusCharacteristic, []byte{0x01, 0x00, 0x00, 0x00, 0x7B, 0x00, 0x00})
	assert.Equal(t, h.Weight(), 12.3)
}
