package difluid

import (
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/mock"
	"github.com/fako1024/de1ble/pkg/scale"
	"gotest.tools/v3/assert"
)

func frame(raw uint32) []byte {
	data := make([]byte, minFrameLen)
	data[0], data[1] = 0xDF, 0xDF
	data[5] = byte(raw >> 24)
	data[6] = byte(raw >> 16)
	data[7] = byte(raw >> 8)
	data[8] = byte(raw)

	return data
}

func TestParseWeight(t *testing.T) {
	weight, err := parseWeight(frame(365))
	assert.NilError(t, err)
	assert.Equal(t, weight, 36.5)

	_, err = parseWeight(frame(20000))
	assert.ErrorContains(t, err, "out of range")

	invalid := frame(100)
	invalid[1] = 0x00
	_, err = parseWeight(invalid)
	assert.ErrorContains(t, err, "header")

	_, err = parseWeight(frame(100)[:18])
	assert.ErrorContains(t, err, "too short")
}

func TestConnect(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	tr := mock.NewTransport(sched, mock.WithService(dataService, dataCharacteristic))
	d := New(tr, sched)

	assert.NilError(t, d.Connect(scale.Identity{Address: "AA:BB", Name: "Microbalance"}))
	assert.Assert(t, d.IsConnected())
	assert.DeepEqual(t, tr.WritesTo(dataCharacteristic), [][]byte{cmdAutoNotify, cmdGrams})

	tr.Notify(dataCharacteristic, frame(1234))
	assert.Equal(t, d.Weight(), 123.4)

	tr.ClearWrites()
	assert.NilError(t, d.ResetTimer())
	assert.DeepEqual(t, tr.WritesTo(dataCharacteristic), [][]byte{cmdStartTimer})
}
