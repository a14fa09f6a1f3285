package skale

import (
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/mock"
	"github.com/fako1024/de1ble/pkg/scale"
	"gotest.tools/v3/assert"
)

func TestSkale(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	tr := mock.NewTransport(sched, mock.WithService(dataService))
	s := New(tr, sched)

	var buttons []int
	s.SetButtonHandler(func(button int) {
		buttons = append(buttons, button)
	})

	assert.NilError(t, s.Connect(scale.Identity{Address: "AA:BB", Name: "Skale"}))
	assert.Assert(t, s.IsConnected())
	assert.Equal(t, tr.Subscriptions(weightCharacteristic), 1)
	assert.Equal(t, tr.Subscriptions(buttonCharacteristic), 1)
	assert.DeepEqual(t, tr.WritesTo(commandCharacteristic), [][]byte{{cmdGrams}, {cmdDisplayOn}, {cmdWeightOn}})

	tr.Notify(weightCharacteristic, []byte{0xEF, 0x39, 0x01})
	assert.Equal(t, s.Weight(), 31.3)
	tr.Notify(weightCharacteristic, []byte{0xEF, 0xF6, 0xFF})
	assert.Equal(t, s.Weight(), -1.)
	tr.Notify(buttonCharacteristic, []byte{0x02})
	assert.DeepEqual(t, buttons, []int{2})

	tr.ClearWrites()
	assert.NilError(t, s.Tare())
	assert.NilError(t, s.StartTimer())
	assert.NilError(t, s.Sleep())
	assert.DeepEqual(t, tr.WritesTo(commandCharacteristic), [][]byte{{cmdTare}, {cmdStartTimer}, {cmdDisplayOff}})
}
