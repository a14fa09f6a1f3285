package bookoo

import (
	"errors"
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/mock"
	"github.com/fako1024/de1ble/pkg/scale"
	"gotest.tools/v3/assert"
)

var testFrame = []byte{0x03, 0x0B, 0x00, 0x00, 0x00, 0x00, '-', 0x00, 0x04, 0xD2, 0x00}

func newTestScale(options ...func(*mock.Transport)) (*loop.Manual, *mock.Transport, *Bookoo) {
	sched := loop.NewManual(time.Unix(0, 0))
	tr := mock.NewTransport(sched, append([]func(*mock.Transport){mock.WithService(dataService)}, options...)...)

	return sched, tr, New(tr, sched)
}

func TestParseWeight(t *testing.T) {
	weight, err := parseWeight(testFrame)
	assert.NilError(t, err)
	assert.Equal(t, weight, -12.34)

	positive := append([]byte{}, testFrame...)
	positive[6] = '+'
	weight, err = parseWeight(positive)
	assert.NilError(t, err)
	assert.Equal(t, weight, 12.34)

	_, err = parseWeight(testFrame[:9])
	assert.ErrorContains(t, err, "too short")
}

func TestConnectOnData(t *testing.T) {
	sched, tr, b := newTestScale()

	assert.NilError(t, b.Connect(scale.Identity{Address: "AA:BB", Name: "BOOKOO_SC"}))
	assert.Equal(t, b.ConnectionStatus().State, scale.StateCharacteristicDiscovery)

	sched.Advance(SubscribeDelay)
	assert.Equal(t, tr.Subscriptions(statusCharacteristic), 1)
	assert.Assert(t, !b.IsConnected())

	tr.Notify(statusCharacteristic, testFrame)
	assert.Assert(t, b.IsConnected())
	assert.Equal(t, b.Weight(), -12.34)

	// The watchdog is satisfied
	sched.Advance(10 * WatchdogTimeout)
	assert.Equal(t, tr.Subscriptions(statusCharacteristic), 1)
	assert.NilError(t, b.Tare())
	assert.DeepEqual(t, tr.WritesTo(commandCharacteristic), [][]byte{cmdTare})
}

func TestWatchdogExhaustion(t *testing.T) {
	sched, tr, b := newTestScale(mock.WithRejectedNotifications())

	var errs []error
	b.SetErrorHandler(func(err error) {
		errs = append(errs, err)
	})

	assert.NilError(t, b.Connect(scale.Identity{Address: "AA:BB", Name: "BOOKOO_SC"}))
	sched.Advance(SubscribeDelay)
	for i := 0; i < MaxRetries; i++ {
		sched.Advance(WatchdogTimeout)
		assert.Equal(t, tr.Subscriptions(statusCharacteristic), i+2)
	}
	assert.Equal(t, len(errs), 0)

	sched.Advance(WatchdogTimeout)
	assert.Equal(t, len(errs), 1)
	assert.Assert(t, errors.Is(errs[0], scale.ErrNotResponding))
	assert.Equal(t, b.ConnectionStatus().State, scale.StateFailed)
	assert.Equal(t, tr.DisconnectCount(), 0)
	assert.Equal(t, sched.Pending(), 0)
}

func TestDisconnectCancelsWatchdog(t *testing.T) {
	sched, tr, b := newTestScale()

	assert.NilError(t, b.Connect(scale.Identity{Address: "AA:BB", Name: "BOOKOO_SC"}))
	sched.Advance(SubscribeDelay)
	tr.Drop()
	assert.Equal(t, sched.Pending(), 0)
	assert.Equal(t, b.ConnectionStatus().State, scale.StateDisconnected)
}
