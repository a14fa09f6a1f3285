package tinyble

import (
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
	"gotest.tools/v3/assert"
)

type recorder struct {
	transport.NopHandler

	disconnected int
	changed      int
}

func (r *recorder) OnDisconnected()                           { r.disconnected++ }
func (r *recorder) OnCharacteristicChanged(uuid.UUID, []byte) { r.changed++ }

func newConnected(sched loop.Scheduler) (*Transport, *conn) {
	c := &conn{
		ops:       make(chan func(), opQueueSize),
		done:      make(chan struct{}),
		connected: true,
	}

	return &Transport{
		sched:  sched,
		logger: &scale.NullLogger{},
		conn:   c,
	}, c
}

func notify(tr *Transport, c *conn) {
	tr.emit(c, func(h transport.Handler) {
		h.OnCharacteristicChanged(transport.UUID16(0xFFF4), []byte{0x01})
	})
}

func TestUUIDConversion(t *testing.T) {
	for _, u := range []string{
		"fff0",
		"0ffe",
		"b905eaea-6c7e-4f73-b43d-2cdfcab29570",
	} {
		id := transport.MustParseUUID(u)
		assert.Equal(t, fromBluetooth(toBluetooth(id)), id, u)
	}

	assert.Equal(t, toBluetooth(transport.UUID16(0xFFF0)).String(), "0000fff0-0000-1000-8000-00805f9b34fb")
}

func TestEventsOfTerminatedConnectionDropped(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	tr, c := newConnected(sched)

	old, fresh := new(recorder), new(recorder)
	tr.SetHandler(old)
	notify(tr, c)
	assert.Equal(t, old.changed, 1)

	sched.Post(func() {
		tr.Disconnect()
		tr.SetHandler(fresh)
		notify(tr, c)
	})

	assert.Assert(t, !tr.IsConnected())
	assert.Equal(t, old.changed, 1)
	assert.Equal(t, old.disconnected, 0)
	assert.Equal(t, fresh.changed+fresh.disconnected, 0)
}

func TestEventsOfReplacedConnectionDropped(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	tr, prev := newConnected(sched)

	h := new(recorder)
	tr.SetHandler(h)

	next := &conn{
		ops:       make(chan func(), opQueueSize),
		done:      make(chan struct{}),
		connected: true,
	}
	tr.mu.Lock()
	tr.conn = next
	tr.mu.Unlock()

	notify(tr, prev)
	assert.Equal(t, h.changed, 0)
	notify(tr, next)
	assert.Equal(t, h.changed, 1)
}
