package mock

import (
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

// Write denotes a single characteristic write recorded by the mock transport
type Write struct {
	Service        uuid.UUID
	Characteristic uuid.UUID
	Data           []byte
}

// Transport denotes a scripted in-memory peripheral. All events are delivered via
// the provided scheduler, so it can be driven deterministically using loop.Manual
type Transport struct {
	sched   loop.Scheduler
	handler transport.Handler
	gen     int

	services     []uuid.UUID
	serviceChars map[uuid.UUID][]uuid.UUID

	rejectNotifications bool
	connectError        string

	connected bool
	address   string
	name      string

	writes        []Write
	subscriptions map[uuid.UUID]int
	reads         map[uuid.UUID]int

	connectCount    int
	disconnectCount int
}

// NewTransport instantiates a new mock transport, executing functional options, if any
func NewTransport(sched loop.Scheduler, options ...func(*Transport)) *Transport {
	t := &Transport{
		sched:         sched,
		serviceChars:  make(map[uuid.UUID][]uuid.UUID),
		subscriptions: make(map[uuid.UUID]int),
		reads:         make(map[uuid.UUID]int),
	}

	for _, option := range options {
		option(t)
	}

	return t
}

// WithService adds a service (and its characteristics) to the simulated peripheral
func WithService(service uuid.UUID, characteristics ...uuid.UUID) func(*Transport) {
	return func(t *Transport) {
		t.services = append(t.services, service)
		t.serviceChars[service] = characteristics
	}
}

// WithRejectedNotifications simulates a platform that silently drops the subscription
// confirmation (no notificationsEnabled event is emitted)
func WithRejectedNotifications() func(*Transport) {
	return func(t *Transport) {
		t.rejectNotifications = true
	}
}

// WithConnectError makes every connection attempt fail with the given message
func WithConnectError(msg string) func(*Transport) {
	return func(t *Transport) {
		t.connectError = msg
	}
}

// SetHandler attaches the receiver of all events
func (t *Transport) SetHandler(h transport.Handler) {
	t.handler = h
}

// Connect simulates a connection attempt
func (t *Transport) Connect(address, name string) {
	t.gen++
	t.connectCount++
	t.address, t.name = address, name

	if t.connectError != "" {
		msg := t.connectError
		t.emit(func(h transport.Handler) {
			h.OnError(msg)
		})
		return
	}

	t.connected = true
	t.emit(func(h transport.Handler) {
		h.OnConnected()
	})
}

// Disconnect simulates a connection termination. Like the real backends, events of
// the terminated connection are no longer delivered
func (t *Transport) Disconnect() {
	t.disconnectCount++
	t.gen++
	t.connected = false
}

// DiscoverServices reports all configured services
func (t *Transport) DiscoverServices() {
	for _, s := range t.services {
		s := s
		t.emit(func(h transport.Handler) {
			h.OnServiceDiscovered(s)
		})
	}
	t.emit(func(h transport.Handler) {
		h.OnServicesDiscoveryFinished()
	})
}

// DiscoverCharacteristics reports the completion of characteristic discovery
func (t *Transport) DiscoverCharacteristics(service uuid.UUID) {
	t.emit(func(h transport.Handler) {
		h.OnCharacteristicsDiscoveryFinished(service)
	})
}

// EnableNotifications records the subscription and confirms it (unless rejected)
func (t *Transport) EnableNotifications(_, characteristic uuid.UUID) {
	t.subscriptions[characteristic]++
	if t.rejectNotifications {
		return
	}

	t.emit(func(h transport.Handler) {
		h.OnNotificationsEnabled(characteristic)
	})
}

// WriteCharacteristic records the write and confirms it
func (t *Transport) WriteCharacteristic(service, characteristic uuid.UUID, data []byte) {
	t.writes = append(t.writes, Write{
		Service:        service,
		Characteristic: characteristic,
		Data:           append([]byte(nil), data...),
	})
	t.emit(func(h transport.Handler) {
		h.OnCharacteristicWritten(characteristic)
	})
}

// ReadCharacteristic records the read request
func (t *Transport) ReadCharacteristic(_, characteristic uuid.UUID) {
	t.reads[characteristic]++
}

// IsConnected returns if the simulated link is established
func (t *Transport) IsConnected() bool {
	return t.connected
}

// Notify simulates a notification from the peripheral
func (t *Transport) Notify(characteristic uuid.UUID, data []byte) {
	t.emit(func(h transport.Handler) {
		h.OnCharacteristicChanged(characteristic, data)
	})
}

// Drop simulates a link loss
func (t *Transport) Drop() {
	t.connected = false
	t.emit(func(h transport.Handler) {
		h.OnDisconnected()
	})
}

// Fail simulates a transport error
func (t *Transport) Fail(msg string) {
	t.emit(func(h transport.Handler) {
		h.OnError(msg)
	})
}

// Writes returns all recorded writes
func (t *Transport) Writes() []Write {
	return t.writes
}

// WritesTo returns the payloads written to a characteristic
func (t *Transport) WritesTo(characteristic uuid.UUID) (res [][]byte) {
	for _, w := range t.writes {
		if w.Characteristic == characteristic {
			res = append(res, w.Data)
		}
	}

	return
}

// ClearWrites discards all recorded writes
func (t *Transport) ClearWrites() {
	t.writes = nil
}

// Subscriptions returns the number of notification requests for a characteristic
func (t *Transport) Subscriptions(characteristic uuid.UUID) int {
	return t.subscriptions[characteristic]
}

// Reads returns the number of read requests for a characteristic
func (t *Transport) Reads(characteristic uuid.UUID) int {
	return t.reads[characteristic]
}

// ConnectCount returns the number of connection attempts
func (t *Transport) ConnectCount() int {
	return t.connectCount
}

// DisconnectCount returns the number of disconnect requests
func (t *Transport) DisconnectCount() int {
	return t.disconnectCount
}

// Address returns the address of the last connection attempt
func (t *Transport) Address() string {
	return t.address
}

// HasHandler returns if a handler is attached
func (t *Transport) HasHandler() bool {
	return t.handler != nil
}

////////////////////////////////////////////////////////////////////////////////

func (t *Transport) emit(fn func(h transport.Handler)) {
	gen := t.gen
	t.sched.Post(func() {
		if t.handler == nil || gen != t.gen {
			return
		}
		fn(t.handler)
	})
}
