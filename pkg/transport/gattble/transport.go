package gattble

import (
	"fmt"
	"sync"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/fako1024/gatt"
	"github.com/google/uuid"
)

const opQueueSize = 64

type linkState int

const (
	linkPending linkState = iota
	linkDialing
	linkConnected
	linkClosed
)

// Transport denotes a single connection on the GATT stack. Blocking GATT calls are
// executed in order on a per-connection worker goroutine, their results are posted
// to the control loop
type Transport struct {
	stack  *Stack
	sched  loop.Scheduler
	logger scale.Logger

	// Only accessed on the control loop
	handler transport.Handler
	address string

	mu   sync.Mutex
	link *link
}

type link struct {
	state linkState
	ops   chan func()
	done  chan struct{}
	once  sync.Once

	// Guarded by the transport mutex
	peer gatt.Peripheral

	// Only accessed on the worker goroutine
	p        gatt.Peripheral
	services map[uuid.UUID]*gatt.Service
	chars    map[uuid.UUID]*gatt.Characteristic
}

// SetHandler attaches the receiver of all events (nil detaches the current one)
func (t *Transport) SetHandler(h transport.Handler) {
	t.handler = h
}

// Connect initiates a connection to the peripheral with the given address
func (t *Transport) Connect(address, name string) {
	t.Disconnect()

	l := &link{
		ops:      make(chan func(), opQueueSize),
		done:     make(chan struct{}),
		services: make(map[uuid.UUID]*gatt.Service),
		chars:    make(map[uuid.UUID]*gatt.Characteristic),
	}
	go l.run()

	t.mu.Lock()
	t.link = l
	t.mu.Unlock()

	t.address = transport.NormalizeAddress(address)
	t.logger.Debugf("connecting to `%s` (%s)", name, t.address)
	t.stack.connect(t, l, t.address)
}

// Disconnect terminates the connection (if any). Events of the terminated link,
// including the disconnection itself, are not delivered
func (t *Transport) Disconnect() {
	t.mu.Lock()
	l := t.link
	if l == nil {
		t.mu.Unlock()
		return
	}
	state := l.state
	l.state = linkClosed
	t.link = nil
	t.mu.Unlock()

	t.stack.cancel(t.address)
	if state == linkConnected && l.peer != nil {
		if err := t.stack.device.CancelConnection(l.peer); err != nil {
			t.logger.Warnf("failed to cancel connection to `%s`: %s", t.address, err)
		}
	}
	l.close()
}

// IsConnected returns if the link to the peripheral is established
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.link != nil && t.link.state == linkConnected
}

// DiscoverServices enumerates the services of the peripheral
func (t *Transport) DiscoverServices() {
	t.do(func(l *link) {
		ss, err := l.p.DiscoverServices(nil)
		if err != nil {
			t.fail(l, fmt.Sprintf("failed to discover services: %s", err))
			return
		}

		for _, s := range ss {
			id, err := fromGatt(s.UUID())
			if err != nil {
				continue
			}
			l.services[id] = s
			t.emit(l, func(h transport.Handler) {
				h.OnServiceDiscovered(id)
			})
		}
		t.emit(l, func(h transport.Handler) {
			h.OnServicesDiscoveryFinished()
		})
	})
}

// DiscoverCharacteristics enumerates the characteristics of a service
func (t *Transport) DiscoverCharacteristics(service uuid.UUID) {
	t.do(func(l *link) {
		s, ok := l.services[service]
		if !ok {
			t.fail(l, fmt.Sprintf("unknown service %s", service))
			return
		}

		cs, err := l.p.DiscoverCharacteristics(nil, s)
		if err != nil {
			t.fail(l, fmt.Sprintf("failed to discover characteristics: %s", err))
			return
		}
		for _, c := range cs {
			id, err := fromGatt(c.UUID())
			if err != nil {
				continue
			}
			l.chars[id] = c

			// Descriptors are required to locate the CCCD when subscribing
			if _, err := l.p.DiscoverDescriptors(nil, c); err != nil {
				t.logger.Debugf("failed to discover descriptors of %s: %s", id, err)
			}
		}

		t.emit(l, func(h transport.Handler) {
			h.OnCharacteristicsDiscoveryFinished(service)
		})
	})
}

// EnableNotifications subscribes to value changes of a characteristic. A rejected
// CCCD write is not fatal: some scales refuse it and notify regardless
func (t *Transport) EnableNotifications(_, characteristic uuid.UUID) {
	t.do(func(l *link) {
		c, ok := l.chars[characteristic]
		if !ok {
			t.fail(l, fmt.Sprintf("unknown characteristic %s", characteristic))
			return
		}

		if err := l.p.SetNotifyValue(c, func(_ *gatt.Characteristic, data []byte, err error) {
			if err != nil {
				return
			}
			data = append([]byte(nil), data...)
			t.emit(l, func(h transport.Handler) {
				h.OnCharacteristicChanged(characteristic, data)
			})
		}); err != nil {
			t.logger.Warnf("subscription to %s rejected, relying on unsolicited notifications: %s", characteristic, err)
		}

		t.emit(l, func(h transport.Handler) {
			h.OnNotificationsEnabled(characteristic)
		})
	})
}

// WriteCharacteristic writes a value to a characteristic
func (t *Transport) WriteCharacteristic(_, characteristic uuid.UUID, data []byte) {
	data = append([]byte(nil), data...)
	t.do(func(l *link) {
		c, ok := l.chars[characteristic]
		if !ok {
			t.fail(l, fmt.Sprintf("unknown characteristic %s", characteristic))
			return
		}

		if err := l.p.WriteCharacteristic(c, data, false); err != nil {
			t.fail(l, fmt.Sprintf("failed to write characteristic %s: %s", characteristic, err))
			return
		}
		t.emit(l, func(h transport.Handler) {
			h.OnCharacteristicWritten(characteristic)
		})
	})
}

// ReadCharacteristic reads a value from a characteristic
func (t *Transport) ReadCharacteristic(_, characteristic uuid.UUID) {
	t.do(func(l *link) {
		c, ok := l.chars[characteristic]
		if !ok {
			t.fail(l, fmt.Sprintf("unknown characteristic %s", characteristic))
			return
		}

		data, err := l.p.ReadCharacteristic(c)
		if err != nil {
			t.fail(l, fmt.Sprintf("failed to read characteristic %s: %s", characteristic, err))
			return
		}
		t.emit(l, func(h transport.Handler) {
			h.OnCharacteristicChanged(characteristic, data)
		})
	})
}

////////////////////////////////////////////////////////////////////////////////

func (t *Transport) pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.link != nil && t.link.state == linkPending
}

func (t *Transport) current() *link {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.link
}

func (t *Transport) setDialing(l *link) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.link == l && l.state == linkPending {
		l.state = linkDialing
	}
}

func (t *Transport) attach(p gatt.Peripheral) {
	t.mu.Lock()
	l := t.link
	if l == nil || l.state != linkDialing {
		t.mu.Unlock()
		return
	}
	l.state = linkConnected
	l.peer = p
	t.mu.Unlock()

	// The peripheral is handed to the worker before any operation can be queued
	l.enqueue(func() {
		l.p = p
	})
	t.emit(l, func(h transport.Handler) {
		h.OnConnected()
	})
}

// detach handles the loss of the link to p. It returns false if p does not belong
// to the current link (e.g. a late event of a previous connection)
func (t *Transport) detach(p gatt.Peripheral) bool {
	t.mu.Lock()
	l := t.link
	if l == nil || l.state != linkConnected || l.peer != p {
		t.mu.Unlock()
		return false
	}
	t.link = nil
	t.mu.Unlock()

	// The link is no longer current, so the event is bound to the handler directly
	l.close()
	t.sched.Post(func() {
		if t.current() == nil && t.handler != nil {
			t.handler.OnDisconnected()
		}
	})

	return true
}

func (t *Transport) do(fn func(l *link)) {
	t.mu.Lock()
	l := t.link
	connected := l != nil && l.state == linkConnected
	t.mu.Unlock()

	if !connected {
		t.fail(l, transport.ErrNotConnected.Error())
		return
	}

	l.enqueue(func() {
		fn(l)
	})
}

func (t *Transport) fail(l *link, msg string) {
	t.emit(l, func(h transport.Handler) {
		h.OnError(msg)
	})
}

// emit posts an event of link l to the control loop. It is dropped if l has been
// replaced or terminated in the meantime
func (t *Transport) emit(l *link, fn func(h transport.Handler)) {
	t.sched.Post(func() {
		if t.current() != l || t.handler == nil {
			return
		}
		fn(t.handler)
	})
}

func (l *link) run() {
	for {
		select {
		case op := <-l.ops:
			op()
		case <-l.done:
			return
		}
	}
}

func (l *link) enqueue(op func()) {
	select {
	case l.ops <- op:
	case <-l.done:
	}
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
	})
}
