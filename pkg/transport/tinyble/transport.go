package tinyble

import (
	"fmt"
	"sync"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

const opQueueSize = 64

// Transport denotes a single connection on the adapter. All blocking calls are
// executed in order on a per-connection worker goroutine, their results are
// posted to the control loop
type Transport struct {
	adapter *Adapter
	sched   loop.Scheduler
	logger  scale.Logger

	// Only accessed on the control loop
	handler transport.Handler

	mu   sync.Mutex
	conn *conn
}

type conn struct {
	ops  chan func()
	done chan struct{}
	once sync.Once

	connected bool

	// Only accessed on the worker goroutine
	device   bluetooth.Device
	services map[uuid.UUID]bluetooth.DeviceService
	chars    map[uuid.UUID]bluetooth.DeviceCharacteristic
}

// SetHandler attaches the receiver of all events (nil detaches the current one)
func (t *Transport) SetHandler(h transport.Handler) {
	t.handler = h
}

// Connect initiates a connection to the peripheral with the given address
func (t *Transport) Connect(address, name string) {
	t.Disconnect()

	c := &conn{
		ops:      make(chan func(), opQueueSize),
		done:     make(chan struct{}),
		services: make(map[uuid.UUID]bluetooth.DeviceService),
		chars:    make(map[uuid.UUID]bluetooth.DeviceCharacteristic),
	}
	go c.run()

	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()

	address = transport.NormalizeAddress(address)
	c.enqueue(func() {
		if err := t.adapter.enable(); err != nil {
			t.fail(c, err.Error())
			return
		}

		addr, err := t.adapter.resolve(address)
		if err != nil {
			t.fail(c, fmt.Sprintf("failed to resolve address `%s`: %s", address, err))
			return
		}

		t.logger.Debugf("connecting to `%s` (%s)", name, address)
		device, err := t.adapter.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			t.fail(c, fmt.Sprintf("failed to connect device `%s`: %s", address, err))
			return
		}
		c.device = device

		t.mu.Lock()
		stale := t.conn != c
		if !stale {
			c.connected = true
		}
		t.mu.Unlock()

		if stale {
			if err := device.Disconnect(); err != nil {
				t.logger.Warnf("failed to disconnect stale device `%s`: %s", address, err)
			}
			return
		}
		t.emit(c, func(h transport.Handler) {
			h.OnConnected()
		})
	})
}

// Disconnect terminates the connection (if any). Events of the terminated
// connection, including the disconnection itself, are not delivered
func (t *Transport) Disconnect() {
	t.mu.Lock()
	c := t.conn
	t.conn = nil
	connected := c != nil && c.connected
	if c != nil {
		c.connected = false
	}
	t.mu.Unlock()

	if c == nil {
		return
	}

	c.enqueue(func() {
		if connected {
			if err := c.device.Disconnect(); err != nil {
				t.logger.Warnf("failed to disconnect device: %s", err)
			}
		}
		c.close()
	})
}

// IsConnected returns if the link to the peripheral is established
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn != nil && t.conn.connected
}

// DiscoverServices enumerates the services of the peripheral
func (t *Transport) DiscoverServices() {
	t.do(func(c *conn) {
		ss, err := c.device.DiscoverServices(nil)
		if err != nil {
			t.fail(c, fmt.Sprintf("failed to discover services: %s", err))
			return
		}

		for _, s := range ss {
			id := fromBluetooth(s.UUID())
			c.services[id] = s
			t.emit(c, func(h transport.Handler) {
				h.OnServiceDiscovered(id)
			})
		}
		t.emit(c, func(h transport.Handler) {
			h.OnServicesDiscoveryFinished()
		})
	})
}

// DiscoverCharacteristics enumerates the characteristics of a service
func (t *Transport) DiscoverCharacteristics(service uuid.UUID) {
	t.do(func(c *conn) {
		s, ok := c.services[service]
		if !ok {
			t.fail(c, fmt.Sprintf("unknown service %s", service))
			return
		}

		cs, err := s.DiscoverCharacteristics(nil)
		if err != nil {
			t.fail(c, fmt.Sprintf("failed to discover characteristics: %s", err))
			return
		}
		for _, ch := range cs {
			c.chars[fromBluetooth(ch.UUID())] = ch
		}

		t.emit(c, func(h transport.Handler) {
			h.OnCharacteristicsDiscoveryFinished(service)
		})
	})
}

// EnableNotifications subscribes to value changes of a characteristic. If the
// subscription fails no confirmation is emitted, retries are left to the driver
func (t *Transport) EnableNotifications(_, characteristic uuid.UUID) {
	t.do(func(c *conn) {
		ch, ok := c.chars[characteristic]
		if !ok {
			t.fail(c, fmt.Sprintf("unknown characteristic %s", characteristic))
			return
		}

		if err := ch.EnableNotifications(func(buf []byte) {
			data := append([]byte(nil), buf...)
			t.emit(c, func(h transport.Handler) {
				h.OnCharacteristicChanged(characteristic, data)
			})
		}); err != nil {
			t.logger.Warnf("failed to enable notifications for %s: %s", characteristic, err)
			return
		}

		t.emit(c, func(h transport.Handler) {
			h.OnNotificationsEnabled(characteristic)
		})
	})
}

// WriteCharacteristic writes a value to a characteristic
func (t *Transport) WriteCharacteristic(_, characteristic uuid.UUID, data []byte) {
	data = append([]byte(nil), data...)
	t.do(func(c *conn) {
		ch, ok := c.chars[characteristic]
		if !ok {
			t.fail(c, fmt.Sprintf("unknown characteristic %s", characteristic))
			return
		}

		if _, err := ch.WriteWithoutResponse(data); err != nil {
			t.fail(c, fmt.Sprintf("failed to write characteristic %s: %s", characteristic, err))
			return
		}
		t.emit(c, func(h transport.Handler) {
			h.OnCharacteristicWritten(characteristic)
		})
	})
}

// ReadCharacteristic reads a value from a characteristic
func (t *Transport) ReadCharacteristic(_, characteristic uuid.UUID) {
	t.do(func(c *conn) {
		ch, ok := c.chars[characteristic]
		if !ok {
			t.fail(c, fmt.Sprintf("unknown characteristic %s", characteristic))
			return
		}

		buf := make([]byte, 512)
		n, err := ch.Read(buf)
		if err != nil {
			t.fail(c, fmt.Sprintf("failed to read characteristic %s: %s", characteristic, err))
			return
		}
		t.emit(c, func(h transport.Handler) {
			h.OnCharacteristicChanged(characteristic, buf[:n])
		})
	})
}

////////////////////////////////////////////////////////////////////////////////

func (t *Transport) do(fn func(c *conn)) {
	t.mu.Lock()
	c := t.conn
	connected := c != nil && c.connected
	t.mu.Unlock()

	if !connected {
		t.fail(c, transport.ErrNotConnected.Error())
		return
	}

	c.enqueue(func() {
		fn(c)
	})
}

func (t *Transport) current() *conn {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn
}

func (t *Transport) fail(c *conn, msg string) {
	t.emit(c, func(h transport.Handler) {
		h.OnError(msg)
	})
}

// emit posts an event of connection c to the control loop. It is dropped if c has
// been replaced or terminated in the meantime
func (t *Transport) emit(c *conn, fn func(h transport.Handler)) {
	t.sched.Post(func() {
		if t.current() != c || t.handler == nil {
			return
		}
		fn(t.handler)
	})
}

func (c *conn) run() {
	for {
		select {
		case op := <-c.ops:
			op()
		case <-c.done:
			return
		}
	}
}

func (c *conn) enqueue(op func()) {
	select {
	case c.ops <- op:
	case <-c.done:
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
	})
}
