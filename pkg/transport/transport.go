// Package transport abstracts the BLE central role operations a scale driver
// requires. All operations are asynchronous, results are delivered as Handler
// events on the control loop
package transport

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Transport denotes a single BLE connection to a peripheral
type Transport interface {

	// SetHandler attaches the receiver of all events (nil detaches the current one)
	SetHandler(h Handler)

	// Connect initiates a connection to the peripheral with the given address
	Connect(address, name string)

	// Disconnect terminates the connection (if any)
	Disconnect()

	// DiscoverServices enumerates the services of the peripheral
	DiscoverServices()

	// DiscoverCharacteristics enumerates the characteristics of a service
	DiscoverCharacteristics(service uuid.UUID)

	// EnableNotifications subscribes to value changes of a characteristic
	EnableNotifications(service, characteristic uuid.UUID)

	// WriteCharacteristic writes a value to a characteristic
	WriteCharacteristic(service, characteristic uuid.UUID, data []byte)

	// ReadCharacteristic reads a value from a characteristic, the result is
	// delivered via OnCharacteristicChanged
	ReadCharacteristic(service, characteristic uuid.UUID)

	// IsConnected returns if the link to the peripheral is established
	IsConnected() bool
}

// Handler denotes the receiver of transport events. All methods are invoked on
// the control loop
type Handler interface {
	OnConnected()
	OnDisconnected()
	OnError(msg string)
	OnServiceDiscovered(service uuid.UUID)
	OnServicesDiscoveryFinished()
	OnCharacteristicsDiscoveryFinished(service uuid.UUID)
	OnCharacteristicChanged(characteristic uuid.UUID, data []byte)
	OnCharacteristicWritten(characteristic uuid.UUID)
	OnNotificationsEnabled(characteristic uuid.UUID)
}

// NopHandler ignores all events, it can be embedded to implement only a subset of Handler
type NopHandler struct{}

func (NopHandler) OnConnected()                                 {}
func (NopHandler) OnDisconnected()                              {}
func (NopHandler) OnError(string)                               {}
func (NopHandler) OnServiceDiscovered(uuid.UUID)                {}
func (NopHandler) OnServicesDiscoveryFinished()                 {}
func (NopHandler) OnCharacteristicsDiscoveryFinished(uuid.UUID) {}
func (NopHandler) OnCharacteristicChanged(uuid.UUID, []byte)    {}
func (NopHandler) OnCharacteristicWritten(uuid.UUID)            {}
func (NopHandler) OnNotificationsEnabled(uuid.UUID)             {}

// Advertisement denotes a single sighting of a peripheral during discovery
type Advertisement struct {
	Address  string
	Name     string
	Services []uuid.UUID
	RSSI     int
}

// HasService returns if the advertisement lists the given service
func (a Advertisement) HasService(service uuid.UUID) bool {
	for _, s := range a.Services {
		if s == service {
			return true
		}
	}

	return false
}

// Discoverer denotes a source of peripheral advertisements
type Discoverer interface {

	// StartDiscovery starts a time bounded discovery cycle. Both callbacks are
	// invoked on the control loop, finished exactly once per cycle
	StartDiscovery(timeout time.Duration, found func(Advertisement), finished func(err error)) error

	// StopDiscovery aborts a running discovery cycle
	StopDiscovery() error
}

// NormalizeAddress returns the canonical representation of a peripheral address
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}
