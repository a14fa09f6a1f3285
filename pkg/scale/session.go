package scale

import (
	"errors"
	"time"

	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

// Profile denotes the GATT layout of a scale and the connection parameters
// of its subscription sequence
type Profile struct {

	// Service is the primary service of the scale
	Service uuid.UUID

	// Data is the characteristic delivering weight notifications
	Data uuid.UUID

	// Command is the characteristic commands are written to
	Command uuid.UUID

	// Extra lists further characteristics to subscribe to (e.g. buttons)
	Extra []uuid.UUID

	// SubscribeDelay defers enabling notifications after characteristic discovery
	SubscribeDelay time.Duration

	// ConnectOnData only marks the scale connected once data arrives (instead of
	// also accepting a notification subscription confirmation)
	ConnectOnData bool
}

// Hooks denotes the callbacks a driver attaches to the subscription sequence
type Hooks struct {

	// Subscribed is called whenever notifications are requested from the scale
	Subscribed func()

	// Ready is called once the scale has been marked connected
	Ready func()

	// Data is called for every notification received
	Data func(characteristic uuid.UUID, data []byte)

	// Closed is called after the connection was lost or terminated
	Closed func()
}

// Session denotes the standard GATT connection sequence shared by most scale
// drivers: connect, discover services and characteristics, (optionally wait) and
// subscribe to the data characteristic
type Session struct {
	base      *Base
	transport transport.Transport
	timers    *Timers
	profile   Profile
	hooks     Hooks

	serviceFound bool
	ready        bool
}

// NewSession instantiates a new session for the given driver state and transport
func NewSession(base *Base, tr transport.Transport, profile Profile, hooks Hooks) *Session {
	return &Session{
		base:      base,
		transport: tr,
		timers:    NewTimers(base.Scheduler()),
		profile:   profile,
		hooks:     hooks,
	}
}

// Timers returns the timer set bound to the session lifetime
func (s *Session) Timers() *Timers {
	return s.timers
}

// Profile returns the GATT layout of the session
func (s *Session) Profile() Profile {
	return s.profile
}

// Connect establishes the connection to the given device, tearing down a previous one
func (s *Session) Connect(id Identity) error {
	if s.transport == nil {
		return ErrNoTransport
	}

	s.reset()
	if s.transport.IsConnected() {
		s.transport.Disconnect()
	}

	s.base.SetIdentity(id)
	s.transport.SetHandler(s)
	s.base.SetState(StateConnecting, nil)
	s.transport.Connect(id.Address, id.Name)

	return nil
}

// Disconnect terminates the connection and detaches from the transport
func (s *Session) Disconnect() error {
	if s.transport == nil {
		return ErrNoTransport
	}

	s.reset()
	s.transport.SetHandler(nil)
	s.transport.Disconnect()
	s.base.SetState(StateDisconnected, nil)

	return nil
}

// Ready returns if the characteristics of the scale have been discovered
func (s *Session) Ready() bool {
	return s.ready
}

// Write sends a command to the command characteristic
func (s *Session) Write(data []byte) error {
	return s.WriteTo(s.profile.Command, data)
}

// WriteTo sends data to an arbitrary characteristic of the primary service
func (s *Session) WriteTo(characteristic uuid.UUID, data []byte) error {
	if !s.ready || !s.transport.IsConnected() {
		return ErrNotConnected
	}

	s.transport.WriteCharacteristic(s.profile.Service, characteristic, data)
	return nil
}

// Resubscribe requests notifications for the data characteristic once more
func (s *Session) Resubscribe() {
	if !s.ready || !s.transport.IsConnected() {
		return
	}

	s.base.Logger().Debugf("re-enabling notifications for scale `%s`", s.base.Name())
	s.transport.EnableNotifications(s.profile.Service, s.profile.Data)
}

// Fail reports a driver level error and moves to the failed state without tearing
// down the link
func (s *Session) Fail(err error) {
	s.base.SetState(StateFailed, err)
	s.base.EmitError(err)
}

////////////////////////////////////////////////////////////////////////////////

// OnConnected starts service discovery
func (s *Session) OnConnected() {
	s.base.Logger().Debugf("connected scale `%s/%s`", s.base.Name(), s.base.Identity().Address)
	s.base.SetState(StateServiceDiscovery, nil)
	s.transport.DiscoverServices()
}

// OnDisconnected cancels all pending timers
func (s *Session) OnDisconnected() {
	s.base.Logger().Debugf("disconnected scale `%s/%s`", s.base.Name(), s.base.Identity().Address)
	s.reset()
	s.base.SetState(StateDisconnected, nil)
	if s.hooks.Closed != nil {
		s.hooks.Closed()
	}
}

// OnError cancels all pending timers, detaches from and terminates the link
func (s *Session) OnError(msg string) {
	s.reset()
	s.transport.SetHandler(nil)
	s.transport.Disconnect()
	s.Fail(errors.New(msg))
	if s.hooks.Closed != nil {
		s.hooks.Closed()
	}
}

// OnServiceDiscovered records the presence of the primary service
func (s *Session) OnServiceDiscovered(service uuid.UUID) {
	if service == s.profile.Service {
		s.serviceFound = true
	}
}

// OnServicesDiscoveryFinished continues with characteristic discovery
func (s *Session) OnServicesDiscoveryFinished() {
	if !s.serviceFound {
		s.OnError(ErrServiceNotFound.Error())
		return
	}

	s.base.SetState(StateCharacteristicDiscovery, nil)
	s.transport.DiscoverCharacteristics(s.profile.Service)
}

// OnCharacteristicsDiscoveryFinished subscribes (after an optional delay)
func (s *Session) OnCharacteristicsDiscoveryFinished(service uuid.UUID) {
	if service != s.profile.Service {
		return
	}

	s.ready = true
	if s.profile.SubscribeDelay > 0 {
		s.timers.After(s.profile.SubscribeDelay, s.subscribe)
		return
	}
	s.subscribe()
}

// OnCharacteristicChanged forwards notifications to the driver
func (s *Session) OnCharacteristicChanged(characteristic uuid.UUID, data []byte) {
	if !s.ready {
		return
	}
	if characteristic == s.profile.Data {
		s.markReady()
	}
	if s.hooks.Data != nil {
		s.hooks.Data(characteristic, data)
	}
}

// OnCharacteristicWritten is a no-op
func (s *Session) OnCharacteristicWritten(uuid.UUID) {}

// OnNotificationsEnabled marks the scale connected (unless data is required for that)
func (s *Session) OnNotificationsEnabled(characteristic uuid.UUID) {
	if characteristic == s.profile.Data && !s.profile.ConnectOnData {
		s.markReady()
	}
}

func (s *Session) subscribe() {
	if !s.transport.IsConnected() {
		return
	}

	s.base.SetState(StateEnablingNotifications, nil)
	s.transport.EnableNotifications(s.profile.Service, s.profile.Data)
	for _, c := range s.profile.Extra {
		s.transport.EnableNotifications(s.profile.Service, c)
	}
	if s.hooks.Subscribed != nil {
		s.hooks.Subscribed()
	}
}

func (s *Session) markReady() {
	if s.base.IsConnected() {
		return
	}

	s.base.SetConnected(true)
	if s.hooks.Ready != nil {
		s.hooks.Ready()
	}
}

func (s *Session) reset() {
	s.timers.StopAll()
	s.serviceFound = false
	s.ready = false
}
