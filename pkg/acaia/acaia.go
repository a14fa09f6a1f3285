// Package acaia implements the protocol of the Acaia scales, covering both the
// legacy IPS service (Lunar, Pearl) and the newer Pyxis service (Pyxis, Lunar 2021)
package acaia

import (
	"fmt"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	identRetryInterval = 400 * time.Millisecond
	identConfigDelay   = time.Second
	configDelay        = 400 * time.Millisecond
	heartbeatDelay     = 1500 * time.Millisecond
	heartbeatConfig    = time.Second

	// HeartbeatInterval denotes the keep-alive interval of the scale
	HeartbeatInterval = 2 * time.Second

	// MaxIdentAttempts denotes the number of identification attempts before giving up
	MaxIdentAttempts = 10
)

var (
	pyxisService               = transport.MustParseUUID("49535343-FE7D-4AE5-8FA9-9FAFD205E455")
	pyxisStatusCharacteristic  = transport.MustParseUUID("49535343-1E4D-4BD9-BA61-23C647249616")
	pyxisCommandCharacteristic = transport.MustParseUUID("49535343-8841-43F4-A8D4-ECBE34729BB3")

	ipsService        = transport.UUID16(0x1820)
	ipsCharacteristic = transport.UUID16(0x2A80)
)

var (

	// PyxisService denotes the primary service of the newer protocol variant
	PyxisService = pyxisService

	// IPSService denotes the primary service of the legacy protocol variant
	IPSService = ipsService
)

// variant denotes the GATT layout and handshake timing of a protocol variant
type variant struct {
	name    string
	service uuid.UUID
	status  uuid.UUID
	command uuid.UUID

	notifyDelay time.Duration
	identDelay  time.Duration
}

var (
	pyxis = variant{
		name:        "pyxis",
		service:     pyxisService,
		status:      pyxisStatusCharacteristic,
		command:     pyxisCommandCharacteristic,
		notifyDelay: 500 * time.Millisecond,
		identDelay:  time.Second,
	}
	ips = variant{
		name:        "ips",
		service:     ipsService,
		status:      ipsCharacteristic,
		command:     ipsCharacteristic,
		notifyDelay: 100 * time.Millisecond,
		identDelay:  500 * time.Millisecond,
	}
)

// Acaia denotes an Acaia bluetooth scale
type Acaia struct {
	*scale.Base

	transport transport.Transport
	timers    *scale.Timers
	logger    scale.Logger

	pyxisFound bool
	ipsFound   bool
	variant    *variant

	ready          bool
	receiving      bool
	weightReceived bool
	identAttempts  int
	heartbeat      loop.Timer

	buf reassembler
}

// New instantiates a new Acaia struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Acaia)) *Acaia {
	return newScale(scale.TypeAcaia, tr, sched, options...)
}

// NewPyxis instantiates a new Acaia struct for a scale advertising the Pyxis service
// only. The protocol variant is still determined upon service discovery
func NewPyxis(tr transport.Transport, sched loop.Scheduler, options ...func(*Acaia)) *Acaia {
	return newScale(scale.TypeAcaiaPyxis, tr, sched, options...)
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Acaia) {
	return func(a *Acaia) {
		a.logger = logger
	}
}

// Connect establishes the connection to the scale
func (a *Acaia) Connect(id scale.Identity) error {
	if a.transport == nil {
		return scale.ErrNoTransport
	}

	a.reset()
	if a.transport.IsConnected() {
		a.transport.Disconnect()
	}

	a.SetIdentity(id)
	a.transport.SetHandler(a)
	a.SetState(scale.StateConnecting, nil)
	a.transport.Connect(id.Address, id.Name)

	return nil
}

// Disconnect terminates the connection to the scale
func (a *Acaia) Disconnect() error {
	if a.transport == nil {
		return scale.ErrNoTransport
	}

	a.reset()
	a.transport.SetHandler(nil)
	a.transport.Disconnect()
	a.SetState(scale.StateDisconnected, nil)

	return nil
}

// Tare tares the scale
func (a *Acaia) Tare() error {
	return a.send(encode(msgTare, make([]byte, tarePayloadLen)))
}

// Variant returns the name of the protocol variant in use ("pyxis" or "ips"), if known
func (a *Acaia) Variant() string {
	if a.variant == nil {
		return ""
	}

	return a.variant.name
}

////////////////////////////////////////////////////////////////////////////////

// OnConnected starts service discovery
func (a *Acaia) OnConnected() {
	a.logger.Debugf("connected acaia scale `%s`, discovering services", a.Name())
	a.SetState(scale.StateServiceDiscovery, nil)
	a.transport.DiscoverServices()
}

// OnDisconnected cancels all pending timers
func (a *Acaia) OnDisconnected() {
	a.logger.Debugf("disconnected acaia scale `%s`", a.Name())
	a.reset()
	a.SetState(scale.StateDisconnected, nil)
}

// OnError cancels all pending timers, detaches from and terminates the link
func (a *Acaia) OnError(msg string) {
	a.reset()
	a.transport.SetHandler(nil)
	a.transport.Disconnect()
	a.fail(fmt.Errorf("acaia scale connection error: %s", msg))
}

// OnServiceDiscovered records the protocol variants offered by the scale
func (a *Acaia) OnServiceDiscovered(service uuid.UUID) {
	switch service {
	case pyxisService:
		a.pyxisFound = true
	case ipsService:
		a.ipsFound = true
	}
}

// OnServicesDiscoveryFinished selects the protocol variant, preferring Pyxis
func (a *Acaia) OnServicesDiscoveryFinished() {
	switch {
	case a.pyxisFound:
		a.variant = &pyxis
	case a.ipsFound:
		a.variant = &ips
	default:
		a.OnError(scale.ErrServiceNotFound.Error())
		return
	}

	a.logger.Debugf("using %s protocol for acaia scale `%s`", a.variant.name, a.Name())
	a.SetState(scale.StateCharacteristicDiscovery, nil)
	a.transport.DiscoverCharacteristics(a.variant.service)
}

// OnCharacteristicsDiscoveryFinished starts the handshake
func (a *Acaia) OnCharacteristicsDiscoveryFinished(service uuid.UUID) {
	if a.variant == nil || service != a.variant.service || a.ready {
		return
	}

	a.ready = true
	a.receiving = false
	a.timers.After(a.variant.notifyDelay, a.enableNotifications)
	a.timers.After(a.variant.identDelay, a.sendIdent)
}

// OnCharacteristicChanged feeds notifications into the message reassembly
func (a *Acaia) OnCharacteristicChanged(characteristic uuid.UUID, data []byte) {
	if !a.ready || characteristic != a.variant.status {
		return
	}

	msgs, notified := a.buf.Push(data)
	if notified {
		a.receiving = true
	}
	for _, msg := range msgs {
		if weight, ok := msg.weight(); ok {
			a.receiveWeight(weight)
		}
	}
}

// OnCharacteristicWritten is a no-op
func (a *Acaia) OnCharacteristicWritten(uuid.UUID) {}

// OnNotificationsEnabled is a no-op, the handshake completes upon the first weight
func (a *Acaia) OnNotificationsEnabled(uuid.UUID) {}

////////////////////////////////////////////////////////////////////////////////

func newScale(t scale.Type, tr transport.Transport, sched loop.Scheduler, options ...func(*Acaia)) *Acaia {
	a := &Acaia{
		transport: tr,
		logger:    &scale.NullLogger{},
	}
	for _, option := range options {
		option(a)
	}

	a.Base = scale.NewBase(t, sched, a.logger)
	a.timers = scale.NewTimers(sched)

	return a
}

func (a *Acaia) enableNotifications() {
	if !a.ready {
		return
	}

	a.SetState(scale.StateEnablingNotifications, nil)
	a.transport.EnableNotifications(a.variant.service, a.variant.status)
}

func (a *Acaia) sendIdent() {
	if !a.ready {
		return
	}

	a.identAttempts++
	if !a.receiving && a.identAttempts > MaxIdentAttempts {
		a.timers.StopAll()
		a.fail(fmt.Errorf("acaia %w: no response to identification after %d attempts", scale.ErrNotResponding, MaxIdentAttempts))
		return
	}

	a.logger.Debugf("sending ident to acaia scale `%s` (attempt %d, receiving: %v)", a.Name(), a.identAttempts, a.receiving)
	if !a.IsConnected() {
		a.SetState(scale.StateHandshaking, nil)
	}
	if err := a.send(encode(msgIdent, identPayload)); err != nil {
		a.logger.Warnf("failed to send ident: %s", err)
	}

	if !a.receiving {
		a.timers.After(identRetryInterval, a.sendIdent)
		a.timers.After(identConfigDelay, a.sendConfig)
		return
	}

	a.timers.After(configDelay, a.sendConfig)
	a.scheduleHeartbeat(heartbeatDelay)
}

func (a *Acaia) sendConfig() {
	if err := a.send(encode(msgEvent, configPayload)); err != nil {
		a.logger.Warnf("failed to send config: %s", err)
	}
}

// sendHeartbeat keeps the connection alive. The config is re-sent ahead of every
// heartbeat, some models (Pyxis, PROCH) stop notifying otherwise
func (a *Acaia) sendHeartbeat() {
	a.heartbeat = nil
	if err := a.send(encode(msgHeartbeat, heartbeatPayload)); err != nil {
		a.logger.Debugf("stopping acaia heartbeat: %s", err)
		return
	}

	a.timers.After(heartbeatConfig, a.sendConfig)
	a.scheduleHeartbeat(HeartbeatInterval)
}

func (a *Acaia) scheduleHeartbeat(d time.Duration) {
	if a.heartbeat != nil {
		a.heartbeat.Stop()
	}
	a.heartbeat = a.timers.After(d, a.sendHeartbeat)
}

func (a *Acaia) receiveWeight(weight float64) {
	if !a.weightReceived {
		a.weightReceived = true
		a.logger.Debugf("first weight received from acaia scale `%s`", a.Name())
		a.SetConnected(true)
	}

	a.SetWeight(weight)
}

func (a *Acaia) send(data []byte) error {
	if !a.ready || !a.transport.IsConnected() {
		return scale.ErrNotConnected
	}

	a.transport.WriteCharacteristic(a.variant.service, a.variant.command, data)
	return nil
}

func (a *Acaia) fail(err error) {
	a.SetState(scale.StateFailed, err)
	a.EmitError(err)
}

func (a *Acaia) reset() {
	a.timers.StopAll()
	a.heartbeat = nil
	a.pyxisFound, a.ipsFound = false, false
	a.variant = nil
	a.ready = false
	a.receiving = false
	a.weightReceived = false
	a.identAttempts = 0
	a.buf.Reset()
}
