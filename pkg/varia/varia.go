// Package varia implements the protocol of the Varia Aku scale
package varia

import (
	"fmt"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	msgWeight  = 0x01
	msgBattery = 0x85

	weightFrameLen  = 7
	batteryFrameLen = 5

	signMask = 0x10

	// SubscribeDelay denotes the settling time between characteristic discovery and subscription
	SubscribeDelay = 200 * time.Millisecond

	// WatchdogTimeout denotes the time to wait for the first weight update after subscribing
	WatchdogTimeout = time.Second

	// MaxRetries denotes the number of subscription retries before giving up
	MaxRetries = 10

	// TickleTimeout denotes the maximum gap between two weight updates before re-subscribing
	TickleTimeout = 2 * time.Second
)

var (
	dataService           = transport.UUID16(0xFFF0)
	statusCharacteristic  = transport.UUID16(0xFFF1)
	commandCharacteristic = transport.UUID16(0xFFF2)

	cmdTare = []byte{0xFA, 0x82, 0x01, 0x01, 0x82}
)

// Service denotes the primary GATT service of the Varia Aku scale
var Service = dataService

// Varia denotes a Varia Aku bluetooth scale
type Varia struct {
	*scale.Base

	session  *scale.Session
	watchdog *scale.Watchdog
	tickle   loop.Timer
	logger   scale.Logger
}

// New instantiates a new Varia struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Varia)) *Varia {
	v := &Varia{
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(v)
	}

	v.Base = scale.NewBase(scale.TypeVariaAku, sched, v.logger)
	v.session = scale.NewSession(v.Base, tr, scale.Profile{
		Service:        dataService,
		Data:           statusCharacteristic,
		Command:        commandCharacteristic,
		SubscribeDelay: SubscribeDelay,
	}, scale.Hooks{
		Subscribed: v.subscribed,
		Data:       v.receiveData,
		Closed:     v.stopTickle,
	})
	v.watchdog = scale.NewWatchdog(v.session.Timers(), WatchdogTimeout, MaxRetries, v.retry, v.giveUp)

	return v
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Varia) {
	return func(v *Varia) {
		v.logger = logger
	}
}

// Connect establishes the connection to the scale
func (v *Varia) Connect(id scale.Identity) error {
	v.stopTickle()
	return v.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (v *Varia) Disconnect() error {
	v.stopTickle()
	return v.session.Disconnect()
}

// Tare tares the scale
func (v *Varia) Tare() error {
	return v.session.Write(cmdTare)
}

////////////////////////////////////////////////////////////////////////////////

// subscribed considers the scale connected right away, the watchdog takes care of
// a subscription that does not deliver
func (v *Varia) subscribed() {
	v.watchdog.Arm()
	v.SetConnected(true)
}

func (v *Varia) retry(attempt int) {
	v.logger.Debugf("no weight updates from varia aku scale, retrying subscription (%d/%d)", attempt, MaxRetries)
	v.session.Resubscribe()
}

func (v *Varia) giveUp() {
	v.session.Fail(fmt.Errorf("varia aku %w: not sending weight updates", scale.ErrNotResponding))
}

func (v *Varia) resetTickle() {
	v.stopTickle()
	v.tickle = v.session.Timers().After(TickleTimeout, func() {
		v.tickle = nil
		v.logger.Warnf("no weight updates from varia aku scale for %v, re-subscribing", TickleTimeout)
		v.session.Resubscribe()
		v.watchdog.Arm()
	})
}

func (v *Varia) stopTickle() {
	if v.tickle != nil {
		v.tickle.Stop()
		v.tickle = nil
	}
}

func (v *Varia) receiveData(characteristic uuid.UUID, data []byte) {
	// The header byte is not validated, frames are identified by command and length only
	if characteristic != statusCharacteristic || len(data) < 4 {
		return
	}

	switch {
	case data[1] == msgWeight && data[2] == 0x03 && len(data) >= weightFrameLen:
		v.watchdog.Feed()
		v.resetTickle()
		v.SetWeight(parseWeight(data[3], data[4], data[5]))
	case data[1] == msgBattery && data[2] == 0x01 && len(data) >= batteryFrameLen:
		v.SetBattery(int(data[3]))
	}
}

func parseWeight(w1, w2, w3 byte) float64 {
	raw := uint32(w1&0x0F)<<16 | uint32(w2)<<8 | uint32(w3)
	weight := float64(raw) / 100.
	if w1&signMask != 0 {
		weight = -weight
	}

	return weight
}
