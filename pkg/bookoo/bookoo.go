// Package bookoo implements the protocol of the Bookoo Themis scales
package bookoo

import (
	"fmt"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	minFrameLen  = 10
	negativeSign = '-'

	// SubscribeDelay denotes the settling time between characteristic discovery and subscription
	SubscribeDelay = 200 * time.Millisecond

	// WatchdogTimeout denotes the time to wait for the first weight notification
	WatchdogTimeout = time.Second

	// MaxRetries denotes the number of subscription retries before giving up
	MaxRetries = 5
)

var (
	dataService           = transport.UUID16(0x0FFE)
	statusCharacteristic  = transport.UUID16(0xFF11)
	commandCharacteristic = transport.UUID16(0xFF12)

	cmdTare       = []byte{0x03, 0x0A, 0x01, 0x00, 0x00, 0x08}
	cmdStartTimer = []byte{0x03, 0x0A, 0x04, 0x00, 0x00, 0x0A}
	cmdStopTimer  = []byte{0x03, 0x0A, 0x05, 0x00, 0x00, 0x0D}
	cmdResetTimer = []byte{0x03, 0x0A, 0x06, 0x00, 0x00, 0x0C}
)

// Service denotes the primary GATT service of the Bookoo scale
var Service = dataService

// Bookoo denotes a Bookoo bluetooth scale
type Bookoo struct {
	*scale.Base

	session  *scale.Session
	watchdog *scale.Watchdog
	logger   scale.Logger
}

// New instantiates a new Bookoo struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Bookoo)) *Bookoo {
	b := &Bookoo{
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(b)
	}

	b.Base = scale.NewBase(scale.TypeBookoo, sched, b.logger)
	b.session = scale.NewSession(b.Base, tr, scale.Profile{
		Service:        dataService,
		Data:           statusCharacteristic,
		Command:        commandCharacteristic,
		SubscribeDelay: SubscribeDelay,
		ConnectOnData:  true,
	}, scale.Hooks{
		Subscribed: b.armWatchdog,
		Data:       b.receiveData,
	})
	b.watchdog = scale.NewWatchdog(b.session.Timers(), WatchdogTimeout, MaxRetries, b.retry, b.giveUp)

	return b
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Bookoo) {
	return func(b *Bookoo) {
		b.logger = logger
	}
}

// Connect establishes the connection to the scale
func (b *Bookoo) Connect(id scale.Identity) error {
	return b.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (b *Bookoo) Disconnect() error {
	return b.session.Disconnect()
}

// Capabilities returns the operations supported in software
func (b *Bookoo) Capabilities() scale.Capabilities {
	return scale.Capabilities{
		Tare:  true,
		Timer: true,
	}
}

// Tare tares the scale
func (b *Bookoo) Tare() error {
	return b.session.Write(cmdTare)
}

// StartTimer starts the timer / stopwatch
func (b *Bookoo) StartTimer() error {
	if err := b.session.Write(cmdStartTimer); err != nil {
		return err
	}

	b.StartStopwatch()
	return nil
}

// StopTimer stops the timer / stopwatch
func (b *Bookoo) StopTimer() error {
	if err := b.session.Write(cmdStopTimer); err != nil {
		return err
	}

	b.StopStopwatch()
	return nil
}

// ResetTimer resets the timer / stopwatch
func (b *Bookoo) ResetTimer() error {
	if err := b.session.Write(cmdResetTimer); err != nil {
		return err
	}

	b.ResetStopwatch()
	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (b *Bookoo) armWatchdog() {
	b.watchdog.Arm()
}

func (b *Bookoo) retry(attempt int) {
	b.logger.Debugf("no weight data received from bookoo scale, retrying subscription (%d/%d)", attempt, MaxRetries)
	b.session.Resubscribe()
}

// giveUp reports the scale as failed but keeps the link, which might still be valid
func (b *Bookoo) giveUp() {
	b.session.Fail(fmt.Errorf("bookoo %w: no weight data received", scale.ErrNotResponding))
}

func (b *Bookoo) receiveData(characteristic uuid.UUID, data []byte) {
	if characteristic != statusCharacteristic {
		return
	}
	if b.watchdog.Feed() {
		b.logger.Debugf("first weight data received from bookoo scale `%s`", b.Name())
	}

	weight, err := parseWeight(data)
	if err != nil {
		return
	}

	b.SetWeight(weight)
}

func parseWeight(data []byte) (float64, error) {
	if len(data) < minFrameLen {
		return 0, fmt.Errorf("frame too short (%d bytes)", len(data))
	}

	raw := uint32(data[7])<<16 | uint32(data[8])<<8 | uint32(data[9])
	weight := float64(raw) / 100.
	if data[6] == negativeSign {
		weight = -weight
	}

	return weight, nil
}
