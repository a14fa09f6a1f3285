// Package eureka implements the protocol shared by the Eureka Precisa and the
// Solo Barista scales
package eureka

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	minFrameLen  = 9
	negativeSign = 0x01

	// BeepInterval denotes the spacing of consecutive beeps requested via Buzz()
	BeepInterval = 300 * time.Millisecond
)

var (
	dataService           = transport.UUID16(0xFFF0)
	statusCharacteristic  = transport.UUID16(0xFFF1)
	commandCharacteristic = transport.UUID16(0xFFF2)

	frameHeader = []byte{0xAA, 0x09, 0x41}

	cmdUnitGrams  = []byte{0xAA, 0x03, 0x36, 0x00}
	cmdTare       = command(0x31)
	cmdOff        = command(0x32)
	cmdStartTimer = command(0x33)
	cmdStopTimer  = command(0x34)
	cmdResetTimer = command(0x35)
	cmdBeep       = command(0x37)
)

// Service denotes the primary GATT service of the Eureka Precisa / Solo Barista scale
var Service = dataService

// Eureka denotes a Eureka Precisa (or protocol compatible) bluetooth scale
type Eureka struct {
	*scale.Base

	session *scale.Session
	logger  scale.Logger
}

// New instantiates a new Eureka Precisa scale, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Eureka)) *Eureka {
	return newScale(scale.TypeEurekaPrecisa, tr, sched, options...)
}

// NewSoloBarista instantiates a new Solo Barista scale, executing functional options, if any
func NewSoloBarista(tr transport.Transport, sched loop.Scheduler, options ...func(*Eureka)) *Eureka {
	return newScale(scale.TypeSoloBarista, tr, sched, options...)
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Eureka) {
	return func(e *Eureka) {
		e.logger = logger
	}
}

// Connect establishes the connection to the scale
func (e *Eureka) Connect(id scale.Identity) error {
	return e.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (e *Eureka) Disconnect() error {
	return e.session.Disconnect()
}

// Capabilities returns the operations supported in software
func (e *Eureka) Capabilities() scale.Capabilities {
	return scale.Capabilities{
		Tare:  true,
		Timer: true,
		Sleep: true,
	}
}

// Tare tares the scale
func (e *Eureka) Tare() error {
	return e.session.Write(cmdTare)
}

// StartTimer starts the timer / stopwatch
func (e *Eureka) StartTimer() error {
	if err := e.session.Write(cmdStartTimer); err != nil {
		return err
	}

	e.StartStopwatch()
	return nil
}

// StopTimer stops the timer / stopwatch
func (e *Eureka) StopTimer() error {
	if err := e.session.Write(cmdStopTimer); err != nil {
		return err
	}

	e.StopStopwatch()
	return nil
}

// ResetTimer resets the timer / stopwatch
func (e *Eureka) ResetTimer() error {
	if err := e.session.Write(cmdResetTimer); err != nil {
		return err
	}

	e.ResetStopwatch()
	return nil
}

// Sleep turns the scale off
func (e *Eureka) Sleep() error {
	return e.session.Write(cmdOff)
}

// Beep requests an audible signal
func (e *Eureka) Beep() error {
	return e.session.Write(cmdBeep)
}

// Buzz requests n audible signals, spaced by BeepInterval
func (e *Eureka) Buzz(n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid number of beeps requested: %d", n)
	}
	if err := e.Beep(); err != nil {
		return err
	}

	for i := 1; i < n; i++ {
		e.session.Timers().After(time.Duration(i)*BeepInterval, func() {
			if err := e.Beep(); err != nil {
				e.logger.Debugf("skipping beep: %s", err)
			}
		})
	}

	return nil
}

////////////////////////////////////////////////////////////////////////////////

func newScale(t scale.Type, tr transport.Transport, sched loop.Scheduler, options ...func(*Eureka)) *Eureka {
	e := &Eureka{
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(e)
	}

	e.Base = scale.NewBase(t, sched, e.logger)
	e.session = scale.NewSession(e.Base, tr, scale.Profile{
		Service: dataService,
		Data:    statusCharacteristic,
		Command: commandCharacteristic,
	}, scale.Hooks{
		Ready: e.configure,
		Data:  e.receiveData,
	})

	return e
}

func (e *Eureka) configure() {
	if err := e.session.Write(cmdUnitGrams); err != nil {
		e.logger.Warnf("failed to set unit to grams: %s", err)
	}
}

func (e *Eureka) receiveData(_ uuid.UUID, data []byte) {
	weight, err := parseWeight(data)
	if err != nil {
		return
	}

	e.SetWeight(weight)
}

func parseWeight(data []byte) (float64, error) {
	if len(data) < minFrameLen {
		return 0, fmt.Errorf("frame too short (%d bytes)", len(data))
	}
	for i, b := range frameHeader {
		if data[i] != b {
			return 0, fmt.Errorf("unexpected frame header % x", data[:3])
		}
	}

	weight := float64(binary.BigEndian.Uint16(data[6:8])) / 10.
	if data[5] == negativeSign {
		weight = -weight
	}

	return weight, nil
}

func command(cmd byte) []byte {
	return []byte{0xAA, 0x02, cmd, cmd}
}
