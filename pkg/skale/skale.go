// Package skale implements the protocol of the Atomax Skale
package skale

import (
	"encoding/binary"
	"fmt"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	minFrameLen = 3

	cmdGrams      = 0x03
	cmdTare       = 0x10
	cmdStartTimer = 0xDD
	cmdStopTimer  = 0xD1
	cmdResetTimer = 0xD0
	cmdDisplayOn  = 0xED
	cmdDisplayOff = 0xEE
	cmdWeightOn   = 0xEC
)

var (
	dataService           = transport.UUID16(0xFF08)
	commandCharacteristic = transport.UUID16(0xEF80)
	weightCharacteristic  = transport.UUID16(0xEF81)
	buttonCharacteristic  = transport.UUID16(0xEF82)
)

// Service denotes the primary GATT service of the Skale scale
var Service = dataService

// Skale denotes a Skale bluetooth scale
type Skale struct {
	*scale.Base

	session       *scale.Session
	buttonHandler func(button int)
	logger        scale.Logger
}

// New instantiates a new Skale struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Skale)) *Skale {
	s := &Skale{
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(s)
	}

	s.Base = scale.NewBase(scale.TypeSkale, sched, s.logger)
	s.session = scale.NewSession(s.Base, tr, scale.Profile{
		Service: dataService,
		Data:    weightCharacteristic,
		Command: commandCharacteristic,
		Extra:   []uuid.UUID{buttonCharacteristic},
	}, scale.Hooks{
		Ready: s.configure,
		Data:  s.receiveData,
	})

	return s
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Skale) {
	return func(s *Skale) {
		s.logger = logger
	}
}

// SetButtonHandler defines a handler function that is called upon a button press on the scale
func (s *Skale) SetButtonHandler(fn func(button int)) {
	s.buttonHandler = fn
}

// Connect establishes the connection to the scale
func (s *Skale) Connect(id scale.Identity) error {
	return s.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (s *Skale) Disconnect() error {
	return s.session.Disconnect()
}

// Capabilities returns the operations supported in software
func (s *Skale) Capabilities() scale.Capabilities {
	return scale.Capabilities{
		Tare:  true,
		Timer: true,
		Sleep: true,
	}
}

// Tare tares the scale
func (s *Skale) Tare() error {
	return s.write(cmdTare)
}

// StartTimer starts the timer / stopwatch
func (s *Skale) StartTimer() error {
	if err := s.write(cmdStartTimer); err != nil {
		return err
	}

	s.StartStopwatch()
	return nil
}

// StopTimer stops the timer / stopwatch
func (s *Skale) StopTimer() error {
	if err := s.write(cmdStopTimer); err != nil {
		return err
	}

	s.StopStopwatch()
	return nil
}

// ResetTimer resets the timer / stopwatch
func (s *Skale) ResetTimer() error {
	if err := s.write(cmdResetTimer); err != nil {
		return err
	}

	s.ResetStopwatch()
	return nil
}

// Sleep turns off the display
func (s *Skale) Sleep() error {
	return s.write(cmdDisplayOff)
}

// Wake turns on the display
func (s *Skale) Wake() error {
	return s.write(cmdDisplayOn)
}

////////////////////////////////////////////////////////////////////////////////

func (s *Skale) write(cmd byte) error {
	return s.session.Write([]byte{cmd})
}

func (s *Skale) configure() {
	for _, cmd := range []byte{cmdGrams, cmdDisplayOn, cmdWeightOn} {
		if err := s.write(cmd); err != nil {
			s.logger.Warnf("failed to configure skale: %s", err)
			return
		}
	}
}

func (s *Skale) receiveData(characteristic uuid.UUID, data []byte) {
	switch characteristic {
	case weightCharacteristic:
		weight, err := parseWeight(data)
		if err != nil {
			return
		}
		s.SetWeight(weight)
	case buttonCharacteristic:
		if len(data) == 0 {
			return
		}
		s.logger.Debugf("skale button %d pressed", data[0])
		if s.buttonHandler != nil {
			s.buttonHandler(int(data[0]))
		}
	}
}

func parseWeight(data []byte) (float64, error) {
	if len(data) < minFrameLen {
		return 0, fmt.Errorf("frame too short (%d bytes)", len(data))
	}

	return float64(int16(binary.LittleEndian.Uint16(data[1:3]))) / 10., nil
}
