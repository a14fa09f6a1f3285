// Package eclair implements the protocol of the Atomheart Eclair
package eclair

import (
	"encoding/binary"
	"fmt"

	"github.com/fako1024/de1ble/pkg/codec"
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	minFrameLen  = 9
	weightHeader = 'W'
)

var (
	dataService           = transport.MustParseUUID("B905EAEA-6C7E-4F73-B43D-2CDFCAB29570")
	statusCharacteristic  = transport.MustParseUUID("B905EAEB-6C7E-4F73-B43D-2CDFCAB29570")
	commandCharacteristic = transport.MustParseUUID("B905EAEC-6C7E-4F73-B43D-2CDFCAB29570")

	cmdTare       = []byte{0x54, 0x01, 0x01}
	cmdStartTimer = []byte{0x43, 0x01, 0x01}
	cmdStopTimer  = []byte{0x43, 0x00, 0x00}
)

// Service denotes the primary GATT service of the Atomheart Eclair scale
var Service = dataService

// Eclair denotes an Atomheart Eclair bluetooth scale
type Eclair struct {
	*scale.Base

	session *scale.Session
	logger  scale.Logger
}

// New instantiates a new Eclair struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Eclair)) *Eclair {
	e := &Eclair{
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(e)
	}

	e.Base = scale.NewBase(scale.TypeAtomheartEclair, sched, e.logger)
	e.session = scale.NewSession(e.Base, tr, scale.Profile{
		Service: dataService,
		Data:    statusCharacteristic,
		Command: commandCharacteristic,
	}, scale.Hooks{
		Data: e.receiveData,
	})

	return e
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Eclair) {
	return func(e *Eclair) {
		e.logger = logger
	}
}

// Connect establishes the connection to the scale
func (e *Eclair) Connect(id scale.Identity) error {
	return e.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (e *Eclair) Disconnect() error {
	return e.session.Disconnect()
}

// Capabilities returns the operations supported in software
func (e *Eclair) Capabilities() scale.Capabilities {
	return scale.Capabilities{
		Tare:  true,
		Timer: true,
	}
}

// Tare tares the scale
func (e *Eclair) Tare() error {
	return e.session.Write(cmdTare)
}

// StartTimer starts the timer / stopwatch
func (e *Eclair) StartTimer() error {
	if err := e.session.Write(cmdStartTimer); err != nil {
		return err
	}

	e.StartStopwatch()
	return nil
}

// StopTimer stops the timer / stopwatch
func (e *Eclair) StopTimer() error {
	if err := e.session.Write(cmdStopTimer); err != nil {
		return err
	}

	e.StopStopwatch()
	return nil
}

// ResetTimer has no dedicated command, the scale resets its timer upon tare
func (e *Eclair) ResetTimer() error {
	if err := e.Tare(); err != nil {
		return err
	}

	e.ResetStopwatch()
	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (e *Eclair) receiveData(_ uuid.UUID, data []byte) {
	weight, err := parseWeight(data)
	if err != nil {
		e.logger.Debugf("dropping eclair frame: %s", err)
		return
	}

	e.SetWeight(weight)
}

func parseWeight(data []byte) (float64, error) {
	if len(data) < minFrameLen {
		return 0, fmt.Errorf("frame too short (%d bytes)", len(data))
	}
	if data[0] != weightHeader {
		return 0, fmt.Errorf("unexpected frame header %#x", data[0])
	}
	if sum := codec.XOR(data[1 : len(data)-1]...); sum != data[len(data)-1] {
		return 0, fmt.Errorf("checksum mismatch (want %#x, have %#x)", sum, data[len(data)-1])
	}

	return float64(int32(binary.LittleEndian.Uint32(data[1:5]))) / 1000., nil
}
