// Package difluid implements the protocol of the Difluid Microbalance
package difluid

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	minFrameLen = 19

	// readings at or above this raw value are considered garbage
	maxRawWeight = 20000
)

var (
	dataService        = transport.UUID16(0x00EE)
	dataCharacteristic = transport.UUID16(0xAA01)

	frameHeader = []byte{0xDF, 0xDF}

	cmdAutoNotify = []byte{0xDF, 0xDF, 0x01, 0x00, 0x01, 0x01, 0xC1}
	cmdGrams      = []byte{0xDF, 0xDF, 0x01, 0x04, 0x01, 0x00, 0xC4}
	cmdTare       = []byte{0xDF, 0xDF, 0x03, 0x02, 0x01, 0x01, 0xC5}
	cmdStartTimer = []byte{0xDF, 0xDF, 0x03, 0x02, 0x01, 0x00, 0xC4}
	cmdStopTimer  = []byte{0xDF, 0xDF, 0x03, 0x01, 0x01, 0x00, 0xC3}
)

// Service denotes the primary GATT service of the Difluid Microbalance scale
var Service = dataService

// Difluid denotes a Difluid Microbalance bluetooth scale
type Difluid struct {
	*scale.Base

	session *scale.Session
	logger  scale.Logger
}

// New instantiates a new Difluid struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Difluid)) *Difluid {
	d := &Difluid{
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(d)
	}

	d.Base = scale.NewBase(scale.TypeDifluid, sched, d.logger)
	d.session = scale.NewSession(d.Base, tr, scale.Profile{
		Service: dataService,
		Data:    dataCharacteristic,
		Command: dataCharacteristic,
	}, scale.Hooks{
		Ready: d.configure,
		Data:  d.receiveData,
	})

	return d
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Difluid) {
	return func(d *Difluid) {
		d.logger = logger
	}
}

// Connect establishes the connection to the scale
func (d *Difluid) Connect(id scale.Identity) error {
	return d.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (d *Difluid) Disconnect() error {
	return d.session.Disconnect()
}

// Capabilities returns the operations supported in software
func (d *Difluid) Capabilities() scale.Capabilities {
	return scale.Capabilities{
		Tare:  true,
		Timer: true,
	}
}

// Tare tares the scale
func (d *Difluid) Tare() error {
	return d.session.Write(cmdTare)
}

// StartTimer starts the timer / stopwatch
func (d *Difluid) StartTimer() error {
	if err := d.session.Write(cmdStartTimer); err != nil {
		return err
	}

	d.StartStopwatch()
	return nil
}

// StopTimer stops the timer / stopwatch
func (d *Difluid) StopTimer() error {
	if err := d.session.Write(cmdStopTimer); err != nil {
		return err
	}

	d.StopStopwatch()
	return nil
}

// ResetTimer resets the timer / stopwatch (the scale itself restarts from zero)
func (d *Difluid) ResetTimer() error {
	if err := d.session.Write(cmdStartTimer); err != nil {
		return err
	}

	d.ResetStopwatch()
	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (d *Difluid) configure() {
	for _, cmd := range [][]byte{cmdAutoNotify, cmdGrams} {
		if err := d.session.Write(cmd); err != nil {
			d.logger.Warnf("failed to configure difluid scale: %s", err)
			return
		}
	}
}

func (d *Difluid) receiveData(_ uuid.UUID, data []byte) {
	weight, err := parseWeight(data)
	if err != nil {
		return
	}

	d.SetWeight(weight)
}

func parseWeight(data []byte) (float64, error) {
	if len(data) < minFrameLen {
		return 0, fmt.Errorf("frame too short (%d bytes)", len(data))
	}
	if !bytes.HasPrefix(data, frameHeader) {
		return 0, fmt.Errorf("unexpected frame header % x", data[:2])
	}

	raw := binary.BigEndian.Uint32(data[5:9])
	if raw >= maxRawWeight {
		return 0, fmt.Errorf("weight out of range (%d)", raw)
	}

	return float64(raw) / 10., nil
}
