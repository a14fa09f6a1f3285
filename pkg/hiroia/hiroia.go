// Package hiroia implements the protocol of the Hiroia Jimmy scale
package hiroia

import (
	"encoding/binary"
	"fmt"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	minFrameLen = 7

	// Readings at or above this value denote negative weights
	negativeThreshold = 8388608
)

var (
	dataService           = transport.MustParseUUID("06C31822-8682-4744-9211-FEBC93E3BECE")
	commandCharacteristic = transport.MustParseUUID("06C31823-8682-4744-9211-FEBC93E3BECE")
	statusCharacteristic  = transport.MustParseUUID("06C31824-8682-4744-9211-FEBC93E3BECE")

	cmdTare = []byte{0x07, 0x00}
)

// Service denotes the primary GATT service of the Hiroia Jimmy scale
var Service = dataService

// Hiroia denotes a Hiroia Jimmy bluetooth scale
type Hiroia struct {
	*scale.Base

	session *scale.Session
	logger  scale.Logger
}

// New instantiates a new Hiroia struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Hiroia)) *Hiroia {
	h := &Hiroia{
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(h)
	}

	h.Base = scale.NewBase(scale.TypeHiroiaJimmy, sched, h.logger)
	h.session = scale.NewSession(h.Base, tr, scale.Profile{
		Service: dataService,
		Data:    statusCharacteristic,
		Command: commandCharacteristic,
	}, scale.Hooks{
		Data: h.receiveData,
	})

	return h
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Hiroia) {
	return func(h *Hiroia) {
		h.logger = logger
	}
}

// Connect establishes the connection to the scale
func (h *Hiroia) Connect(id scale.Identity) error {
	return h.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (h *Hiroia) Disconnect() error {
	return h.session.Disconnect()
}

// Tare tares the scale
func (h *Hiroia) Tare() error {
	return h.session.Write(cmdTare)
}

////////////////////////////////////////////////////////////////////////////////

func (h *Hiroia) receiveData(_ uuid.UUID, data []byte) {
	weight, err := parseWeight(data)
	if err != nil {
		h.logger.Debugf("dropping hiroia frame: %s", err)
		return
	}

	h.SetWeight(weight)
}

func parseWeight(data []byte) (float64, error) {
	if len(data) < minFrameLen {
		return 0, fmt.Errorf("frame too short (%d bytes)", len(data))
	}

	padded := make([]byte, 8)
	copy(padded, data)

	raw := binary.LittleEndian.Uint32(padded[4:8])
	weight := float64(raw)
	if raw >= negativeThreshold {
		weight = -float64(0xFFFFFF - raw)
	}

	return weight / 10., nil
}
