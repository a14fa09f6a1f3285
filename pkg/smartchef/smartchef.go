// Package smartchef implements the protocol of SmartChef scales
package smartchef

import (
	"encoding/binary"
	"fmt"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	minFrameLen   = 7
	signThreshold = 10

	// TareNotice is emitted when a software tare is requested
	TareNotice = "SmartChef scales do not support remote tare, please press the tare button on the scale"
)

var (
	dataService        = transport.UUID16(0xFFF0)
	dataCharacteristic = transport.UUID16(0xFFF1)
)

// Service denotes the primary GATT service of the SmartChef scale
var Service = dataService

// SmartChef denotes a SmartChef bluetooth scale
type SmartChef struct {
	*scale.Base

	session *scale.Session
	logger  scale.Logger
}

// New instantiates a new SmartChef struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*SmartChef)) *SmartChef {
	s := &SmartChef{
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(s)
	}

	s.Base = scale.NewBase(scale.TypeSmartChef, sched, s.logger)
	s.session = scale.NewSession(s.Base, tr, scale.Profile{
		Service: dataService,
		Data:    dataCharacteristic,
	}, scale.Hooks{
		Data: s.receiveData,
	})

	return s
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*SmartChef) {
	return func(s *SmartChef) {
		s.logger = logger
	}
}

// Connect establishes the connection to the scale
func (s *SmartChef) Connect(id scale.Identity) error {
	return s.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (s *SmartChef) Disconnect() error {
	return s.session.Disconnect()
}

// Capabilities returns the operations supported in software
func (s *SmartChef) Capabilities() scale.Capabilities {
	return scale.Capabilities{}
}

// Tare cannot be performed remotely, the user is notified to press the button instead
func (s *SmartChef) Tare() error {
	s.EmitInfo(TareNotice)
	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (s *SmartChef) receiveData(_ uuid.UUID, data []byte) {
	weight, err := parseWeight(data)
	if err != nil {
		return
	}

	s.SetWeight(weight)
}

func parseWeight(data []byte) (float64, error) {
	if len(data) < minFrameLen {
		return 0, fmt.Errorf("frame too short (%d bytes)", len(data))
	}

	weight := float64(int16(binary.BigEndian.Uint16(data[5:7]))) / 10.
	if data[3] > signThreshold {
		weight = -weight
	}

	return weight, nil
}
