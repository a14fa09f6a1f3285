// Package slot manages the single "current" scale of an application. Only one
// scale instance is bound at any time, swapping scales tears down the previous one
package slot

import (
	"fmt"

	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
)

// CreateFunc denotes a function instantiating a driver for a scale device
type CreateFunc func(id scale.Identity) scale.Scale

// Slot denotes the owner of the current scale. It is not safe for concurrent use and
// must only be accessed from the control loop
type Slot struct {
	create CreateFunc
	logger scale.Logger

	current   scale.Scale
	connected bool

	changeHandler     func(s scale.Scale)
	connectionHandler func(connected bool)
	dataHandler       func(data scale.DataPoint)
	saveHandler       func(address, typeName string)
}

// New instantiates a new, empty Slot, executing functional options, if any
func New(create CreateFunc, options ...func(*Slot)) *Slot {
	s := &Slot{
		create: create,
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(s)
	}

	return s
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Slot) {
	return func(s *Slot) {
		s.logger = logger
	}
}

// WithChangeHandler sets a handler function that is called when the current scale is replaced
func WithChangeHandler(fn func(s scale.Scale)) func(*Slot) {
	return func(s *Slot) {
		s.changeHandler = fn
	}
}

// WithConnectionHandler sets a handler function that is called when the current scale
// connects / disconnects
func WithConnectionHandler(fn func(connected bool)) func(*Slot) {
	return func(s *Slot) {
		s.connectionHandler = fn
	}
}

// WithDataHandler sets a handler function that receives the data of the current scale
func WithDataHandler(fn func(data scale.DataPoint)) func(*Slot) {
	return func(s *Slot) {
		s.dataHandler = fn
	}
}

// WithSaveHandler sets a handler function that persists the address and type of a
// scale once it has connected
func WithSaveHandler(fn func(address, typeName string)) func(*Slot) {
	return func(s *Slot) {
		s.saveHandler = fn
	}
}

// Current returns the current scale (nil if none)
func (s *Slot) Current() scale.Scale {
	return s.current
}

// Offer proposes a discovered scale device. It is bound and connected unless the
// current scale is already connected. A device matching the current scale reconnects
// the existing instance
func (s *Slot) Offer(id scale.Identity) (bool, error) {
	id.Address = transport.NormalizeAddress(id.Address)

	if s.current != nil {
		if s.current.IsConnected() {
			s.logger.Debugf("ignoring scale `%s` (%s), current scale is connected", id.Name, id.Address)
			return false, nil
		}

		if transport.NormalizeAddress(s.current.Identity().Address) == id.Address {
			s.logger.Debugf("reconnecting current scale `%s` (%s)", id.Name, id.Address)
			if id.Name == "" {
				id.Name = s.current.Name()
			}
			return true, s.current.Connect(id)
		}
	}

	sc := s.create(id)
	if sc == nil {
		return false, fmt.Errorf("cannot bind scale `%s` (%s): %w", id.Name, id.Address, scale.ErrUnknownType)
	}

	s.Release()
	s.bind(sc)

	return true, sc.Connect(id)
}

// Release disconnects and detaches the current scale (if any)
func (s *Slot) Release() {
	if s.current == nil {
		return
	}

	prev, wasConnected := s.current, s.connected
	s.current, s.connected = nil, false

	prev.SetStateChangeHandler(nil)
	prev.SetDataHandler(nil)
	if err := prev.Disconnect(); err != nil {
		s.logger.Warnf("failed to disconnect scale `%s`: %s", prev.Name(), err)
	}
	if s.connectionHandler != nil && wasConnected {
		s.connectionHandler(false)
	}
	if s.changeHandler != nil {
		s.changeHandler(nil)
	}
}

////////////////////////////////////////////////////////////////////////////////

func (s *Slot) bind(sc scale.Scale) {
	s.current = sc

	sc.SetStateChangeHandler(func(status scale.ConnectionStatus) {
		isConnected := status.State == scale.StateConnected
		if isConnected == s.connected {
			return
		}
		s.connected = isConnected

		if isConnected && s.saveHandler != nil {
			id := sc.Identity()
			s.saveHandler(id.Address, id.Type.String())
		}
		if s.connectionHandler != nil {
			s.connectionHandler(isConnected)
		}
	})
	sc.SetDataHandler(func(data scale.DataPoint) {
		if s.dataHandler != nil {
			s.dataHandler(data)
		}
	})

	if s.changeHandler != nil {
		s.changeHandler(sc)
	}
}
