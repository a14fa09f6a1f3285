// Package ble selects and initializes the bluetooth backend of the command line tools
package ble

import (
	"fmt"

	"github.com/fako1024/de1ble/pkg/config"
	"github.com/fako1024/de1ble/pkg/factory"
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/scanner"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/fako1024/de1ble/pkg/transport/gattble"
	"github.com/fako1024/de1ble/pkg/transport/tinyble"
)

// Backend denotes a bluetooth stack providing discovery and transports
type Backend interface {
	transport.Discoverer

	// NewTransport instantiates a new transport on the backend
	NewTransport() transport.Transport
}

// New initializes the backend with the given name
func New(name string, sched loop.Scheduler, logger scale.Logger) (Backend, error) {
	logger = scale.Named(logger, "ble")

	switch name {
	case config.BackendGATT:
		stack, err := gattble.New(sched, gattble.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return stack, nil
	case config.BackendTinyGo:
		return tinyble.New(sched,
			tinyble.WithLogger(logger),
			tinyble.WithServiceFilter(append(factory.KnownServices(), scanner.DE1Service)...),
		), nil
	}

	return nil, fmt.Errorf("unsupported bluetooth backend `%s`", name)
}
