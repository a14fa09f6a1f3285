package transport

import "errors"

var (

	// ErrPoweredOff is returned if the bluetooth adapter is switched off
	ErrPoweredOff = errors.New("bluetooth adapter powered off")

	// ErrIO is returned upon low-level communication failures with the adapter
	ErrIO = errors.New("bluetooth i/o error")

	// ErrInvalidAdapter is returned if no usable adapter is present
	ErrInvalidAdapter = errors.New("invalid bluetooth adapter")

	// ErrUnsupportedPlatform is returned if the platform lacks BLE central support
	ErrUnsupportedPlatform = errors.New("platform does not support bluetooth le")

	// ErrUnsupportedDiscovery is returned if the requested discovery method is unavailable
	ErrUnsupportedDiscovery = errors.New("unsupported discovery method")

	// ErrLocationOff is returned if location services required for scanning are disabled
	ErrLocationOff = errors.New("location services turned off")

	// ErrNotConnected is returned for operations requiring an established link
	ErrNotConnected = errors.New("peripheral not connected")

	// ErrDiscoveryRunning is returned when starting a discovery cycle while another one is active
	ErrDiscoveryRunning = errors.New("discovery already running")
)
