package scale

import "errors"

var (

	// ErrNotConnected is returned when writing to a scale whose characteristics are not yet known
	ErrNotConnected = errors.New("failed to write to uninitialized device")

	// ErrNoTransport is returned when connecting a scale without transport
	ErrNoTransport = errors.New("no transport provided")

	// ErrServiceNotFound is emitted if the peripheral does not offer the expected service
	ErrServiceNotFound = errors.New("scale service not found")

	// ErrNotResponding is emitted if a scale does not deliver data after all retries
	ErrNotResponding = errors.New("scale not responding")

	// ErrUnknownType is returned for unrecognized scale types
	ErrUnknownType = errors.New("unknown scale type")

	// ErrUnsupported is returned for operations the scale does not offer
	ErrUnsupported = errors.New("operation not supported by scale")
)
