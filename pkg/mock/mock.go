// Package mock provides test doubles for scales and transports
package mock

import (
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
)

const defaultDeviceName = "Mock Scale"

// Mock denotes a Mock bluetooth scale that connects instantly and reports
// weights injected via SetWeight
type Mock struct {
	*scale.Base

	tareCount  int
	isSleeping bool
	capability scale.Capabilities
}

// New instantiates a new Mock scale, executing functional options, if any
func New(sched loop.Scheduler, options ...func(*Mock)) *Mock {
	m := &Mock{
		Base: scale.NewBase(scale.TypeUnknown, sched, nil),
		capability: scale.Capabilities{
			Tare:  true,
			Timer: true,
			Sleep: true,
		},
	}
	m.SetIdentity(scale.Identity{Name: defaultDeviceName})

	for _, option := range options {
		option(m)
	}

	return m
}

// WithCapabilities overrides the capabilities reported by the scale
func WithCapabilities(c scale.Capabilities) func(*Mock) {
	return func(m *Mock) {
		m.capability = c
	}
}

// Connect marks the scale connected immediately
func (m *Mock) Connect(id scale.Identity) error {
	m.SetIdentity(id)
	m.SetConnected(true)

	return nil
}

// Disconnect marks the scale disconnected
func (m *Mock) Disconnect() error {
	m.SetConnected(false)

	return nil
}

// Capabilities returns the configured capabilities
func (m *Mock) Capabilities() scale.Capabilities {
	return m.capability
}

// Tare tares the scale
func (m *Mock) Tare() error {
	m.tareCount++
	if m.IsConnected() {
		m.SetWeight(0.)
	}

	return nil
}

// TareCount returns the number of tare requests
func (m *Mock) TareCount() int {
	return m.tareCount
}

// StartTimer starts the timer / stopwatch
func (m *Mock) StartTimer() error {
	m.StartStopwatch()
	return nil
}

// StopTimer stops the timer / stopwatch
func (m *Mock) StopTimer() error {
	m.StopStopwatch()
	return nil
}

// ResetTimer resets the timer / stopwatch
func (m *Mock) ResetTimer() error {
	m.ResetStopwatch()
	return nil
}

// Sleep puts the scale into standby
func (m *Mock) Sleep() error {
	m.isSleeping = true
	return nil
}

// Wake wakes the scale from standby
func (m *Mock) Wake() error {
	m.isSleeping = false
	return nil
}

// IsSleeping returns if the scale is in standby
func (m *Mock) IsSleeping() bool {
	return m.isSleeping
}
