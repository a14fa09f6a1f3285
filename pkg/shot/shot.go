// Package shot implements stop-on-weight monitoring of an espresso shot based on
// the weight and flow rate reported by a scale
package shot

import (
	"fmt"

	"github.com/fako1024/de1ble/pkg/scale"
)

// DefaultLag denotes the default time (in seconds) between a stop request and the
// actual end of flow, the weight is extrapolated over this period
const DefaultLag = 0.5

// Monitor denotes a stop-on-weight monitor for a single shot at a time
type Monitor struct {
	scale  scale.Basic
	target float64
	lag    float64
	logger scale.Logger

	running bool
	reached bool

	reachedHandler func(weight float64)
}

// New instantiates a new Monitor for the given target weight, executing functional
// options, if any
func New(s scale.Basic, target float64, options ...func(*Monitor)) (*Monitor, error) {
	if target <= 0 {
		return nil, fmt.Errorf("invalid target weight: %.1f", target)
	}

	m := &Monitor{
		scale:  s,
		target: target,
		lag:    DefaultLag,
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(m)
	}

	return m, nil
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Monitor) {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithLag sets the time (in seconds) the weight is extrapolated over using the flow rate
func WithLag(lag float64) func(*Monitor) {
	return func(m *Monitor) {
		m.lag = lag
	}
}

// SetReachedHandler defines a handler function that is called once per shot when
// the target weight is (about to be) reached
func (m *Monitor) SetReachedHandler(fn func(weight float64)) {
	m.reachedHandler = fn
}

// SetScale replaces the monitored scale
func (m *Monitor) SetScale(s scale.Basic) {
	m.scale = s
}

// Target returns the target weight
func (m *Monitor) Target() float64 {
	return m.target
}

// Running returns if a shot is being monitored
func (m *Monitor) Running() bool {
	return m.running
}

// Reached returns if the target weight was reached during the current shot
func (m *Monitor) Reached() bool {
	return m.reached
}

// Start tares the scale and starts monitoring a new shot
func (m *Monitor) Start() error {
	m.running, m.reached = true, false
	if m.scale == nil {
		return scale.ErrNotConnected
	}

	if err := m.scale.Tare(); err != nil {
		return fmt.Errorf("failed to tare scale at shot start: %w", err)
	}

	return nil
}

// Stop ends monitoring of the current shot
func (m *Monitor) Stop() {
	m.running = false
}

// Update processes a new weight / flow sample
func (m *Monitor) Update(weight, flow float64) {
	if !m.running || m.reached {
		return
	}

	if weight >= m.target-flow*m.lag {
		m.reached = true
		m.logger.Debugf("target weight %.1fg reached at %.1fg (flow %.2fg/s)", m.target, weight, flow)
		if m.reachedHandler != nil {
			m.reachedHandler(weight)
		}
	}
}

// HandleData processes a data point emitted by a scale
func (m *Monitor) HandleData(data scale.DataPoint) {
	m.Update(data.Weight, data.FlowRate)
}
