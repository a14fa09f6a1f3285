// Package de1 provides the binary encoding of espresso profile steps for the
// DE1 profile frame characteristic
package de1

// Pump denotes the control mode of a frame
type Pump string

// Sensor denotes the temperature sensor a frame regulates on
type Sensor string

// Transition denotes how the machine moves towards the frame setpoint
type Transition string

// ExitType denotes the early exit condition of a frame
type ExitType string

const (

	// PumpPressure regulates on pressure
	PumpPressure Pump = "pressure"

	// PumpFlow regulates on flow
	PumpFlow Pump = "flow"

	// SensorCoffee uses the basket temperature
	SensorCoffee Sensor = "coffee"

	// SensorWater uses the mix temperature
	SensorWater Sensor = "water"

	// TransitionFast jumps to the setpoint
	TransitionFast Transition = "fast"

	// TransitionSmooth interpolates towards the setpoint
	TransitionSmooth Transition = "smooth"

	ExitPressureOver  ExitType = "pressure_over"
	ExitPressureUnder ExitType = "pressure_under"
	ExitFlowOver      ExitType = "flow_over"
	ExitFlowUnder     ExitType = "flow_under"
)

// Frame flag bits
const (
	FlagCtrlF       byte = 0x01
	FlagDoCompare   byte = 0x02
	FlagDCGT        byte = 0x04
	FlagDCCompF     byte = 0x08
	FlagTMixTemp    byte = 0x10
	FlagInterpolate byte = 0x20
	FlagIgnoreLimit byte = 0x40
)

const (
	defaultTemperature  = 93.0
	defaultPressure     = 9.0
	defaultFlow         = 2.0
	defaultSeconds      = 30.0
	defaultLimiterRange = 0.6
)

// Frame denotes a single step of an espresso profile
type Frame struct {
	Name        string     `json:"name"`
	Temperature float64    `json:"temperature"`
	Sensor      Sensor     `json:"sensor"`
	Pump        Pump       `json:"pump"`
	Transition  Transition `json:"transition"`
	Pressure    float64    `json:"pressure"`
	Flow        float64    `json:"flow"`
	Seconds     float64    `json:"seconds"`
	Volume      float64    `json:"volume"`

	ExitIf            bool     `json:"exit_if"`
	ExitType          ExitType `json:"exit_type,omitempty"`
	ExitPressureOver  float64  `json:"exit_pressure_over,omitempty"`
	ExitPressureUnder float64  `json:"exit_pressure_under,omitempty"`
	ExitFlowOver      float64  `json:"exit_flow_over,omitempty"`
	ExitFlowUnder     float64  `json:"exit_flow_under,omitempty"`

	// Limits flow in pressure mode and pressure in flow mode (0 = no limit)
	MaxFlowOrPressure      float64 `json:"max_flow_or_pressure,omitempty"`
	MaxFlowOrPressureRange float64 `json:"max_flow_or_pressure_range,omitempty"`
}

// NewFrame instantiates a frame carrying the machine defaults
func NewFrame() Frame {
	return Frame{
		Temperature:            defaultTemperature,
		Sensor:                 SensorCoffee,
		Pump:                   PumpPressure,
		Transition:             TransitionFast,
		Pressure:               defaultPressure,
		Flow:                   defaultFlow,
		Seconds:                defaultSeconds,
		MaxFlowOrPressureRange: defaultLimiterRange,
	}
}

// IsFlowControl returns if the frame regulates on flow
func (f Frame) IsFlowControl() bool {
	return f.Pump == PumpFlow
}

// NeedsExtension returns if the frame requires an additional limiter frame
func (f Frame) NeedsExtension() bool {
	return f.MaxFlowOrPressure > 0
}

// SetValue returns the pressure or flow setpoint, depending on the pump mode
func (f Frame) SetValue() float64 {
	if f.IsFlowControl() {
		return f.Flow
	}

	return f.Pressure
}

// TriggerValue returns the threshold of the exit condition (0 if none)
func (f Frame) TriggerValue() float64 {
	if !f.ExitIf {
		return 0
	}

	switch f.ExitType {
	case ExitPressureOver:
		return f.ExitPressureOver
	case ExitPressureUnder:
		return f.ExitPressureUnder
	case ExitFlowOver:
		return f.ExitFlowOver
	case ExitFlowUnder:
		return f.ExitFlowUnder
	}

	return 0
}

// Flags computes the flag byte of the frame. IgnoreLimit is always set, a limiter
// is carried by the extension frame only
func (f Frame) Flags() (flags byte) {
	flags = FlagIgnoreLimit
	if f.IsFlowControl() {
		flags |= FlagCtrlF
	}
	if f.Sensor == SensorWater {
		flags |= FlagTMixTemp
	}
	if f.Transition == TransitionSmooth {
		flags |= FlagInterpolate
	}

	if !f.ExitIf {
		return
	}

	switch f.ExitType {
	case ExitPressureUnder:
		flags |= FlagDoCompare
	case ExitPressureOver:
		flags |= FlagDoCompare | FlagDCGT
	case ExitFlowUnder:
		flags |= FlagDoCompare | FlagDCCompF
	case ExitFlowOver:
		flags |= FlagDoCompare | FlagDCGT | FlagDCCompF
	}

	return
}
