package scale

import "time"

// Basic denotes a basic coffee scale
type Basic interface {

	// Connect establishes the connection to the given scale device, tearing down a
	// previous connection (if any)
	Connect(id Identity) error

	// Disconnect terminates the connection to the device
	Disconnect() error

	// Identity returns the device the scale is bound to
	Identity() Identity

	// Name returns the (advertised) name of the scale
	Name() string

	// Type returns the vendor type of the scale
	Type() Type

	// ConnectionStatus returns the current connection status of the scale device
	ConnectionStatus() ConnectionStatus

	// IsConnected returns if the scale is connected and delivering data
	IsConnected() bool

	// Weight returns the most recent weight
	Weight() float64

	// FlowRate returns the smoothed flow rate in g/s
	FlowRate() float64

	// BatteryLevel returns the current battery level in percent (-1 if unknown)
	BatteryLevel() int

	// Capabilities returns the operations supported in software
	Capabilities() Capabilities

	// Tare tares the scale
	Tare() error

	// SetStateChangeHandler defines a handler function that is called upon state change
	SetStateChangeHandler(fn func(status ConnectionStatus))

	// SetStateChangeChannel defines a channel that receives state changes
	SetStateChangeChannel(ch chan ConnectionStatus)

	// SetDataHandler defines a handler function that is called upon retrieval of data
	SetDataHandler(fn func(data DataPoint))

	// SetDataChannel defines a channel that receives data
	SetDataChannel(ch chan DataPoint)

	// SetErrorHandler defines a handler function that is called upon driver level errors
	SetErrorHandler(fn func(err error))

	// SetInfoHandler defines a handler function that is called for informational notices
	SetInfoHandler(fn func(msg string))
}

// Beeper denotes scales that can emit an audible signal on request
type Beeper interface {

	// Buzz requests the scale to beep / buzz n times
	Buzz(n int) error
}

// Buzzer denotes audible signaling functionality
type Buzzer interface {
	Beeper

	// IsBuzzingOnTouch returns if the buzzer (on user interaction) is on / off
	IsBuzzingOnTouch() bool

	// ToggleBuzzingOnTouch turns the buzzer (on user interaction) on / off
	ToggleBuzzingOnTouch() error
}

// WithBuzzer denotes a scale with buzzer functionality
type WithBuzzer interface {
	Basic
	Buzzer
}

// Timer denotes timer / stopwatch functionality
type Timer interface {

	// StartTimer starts the timer / stopwatch
	StartTimer() error

	// StopTimer stops the timer / stopwatch
	StopTimer() error

	// ResetTimer resets the timer / stopwatch
	ResetTimer() error

	// ElapsedTime returns the current timer value
	ElapsedTime() time.Duration
}

// Sleeper denotes power management functionality
type Sleeper interface {

	// Sleep puts the scale into standby
	Sleep() error

	// Wake wakes the scale from standby
	Wake() error
}

// Scale denotes the "default" scale containing all functionality
type Scale interface {
	Basic
	Timer
	Sleeper
}
