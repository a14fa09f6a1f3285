package scale

import (
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fatih/stopwatch"
)

// Base denotes the state common to all scale drivers. It is not safe for concurrent
// use and must only be accessed from the control loop
type Base struct {
	identity         Identity
	connectionStatus ConnectionStatus

	weight       float64
	flowRate     float64
	batteryLevel int
	unit         Unit
	flow         FlowHistory

	timer *stopwatch.Stopwatch

	stateChangeHandler func(status ConnectionStatus)
	stateChangeChan    chan ConnectionStatus

	dataHandler func(data DataPoint)
	dataChan    chan DataPoint

	errorHandler func(err error)
	infoHandler  func(msg string)

	sched  loop.Scheduler
	logger Logger
}

// NewBase instantiates the common state for a scale of the given type
func NewBase(t Type, sched loop.Scheduler, logger Logger) *Base {
	if logger == nil {
		logger = &NullLogger{}
	}

	return &Base{
		identity: Identity{
			Type: t,
		},
		batteryLevel: -1,
		unit:         UnitGrams,
		sched:        sched,
		logger:       logger,
	}
}

// Identity returns the identity of the device the scale is bound to
func (b *Base) Identity() Identity {
	return b.identity
}

// SetIdentity binds the scale to a device, retaining its type
func (b *Base) SetIdentity(id Identity) {
	t := b.identity.Type
	b.identity = id
	if t != TypeUnknown {
		b.identity.Type = t
	}
}

// Name returns the (advertised) name of the scale
func (b *Base) Name() string {
	return b.identity.Name
}

// Type returns the vendor type of the scale
func (b *Base) Type() Type {
	return b.identity.Type
}

// ConnectionStatus returns the current status of the bluetooth device
func (b *Base) ConnectionStatus() ConnectionStatus {
	return b.connectionStatus
}

// IsConnected returns if the scale is connected and delivering data
func (b *Base) IsConnected() bool {
	return b.connectionStatus.State == StateConnected
}

// Weight returns the most recent weight
func (b *Base) Weight() float64 {
	return b.weight
}

// FlowRate returns the smoothed flow rate in g/s
func (b *Base) FlowRate() float64 {
	return b.flowRate
}

// BatteryLevel returns the current battery level in percent (-1 if unknown)
func (b *Base) BatteryLevel() int {
	return b.batteryLevel
}

// Unit returns the current weight unit
func (b *Base) Unit() Unit {
	return b.unit
}

// Capabilities returns the operations supported in software (may be overridden)
func (b *Base) Capabilities() Capabilities {
	return Capabilities{Tare: true}
}

// StartTimer is a no-op for scales without timer support
func (b *Base) StartTimer() error { return nil }

// StopTimer is a no-op for scales without timer support
func (b *Base) StopTimer() error { return nil }

// ResetTimer is a no-op for scales without timer support
func (b *Base) ResetTimer() error { return nil }

// Sleep is a no-op for scales without power management
func (b *Base) Sleep() error { return nil }

// Wake is a no-op for scales without power management
func (b *Base) Wake() error { return nil }

// ElapsedTime returns the current timer value
func (b *Base) ElapsedTime() time.Duration {
	if b.timer != nil {
		return b.timer.ElapsedTime()
	}

	return 0
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (b *Base) SetStateChangeHandler(fn func(status ConnectionStatus)) {
	b.stateChangeHandler = fn
}

// SetStateChangeChannel defines a channel that receives state changes
func (b *Base) SetStateChangeChannel(ch chan ConnectionStatus) {
	b.stateChangeChan = ch
}

// SetDataHandler defines a handler function that is called upon retrieval of data
func (b *Base) SetDataHandler(fn func(data DataPoint)) {
	b.dataHandler = fn
}

// SetDataChannel defines a channel that receives data
func (b *Base) SetDataChannel(ch chan DataPoint) {
	b.dataChan = ch
}

// SetErrorHandler defines a handler function that is called upon driver level errors
func (b *Base) SetErrorHandler(fn func(err error)) {
	b.errorHandler = fn
}

// SetInfoHandler defines a handler function that is called for informational notices
func (b *Base) SetInfoHandler(fn func(msg string)) {
	b.infoHandler = fn
}

// Logger returns the logger of the scale
func (b *Base) Logger() Logger {
	return b.logger
}

// Scheduler returns the control loop the scale runs on
func (b *Base) Scheduler() loop.Scheduler {
	return b.sched
}

// SetState publishes a new connection state. Unchanged states without error are not re-published
func (b *Base) SetState(state State, err error) {
	if b.connectionStatus.State == state && err == nil {
		return
	}

	b.logger.Debugf("scale `%s` changed state from %s to %s", b.identity.Name, b.connectionStatus.State, state)
	b.connectionStatus = ConnectionStatus{
		State: state,
		Error: err,
	}
	if state != StateConnected {
		b.flow.Reset()
		b.flowRate = 0
	}

	// Call handler function, if any
	if b.stateChangeHandler != nil {
		b.stateChangeHandler(b.connectionStatus)
	}

	// Put state change on channel, if any
	if b.stateChangeChan != nil {
		select {
		case b.stateChangeChan <- b.connectionStatus:
		default:
		}
	}
}

// SetConnected marks the scale as connected / disconnected. A failed state is retained
// on disconnect
func (b *Base) SetConnected(connected bool) {
	if connected {
		b.SetState(StateConnected, nil)
		return
	}
	if b.connectionStatus.State != StateFailed {
		b.SetState(StateDisconnected, nil)
	}
}

// SetWeight updates the weight and the derived flow rate and emits a data point
func (b *Base) SetWeight(weight float64) {
	now := b.sched.Now()
	b.weight = weight
	b.flowRate, _ = b.flow.Update(weight, now)

	b.emit(DataPoint{
		TimeStamp:    now,
		Unit:         b.unit,
		Weight:       weight,
		FlowRate:     b.flowRate,
		BatteryLevel: b.batteryLevel,
	})
}

// SetBattery updates the battery level in percent
func (b *Base) SetBattery(level int) {
	if level == b.batteryLevel {
		return
	}

	b.logger.Debugf("scale `%s` battery level changed to %d%%", b.identity.Name, level)
	b.batteryLevel = level
}

// UpdateUnit updates the weight unit reported with subsequent data points
func (b *Base) UpdateUnit(unit Unit) {
	b.unit = unit
}

// EmitError reports a driver level error
func (b *Base) EmitError(err error) {
	b.logger.Warnf("scale `%s`: %s", b.identity.Name, err)
	if b.errorHandler != nil {
		b.errorHandler(err)
	}
}

// EmitInfo reports an informational notice (e.g. an operation requiring user action)
func (b *Base) EmitInfo(msg string) {
	b.logger.Infof("scale `%s`: %s", b.identity.Name, msg)
	if b.infoHandler != nil {
		b.infoHandler(msg)
	}
}

// StartStopwatch starts the local mirror of the scale timer
func (b *Base) StartStopwatch() {
	if b.timer == nil {
		b.timer = stopwatch.Start(0)
	} else {
		b.timer.Start(0)
	}
}

// StopStopwatch stops the local mirror of the scale timer
func (b *Base) StopStopwatch() {
	if b.timer != nil {
		b.timer.Stop()
	}
}

// ResetStopwatch resets the local mirror of the scale timer
func (b *Base) ResetStopwatch() {
	if b.timer != nil {
		b.timer.Reset()
	}
}

////////////////////////////////////////////////////////////////////////////////

func (b *Base) emit(dataPoint DataPoint) {

	// Call handler function, if any
	if b.dataHandler != nil {
		b.dataHandler(dataPoint)
	}

	// Put data point on channel, if any
	if b.dataChan != nil {
		select {
		case b.dataChan <- dataPoint:
		default:
		}
	}
}
