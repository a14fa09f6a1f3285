// Package decent implements the protocol of the Decent Scale
package decent

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/fako1024/de1ble/pkg/codec"
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	packetLen      = 7
	timerPacketLen = 10
	packetModel    = 0x03

	typeWeight       = 0xCE
	typeWeightStable = 0xCA
	typeButton       = 0xAA

	cmdLED   = 0x0A
	cmdTimer = 0x0B
	cmdTare  = 0x0F

	timerStop  = 0x00
	timerReset = 0x02
	timerStart = 0x03

	ledSleep     = 0x02
	ledHeartbeat = 0x03

	// HeartbeatInterval denotes the interval in which the scale expects a keep-alive
	HeartbeatInterval = 3 * time.Second
)

var (
	dataService           = transport.UUID16(0xFFF0)
	readCharacteristic    = transport.UUID16(0xFFF4)
	commandCharacteristic = transport.UUID16(0x36F5)
)

// Service denotes the primary GATT service of the Decent Scale
var Service = dataService

// Decent denotes a Decent bluetooth scale
type Decent struct {
	*scale.Base

	session       *scale.Session
	buttonHandler func(button int)
	scaleTime     time.Duration
	logger        scale.Logger
}

// New instantiates a new Decent struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Decent)) *Decent {
	d := &Decent{
		logger: &scale.NullLogger{},
	}
	for _, option := range options {
		option(d)
	}

	d.Base = scale.NewBase(scale.TypeDecent, sched, d.logger)
	d.session = scale.NewSession(d.Base, tr, scale.Profile{
		Service: dataService,
		Data:    readCharacteristic,
		Command: commandCharacteristic,
	}, scale.Hooks{
		Ready: d.start,
		Data:  d.receiveData,
	})

	return d
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Decent) {
	return func(d *Decent) {
		d.logger = logger
	}
}

// SetButtonHandler defines a handler function that is called upon a button press on the scale
func (d *Decent) SetButtonHandler(fn func(button int)) {
	d.buttonHandler = fn
}

// Connect establishes the connection to the scale
func (d *Decent) Connect(id scale.Identity) error {
	return d.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (d *Decent) Disconnect() error {
	return d.session.Disconnect()
}

// Capabilities returns the operations supported in software
func (d *Decent) Capabilities() scale.Capabilities {
	return scale.Capabilities{
		Tare:  true,
		Timer: true,
		Sleep: true,
	}
}

// Tare tares the scale
func (d *Decent) Tare() error {
	return d.send(cmdTare, 0, 0, 0, 0)
}

// StartTimer starts the timer / stopwatch
func (d *Decent) StartTimer() error {
	if err := d.send(cmdTimer, timerStart, 0, 0, 0); err != nil {
		return err
	}

	d.StartStopwatch()
	return nil
}

// StopTimer stops the timer / stopwatch
func (d *Decent) StopTimer() error {
	if err := d.send(cmdTimer, timerStop, 0, 0, 0); err != nil {
		return err
	}

	d.StopStopwatch()
	return nil
}

// ResetTimer resets the timer / stopwatch
func (d *Decent) ResetTimer() error {
	if err := d.send(cmdTimer, timerReset, 0, 0, 0); err != nil {
		return err
	}

	d.ResetStopwatch()
	return nil
}

// Sleep puts the scale to sleep
func (d *Decent) Sleep() error {
	return d.send(cmdLED, ledSleep, 0, 0, 0)
}

// Wake turns the display back on
func (d *Decent) Wake() error {
	return d.SetLED(1, 1, 1)
}

// SetLED switches the display on (any non-zero component) or off. The scale does
// not support actual colors
func (d *Decent) SetLED(r, g, b int) error {
	var on byte
	if r != 0 || g != 0 || b != 0 {
		on = 0x01
	}

	return d.send(cmdLED, on, on, 0, 0)
}

// ScaleTime returns the most recent timer value reported by the scale itself
func (d *Decent) ScaleTime() time.Duration {
	return d.scaleTime
}

////////////////////////////////////////////////////////////////////////////////

func (d *Decent) send(cmd, d1, d2, d3, d4 byte) error {
	return d.session.Write(packet(cmd, d1, d2, d3, d4))
}

func (d *Decent) start() {
	if err := d.Wake(); err != nil {
		d.logger.Warnf("failed to enable decent scale display: %s", err)
	}
	d.scheduleHeartbeat()
}

func (d *Decent) scheduleHeartbeat() {
	d.session.Timers().After(HeartbeatInterval, func() {
		if err := d.send(cmdLED, ledHeartbeat, 0xFF, 0xFF, 0x00); err != nil {
			d.logger.Debugf("stopping decent scale heartbeat: %s", err)
			return
		}
		d.scheduleHeartbeat()
	})
}

func (d *Decent) receiveData(_ uuid.UUID, data []byte) {
	if len(data) < packetLen || data[0] != packetModel {
		return
	}
	if sum := codec.XOR(data[:len(data)-1]...); sum != data[len(data)-1] {
		d.logger.Debugf("dropping decent scale packet with invalid checksum: % x", data)
		return
	}

	switch data[1] {
	case typeWeight, typeWeightStable:
		weight, scaleTime, err := parseWeight(data)
		if err != nil {
			return
		}
		if scaleTime >= 0 {
			d.scaleTime = scaleTime
		}
		d.SetWeight(weight)
	case typeButton:
		d.logger.Debugf("decent scale button %d pressed", data[2])
		if d.buttonHandler != nil {
			d.buttonHandler(int(data[2]))
		}
	}
}

// parseWeight decodes a (checksum verified) weight packet. The returned scale time is
// negative if the packet does not carry one
func parseWeight(data []byte) (float64, time.Duration, error) {
	if len(data) < packetLen {
		return 0, 0, fmt.Errorf("packet too short (%d bytes)", len(data))
	}

	weight := float64(int16(binary.BigEndian.Uint16(data[2:4]))) / 10.
	if len(data) < timerPacketLen {
		return weight, -1, nil
	}

	scaleTime := time.Duration(data[4])*time.Minute +
		time.Duration(data[5])*time.Second +
		time.Duration(data[6])*100*time.Millisecond

	return weight, scaleTime, nil
}

func packet(cmd, d1, d2, d3, d4 byte) []byte {
	res := []byte{packetModel, cmd, d1, d2, d3, d4, 0}
	res[packetLen-1] = codec.XOR(res[:packetLen-1]...)

	return res
}
