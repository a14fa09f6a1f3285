package felicita

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
)

const (
	minBatteryLevel = 129.
	maxBatteryLevel = 158.

	minFrameLen     = 9
	minBatteryFrame = 16

	cmdStartTimer = 0x52
	cmdStopTimer  = 0x53
	cmdResetTimer = 0x43

	cmdToggleBuzzer    = 0x42
	cmdTogglePrecision = 0x44
	cmdTare            = 0x54
	cmdToggleUnit      = 0x55

	signalFlagOn = 0x22

	btSettleDelay   = 50 * time.Millisecond
	btSettleRetries = 100
)

var errBuzzing = errors.New("buzzer sequence already in progress")

var (
	dataService        = transport.UUID16(0xFFE0)
	dataCharacteristic = transport.UUID16(0xFFE1)
)

// Service denotes the primary GATT service of the Felicita scale
var Service = dataService

// Felicita denotes a Felicita bluetooth scale
type Felicita struct {
	*scale.Base

	session *scale.Session

	isBuzzingOnTouch            bool
	forceBuzzerSettingOnConnect BuzzerSetting
	hasReceivedData             bool

	// Pending buzzer target states of a running Buzz() sequence
	buzzSteps []bool
	buzzPolls int

	logger scale.Logger
}

// New instantiates a new Felicita struct, executing functional options, if any
func New(tr transport.Transport, sched loop.Scheduler, options ...func(*Felicita)) *Felicita {

	// Initialize a new instance of a Felicita scale
	f := &Felicita{
		logger: &scale.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(f)
	}

	f.Base = scale.NewBase(scale.TypeFelicita, sched, f.logger)
	f.session = scale.NewSession(f.Base, tr, scale.Profile{
		Service: dataService,
		Data:    dataCharacteristic,
		Command: dataCharacteristic,
	}, scale.Hooks{
		Data:   f.receiveData,
		Closed: f.onClosed,
	})

	return f
}

// Connect establishes the connection to the scale
func (f *Felicita) Connect(id scale.Identity) error {
	f.buzzSteps = nil
	return f.session.Connect(id)
}

// Disconnect terminates the connection to the scale
func (f *Felicita) Disconnect() error {
	f.buzzSteps = nil
	return f.session.Disconnect()
}

// Capabilities returns the operations supported in software
func (f *Felicita) Capabilities() scale.Capabilities {
	return scale.Capabilities{
		Tare:  true,
		Timer: true,
	}
}

// IsBuzzingOnTouch returns if the scale buzzer is turned on or not (on user interaction)
func (f *Felicita) IsBuzzingOnTouch() bool {
	return f.isBuzzingOnTouch
}

// Tare tares the scale
func (f *Felicita) Tare() error {
	return f.write(cmdTare)
}

// ToggleBuzzingOnTouch turns the buzzer (on user interaction) on / off
func (f *Felicita) ToggleBuzzingOnTouch() error {
	return f.write(cmdToggleBuzzer)
}

// Buzz requests the scale to beep n times. The scale lacks a dedicated command, so
// each beep is produced by enabling the buzzer setting, which is restored at the
// end. The sequence continues asynchronously, each step once the scale reports
// the requested buzzer state
func (f *Felicita) Buzz(n int) error {
	if n <= 0 {
		return fmt.Errorf("invalid number of beeps requested: %d", n)
	}
	if len(f.buzzSteps) > 0 {
		return errBuzzing
	}

	// If the buzzer is currently turned on, turn it off first. Since re-enabling it
	// at the end causes yet another beep, n is reduced by one
	restore := f.isBuzzingOnTouch
	var steps []bool
	if restore {
		steps = append(steps, false)
		n--
	}
	for i := 0; i < n; i++ {
		steps = append(steps, true, false)
	}
	if restore {
		steps = append(steps, true)
	}

	if err := f.ToggleBuzzingOnTouch(); err != nil {
		return err
	}
	f.buzzSteps, f.buzzPolls = steps, 0
	f.session.Timers().After(btSettleDelay, f.awaitBuzzer)

	return nil
}

// SetUnit changes the weight unit from / to g / oz
func (f *Felicita) SetUnit(unit scale.Unit) error {

	// Check if the unit is already set to the expected value
	if f.Unit() != scale.UnitUnknown && f.Unit() == unit {
		return nil
	}

	// Toggle unit, if not
	return f.write(cmdToggleUnit)
}

// TogglePrecision toggles the weight precision between 0.1 and 0.01
func (f *Felicita) TogglePrecision() error {
	return f.write(cmdTogglePrecision)
}

// StartTimer starts the timer / stopwatch
func (f *Felicita) StartTimer() error {
	if err := f.write(cmdStartTimer); err != nil {
		return err
	}

	f.StartStopwatch()
	return nil
}

// StopTimer stops the timer / stopwatch
func (f *Felicita) StopTimer() error {
	if err := f.write(cmdStopTimer); err != nil {
		return err
	}

	f.StopStopwatch()
	return nil
}

// ResetTimer resets the timer / stopwatch
func (f *Felicita) ResetTimer() error {
	if err := f.write(cmdResetTimer); err != nil {
		return err
	}

	f.ResetStopwatch()
	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (f *Felicita) write(cmd byte) error {
	return f.session.Write([]byte{cmd})
}

func (f *Felicita) onClosed() {
	f.hasReceivedData = false
	f.buzzSteps = nil
}

func (f *Felicita) awaitBuzzer() {
	if len(f.buzzSteps) == 0 {
		return
	}

	target := f.buzzSteps[0]
	if f.isBuzzingOnTouch != target {
		if f.buzzPolls++; f.buzzPolls >= btSettleRetries {
			f.buzzSteps = nil
			f.EmitError(fmt.Errorf("target buzzer state %v was not reached within %v", target, time.Duration(btSettleRetries)*btSettleDelay))
			return
		}
		f.session.Timers().After(btSettleDelay, f.awaitBuzzer)
		return
	}

	f.buzzSteps, f.buzzPolls = f.buzzSteps[1:], 0
	if len(f.buzzSteps) == 0 {
		return
	}
	if err := f.ToggleBuzzingOnTouch(); err != nil {
		f.logger.Warnf("aborting buzzer sequence: %s", err)
		f.buzzSteps = nil
		return
	}
	f.session.Timers().After(btSettleDelay, f.awaitBuzzer)
}

func (f *Felicita) receiveData(_ uuid.UUID, req []byte) {
	weight, err := parseWeight(req)
	if err != nil {
		return
	}

	if len(req) >= minBatteryFrame {
		f.SetBattery(parseBatteryLevel(req[15]))
		f.isBuzzingOnTouch = parseSignalFlag(req[14])
	}
	if unit := parseUnit(req[9:]); unit != scale.UnitUnknown {
		f.UpdateUnit(unit)
	}

	// Upon first data reception, check if the Buzzer is configured as expected and
	// attempt to force the setting if not (unless not configured)
	f.forceBuzzerSetting()
	f.hasReceivedData = true

	f.SetWeight(weight)
}

func (f *Felicita) forceBuzzerSetting() {
	if !f.hasReceivedData && f.forceBuzzerSettingOnConnect != "" {
		if f.isBuzzingOnTouch && f.forceBuzzerSettingOnConnect == BuzzerSettingOff ||
			!f.isBuzzingOnTouch && f.forceBuzzerSettingOnConnect == BuzzerSettingOn {
			if err := f.ToggleBuzzingOnTouch(); err != nil {
				f.logger.Warnf("failed to force buzzer setting to `%s`: %s", f.forceBuzzerSettingOnConnect, err)
			}
		}
	}
}

////////////////////////////////////////////////////////////////////////////////

func parseWeight(data []byte) (float64, error) {
	if len(data) < minFrameLen {
		return 0, fmt.Errorf("frame too short (%d bytes)", len(data))
	}
	if data[0] != 0x01 || data[1] != 0x02 {
		return 0, fmt.Errorf("unexpected frame header %#x %#x", data[0], data[1])
	}

	digits := string(data[3:9])
	for _, d := range digits {
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("invalid weight digits `%s`", digits)
		}
	}
	val, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("invalid weight digits `%s`: %w", digits, err)
	}

	weight := float64(val) / 100.
	if data[2] == '-' {
		weight = -weight
	}

	return weight, nil
}

func parseUnit(data []byte) scale.Unit {
	if len(data) < 2 {
		return scale.UnitUnknown
	}

	unit := strings.ToLower(string(data[:2]))
	if strings.Contains(unit, "oz") {
		return scale.UnitOz
	}
	if strings.Contains(unit, "g") {
		return scale.UnitGrams
	}

	return scale.UnitUnknown
}

func parseBatteryLevel(data byte) int {
	level := int(math.Trunc((float64(data) - minBatteryLevel) / (maxBatteryLevel - minBatteryLevel) * 100.))
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}

	return level
}

func parseSignalFlag(data byte) bool {
	return data == signalFlagOn
}
