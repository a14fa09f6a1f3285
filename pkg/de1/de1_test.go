package de1

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestEncodePressureFrame(t *testing.T) {
	f := NewFrame()
	f.Pressure = 9.0
	f.Temperature = 93.0
	f.Seconds = 25.0

	res := EncodeFrame(f, 3)
	assert.DeepEqual(t, res, [FrameLen]byte{0x03, FlagIgnoreLimit, 0x90, 0xBA, 0x99, 0x00, 0x00, 0x00})
	assert.Equal(t, res[1]&FlagCtrlF, byte(0))
	assert.Equal(t, res[1]&FlagDoCompare, byte(0))
	assert.Assert(t, !f.NeedsExtension())
}

func TestEncodeFlowFrame(t *testing.T) {
	f := NewFrame()
	f.Pump = PumpFlow
	f.Sensor = SensorWater
	f.Transition = TransitionSmooth
	f.Flow = 2.0
	f.Temperature = 90.0
	f.Seconds = 4.5
	f.Volume = 100
	f.ExitIf = true
	f.ExitType = ExitFlowOver
	f.ExitFlowOver = 3.0
	f.MaxFlowOrPressure = 6.0

	assert.DeepEqual(t, EncodeFrame(f, 1), [FrameLen]byte{0x01, 0x7F, 0x20, 0xB4, 0x2D, 0x30, 0x00, 0x64})
	assert.Assert(t, f.NeedsExtension())
	assert.DeepEqual(t, EncodeExtensionFrame(f, 1), [FrameLen]byte{33, 96, 10, 0, 0, 0, 0, 0})
}

func TestFlags(t *testing.T) {
	for _, c := range []struct {
		exitIf   bool
		exitType ExitType
		expected byte
	}{
		{false, ExitPressureOver, FlagIgnoreLimit},
		{true, ExitPressureUnder, FlagIgnoreLimit | FlagDoCompare},
		{true, ExitPressureOver, FlagIgnoreLimit | FlagDoCompare | FlagDCGT},
		{true, ExitFlowUnder, FlagIgnoreLimit | FlagDoCompare | FlagDCCompF},
		{true, ExitFlowOver, FlagIgnoreLimit | FlagDoCompare | FlagDCGT | FlagDCCompF},
		{true, "weight_over", FlagIgnoreLimit},
	} {
		f := NewFrame()
		f.ExitIf, f.ExitType = c.exitIf, c.exitType
		assert.Equal(t, f.Flags(), c.expected, string(c.exitType))
	}
}

func TestTriggerValue(t *testing.T) {
	f := NewFrame()
	f.ExitPressureOver, f.ExitPressureUnder, f.ExitFlowOver, f.ExitFlowUnder = 1, 2, 3, 4
	f.ExitType = ExitFlowOver
	assert.Equal(t, f.TriggerValue(), 0.)

	f.ExitIf = true
	assert.Equal(t, f.TriggerValue(), 3.)
	f.ExitType = ExitPressureUnder
	assert.Equal(t, f.TriggerValue(), 2.)
}

func TestEncodeClamps(t *testing.T) {
	f := NewFrame()
	f.Pressure = 20
	f.Temperature = -5
	f.Seconds = 500
	f.Volume = 5000

	assert.DeepEqual(t, EncodeFrame(f, 0), [FrameLen]byte{0x00, FlagIgnoreLimit, 0xFF, 0x00, 0xFF, 0x00, 0x03, 0xFF})
}

func TestLimiterKeepsIgnoreLimitFlag(t *testing.T) {
	f := NewFrame()
	f.MaxFlowOrPressure = 6.0

	assert.Assert(t, f.NeedsExtension())
	assert.Equal(t, EncodeFrame(f, 0)[1], FlagIgnoreLimit)
}

func TestEncodeHeaderAndTail(t *testing.T) {
	assert.DeepEqual(t, EncodeHeader(3, 1, 0, 8.0), [HeaderLen]byte{1, 3, 1, 0, 128})
	assert.DeepEqual(t, EncodeTailFrame(3), [FrameLen]byte{3})
}

func TestEncodeProfile(t *testing.T) {
	limited := NewFrame()
	limited.MaxFlowOrPressure = 4.0

	res := EncodeProfile([]Frame{NewFrame(), limited})
	assert.Equal(t, len(res), 4)
	assert.Equal(t, res[0][0], byte(0))
	assert.Equal(t, res[1][0], byte(1))
	assert.Equal(t, res[1][1], FlagIgnoreLimit)
	assert.Equal(t, res[2][0], byte(33))
	assert.DeepEqual(t, res[3], [FrameLen]byte{2})
}

func TestParseFrameJSON(t *testing.T) {
	f, err := ParseFrameJSON([]byte(`{"name":"rise","pump":"flow","flow":4.5,"exit_if":true,"exit_type":"pressure_over","exit_pressure_over":6}`))
	assert.NilError(t, err)
	assert.Equal(t, f.Name, "rise")
	assert.Equal(t, f.Pump, PumpFlow)
	assert.Equal(t, f.Flow, 4.5)
	assert.Equal(t, f.TriggerValue(), 6.)

	// Defaults are retained
	assert.Equal(t, f.Temperature, 93.)
	assert.Equal(t, f.Seconds, 30.)
	assert.Equal(t, f.Sensor, SensorCoffee)
	assert.Equal(t, f.MaxFlowOrPressureRange, 0.6)

	_, err = ParseFrameJSON([]byte(`{"name":`))
	assert.ErrorContains(t, err, "failed to parse frame")
}

func TestParseTclFrame(t *testing.T) {
	f, err := ParseTclFrame(`{exit_if 1 flow 2.0 volume 100 transition slow exit_flow_under 0.0 temperature 92.5 name "pre infusion" pressure 1.0 sensor coffee pump pressure exit_type pressure_over exit_pressure_over 1.5 seconds 10 weight 0}`)
	assert.NilError(t, err)
	assert.Equal(t, f.Name, "pre infusion")
	assert.Equal(t, f.Transition, TransitionSmooth)
	assert.Equal(t, f.Temperature, 92.5)
	assert.Equal(t, f.Pressure, 1.)
	assert.Equal(t, f.Volume, 100.)
	assert.Equal(t, f.Seconds, 10.)
	assert.Assert(t, f.ExitIf)
	assert.Equal(t, f.ExitType, ExitPressureOver)
	assert.Equal(t, f.TriggerValue(), 1.5)
	assert.Equal(t, f.Flags(), FlagIgnoreLimit|FlagInterpolate|FlagDoCompare|FlagDCGT)

	_, err = ParseTclFrame(`{pressure high}`)
	assert.ErrorContains(t, err, "pressure")
}
