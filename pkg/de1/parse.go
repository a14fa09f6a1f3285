package de1

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var tclPair = regexp.MustCompile(`(\w+)\s+(?:"([^"]*)"|(\S+))`)

// ParseFrameJSON parses a frame from its JSON representation. Absent fields
// keep the machine defaults
func ParseFrameJSON(data []byte) (Frame, error) {
	f := NewFrame()
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to parse frame: %w", err)
	}

	return f, nil
}

// ParseTclFrame parses a frame from a Tcl list of key / value pairs,
// e.g. `{exit_if 1 flow 2.0 name "preinfusion" pump pressure seconds 10}`
func ParseTclFrame(list string) (Frame, error) {
	f := NewFrame()

	list = strings.TrimSpace(list)
	if strings.HasPrefix(list, "{") && strings.HasSuffix(list, "}") {
		list = list[1 : len(list)-1]
	}

	for _, m := range tclPair.FindAllStringSubmatch(list, -1) {
		key, value := m[1], m[2]
		if value == "" {
			value = m[3]
		}

		if err := f.set(key, value); err != nil {
			return Frame{}, fmt.Errorf("failed to parse frame field `%s`: %w", key, err)
		}
	}

	return f, nil
}

func (f *Frame) set(key, value string) (err error) {
	switch key {
	case "name":
		f.Name = value
	case "sensor":
		f.Sensor = Sensor(value)
	case "pump":
		f.Pump = Pump(value)
	case "transition":
		f.Transition = TransitionFast
		if value == "smooth" || value == "slow" {
			f.Transition = TransitionSmooth
		}
	case "exit_if":
		f.ExitIf = value == "1" || value == "true"
	case "exit_type":
		f.ExitType = ExitType(value)
	case "temperature":
		f.Temperature, err = strconv.ParseFloat(value, 64)
	case "pressure":
		f.Pressure, err = strconv.ParseFloat(value, 64)
	case "flow":
		f.Flow, err = strconv.ParseFloat(value, 64)
	case "seconds":
		f.Seconds, err = strconv.ParseFloat(value, 64)
	case "volume":
		f.Volume, err = strconv.ParseFloat(value, 64)
	case "exit_pressure_over":
		f.ExitPressureOver, err = strconv.ParseFloat(value, 64)
	case "exit_pressure_under":
		f.ExitPressureUnder, err = strconv.ParseFloat(value, 64)
	case "exit_flow_over":
		f.ExitFlowOver, err = strconv.ParseFloat(value, 64)
	case "exit_flow_under":
		f.ExitFlowUnder, err = strconv.ParseFloat(value, 64)
	case "max_flow_or_pressure":
		f.MaxFlowOrPressure, err = strconv.ParseFloat(value, 64)
	case "max_flow_or_pressure_range":
		f.MaxFlowOrPressureRange, err = strconv.ParseFloat(value, 64)
	}

	// Unknown keys (e.g. the per-step weight) are ignored
	return
}
