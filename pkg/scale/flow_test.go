package scale

import (
	"math"
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"gotest.tools/v3/assert"
)

const epsilon = 1e-9

func inDelta(x, y float64) bool {
	return math.Abs(x-y) < epsilon
}

func TestFlowHistoryBoundaries(t *testing.T) {
	start := time.Unix(1000, 0)

	for _, c := range []struct {
		dt       time.Duration
		accepted bool
	}{
		{10 * time.Millisecond, false},
		{11 * time.Millisecond, true},
		{500 * time.Millisecond, true},
		{999 * time.Millisecond, true},
		{time.Second, false},
		{2 * time.Second, false},
		{0, false},
		{-100 * time.Millisecond, false},
	} {
		var h FlowHistory
		_, ok := h.Update(10., start)
		assert.Assert(t, !ok, "first reading unexpectedly produced a sample")

		_, ok = h.Update(12., start.Add(c.dt))
		assert.Equal(t, ok, c.accepted, "dt=%v", c.dt)
		assert.Equal(t, h.Len() == 1, c.accepted, "dt=%v", c.dt)
	}
}

func TestFlowHistoryWindow(t *testing.T) {
	var h FlowHistory
	ts := time.Unix(1000, 0)

	// Ten readings with 1g per 100ms, i.e. 10 g/s
	var rate float64
	for i := 0; i < 10; i++ {
		rate, _ = h.Update(float64(i), ts)
		ts = ts.Add(100 * time.Millisecond)
	}
	assert.Equal(t, h.Len(), FlowHistorySize)
	assert.Assert(t, inDelta(rate, 10.), "have %v", rate)

	// A single jump only contributes one fifth to the mean
	rate, _ = h.Update(14., ts)
	assert.Assert(t, inDelta(rate, (4*10.+50.)/5.), "have %v", rate)

	// Idle gaps are skipped, the mean is retained
	ts = ts.Add(5 * time.Second)
	rate2, ok := h.Update(14., ts)
	assert.Assert(t, !ok)
	assert.Equal(t, rate2, rate)
}

func TestBaseSetWeight(t *testing.T) {
	m := loop.NewManual(time.Unix(1000, 0))
	b := NewBase(TypeFelicita, m, nil)

	var points DataPoints
	b.SetDataHandler(func(data DataPoint) {
		points = append(points, data)
	})
	dataChan := make(chan DataPoint, 1)
	b.SetDataChannel(dataChan)

	b.SetWeight(1.)
	m.Advance(200 * time.Millisecond)
	b.SetWeight(2.)
	m.Advance(200 * time.Millisecond)
	b.SetWeight(3.)

	assert.Equal(t, len(points), 3)
	assert.Assert(t, inDelta(b.FlowRate(), 5.), "have %v", b.FlowRate())
	assert.Assert(t, inDelta(points[2].FlowRate, 5.), "have %v", points[2].FlowRate)
	assert.Equal(t, b.Weight(), 3.)
	assert.Equal(t, points[2].Value(), 3.)
	assert.Equal(t, points[0].BatteryLevel, -1)

	// The channel is non-blocking, only the first point was buffered
	dp := <-dataChan
	assert.Equal(t, dp.Weight, 1.)
}

func TestBaseStates(t *testing.T) {
	b := NewBase(TypeBookoo, loop.NewManual(time.Unix(0, 0)), nil)

	var states []State
	b.SetStateChangeHandler(func(status ConnectionStatus) {
		states = append(states, status.State)
	})

	b.SetState(StateConnecting, nil)
	b.SetState(StateConnecting, nil)
	b.SetConnected(true)
	b.SetState(StateFailed, ErrNotResponding)
	b.SetConnected(false)

	assert.DeepEqual(t, states, []State{StateConnecting, StateConnected, StateFailed})
	assert.Equal(t, b.ConnectionStatus().Error, ErrNotResponding)
	assert.Equal(t, b.Type().String(), "bookoo")
	assert.Equal(t, StateHandshaking.String(), "handshaking")
}

func TestParseType(t *testing.T) {
	for _, typ := range Types() {
		assert.Equal(t, ParseType(typ.String()), typ)
	}
	assert.Equal(t, ParseType("ACAIAPYXIS"), TypeAcaiaPyxis)
	assert.Equal(t, ParseType("nonexistent"), TypeUnknown)
}
