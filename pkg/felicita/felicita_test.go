package felicita

import (
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/mock"
	"github.com/fako1024/de1ble/pkg/scale"
)

func frame(sign byte, digits string, unit string, buzzer, battery byte) []byte {
	res := []byte{0x01, 0x02, sign}
	res = append(res, digits...)
	res = append(res, unit...)
	res = append(res, 0x00, 0x00, 0x00, buzzer, battery, 0x00, 0x0D)
	return res
}

func TestInit(t *testing.T) {
	f := New(nil, loop.NewManual(time.Unix(0, 0)))
	if err := f.Connect(scale.Identity{Address: "AA:BB"}); err != scale.ErrNoTransport {
		t.Fatalf("connection without transport unexpectedly succeeded: %v", err)
	}
	if f.Type() != scale.TypeFelicita || f.BatteryLevel() != -1 {
		t.Fatalf("unexpected initial state: %v / %d", f.Type(), f.BatteryLevel())
	}
}

func TestParseWeight(t *testing.T) {
	for _, c := range []struct {
		in       []byte
		expected float64
		valid    bool
	}{
		{frame('+', "001234", "g ", 0, 150), 12.34, true},
		{frame('-', "000050", "g ", 0, 150), -0.5, true},
		{[]byte{0x01, 0x02, '+', '0', '1', '0', '0', '0', '0'}, 100., true},
		{[]byte{0x01, 0x02, '+', '0', '1', '0', '0', '0'}, 0, false},
		{[]byte{0x02, 0x02, '+', '0', '1', '0', '0', '0', '0'}, 0, false},
		{[]byte{0x01, 0x02, '+', '0', '1', 'x', '0', '0', '0'}, 0, false},
	} {
		weight, err := parseWeight(c.in)
		if (err == nil) != c.valid {
			t.Fatalf("unexpected validity for %v: %v", c.in, err)
		}
		if c.valid && weight != c.expected {
			t.Fatalf("unexpected weight: want %v, have %v", c.expected, weight)
		}
	}
}

func TestParseBatteryLevel(t *testing.T) {
	for _, c := range []struct {
		in       byte
		expected int
	}{
		{0, 0},
		{129, 0},
		{143, 48},
		{158, 100},
		{200, 100},
	} {
		if level := parseBatteryLevel(c.in); level != c.expected {
			t.Fatalf("unexpected battery level for %d: want %d, have %d", c.in, c.expected, level)
		}
	}
}

func TestReceiveData(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	tr := mock.NewTransport(sched, mock.WithService(dataService, dataCharacteristic))
	f := New(tr, sched, WithBuzzerSetting(BuzzerSettingOff))

	var points scale.DataPoints
	f.SetDataHandler(func(data scale.DataPoint) {
		points = append(points, data)
	})

	if err := f.Connect(scale.Identity{Address: "AA:BB", Name: "FELICITA"}); err != nil {
		t.Fatal(err)
	}
	if !f.IsConnected() {
		t.Fatalf("scale not connected after subscription")
	}

	tr.Notify(dataCharacteristic, frame('+', "001800", "oz", signalFlagOn, 158))
	tr.Notify(dataCharacteristic, []byte{0xFF})
	if len(points) != 1 || points[0].Weight != 18. || points[0].Unit != scale.UnitOz {
		t.Fatalf("unexpected data points: %v", points)
	}
	if f.BatteryLevel() != 100 || !f.IsBuzzingOnTouch() {
		t.Fatalf("unexpected battery / buzzer state: %d / %v", f.BatteryLevel(), f.IsBuzzingOnTouch())
	}

	// The buzzer was on although forced off, so exactly one toggle is expected
	writes := tr.WritesTo(dataCharacteristic)
	if len(writes) != 1 || writes[0][0] != cmdToggleBuzzer {
		t.Fatalf("unexpected writes: %v", writes)
	}

	if err := f.Tare(); err != nil {
		t.Fatal(err)
	}
	if err := f.StartTimer(); err != nil {
		t.Fatal(err)
	}
	writes = tr.WritesTo(dataCharacteristic)
	if writes[1][0] != cmdTare || writes[2][0] != cmdStartTimer {
		t.Fatalf("unexpected writes: %v", writes)
	}
}

func TestBuzz(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	tr := mock.NewTransport(sched, mock.WithService(dataService, dataCharacteristic))
	f := New(tr, sched)

	var b scale.Buzzer = f
	if err := f.Connect(scale.Identity{Address: "AA:BB", Name: "FELICITA"}); err != nil {
		t.Fatal(err)
	}

	// Buzzer currently on: off, on (beep), off, on (beep + restore)
	tr.Notify(dataCharacteristic, frame('+', "000000", "g ", signalFlagOn, 150))
	if err := b.Buzz(2); err != nil {
		t.Fatal(err)
	}
	if err := b.Buzz(1); err != errBuzzing {
		t.Fatalf("concurrent buzzer sequence not rejected: %v", err)
	}

	report := func(on bool) {
		flag := byte(0)
		if on {
			flag = signalFlagOn
		}
		tr.Notify(dataCharacteristic, frame('+', "000000", "g ", flag, 150))
		sched.Advance(btSettleDelay)
	}

	toggles := func() int {
		return len(tr.WritesTo(dataCharacteristic))
	}

	// No progress until the scale reports the requested state
	sched.Advance(5 * btSettleDelay)
	if toggles() != 1 {
		t.Fatalf("unexpected number of toggles: %d", toggles())
	}
	for i, state := range []bool{false, true, false, true} {
		report(state)
		if expected := min(i+2, 4); toggles() != expected {
			t.Fatalf("unexpected number of toggles after step %d: want %d, have %d", i, expected, toggles())
		}
	}
	if !b.IsBuzzingOnTouch() || sched.Pending() != 0 {
		t.Fatalf("buzzer state not restored: %v / %d", b.IsBuzzingOnTouch(), sched.Pending())
	}

	// A buzzer that never settles aborts the sequence with an error
	var errs []error
	f.SetErrorHandler(func(err error) {
		errs = append(errs, err)
	})
	report(false)
	if err := b.Buzz(1); err != nil {
		t.Fatal(err)
	}
	sched.Advance(btSettleRetries * btSettleDelay)
	if len(errs) != 1 || sched.Pending() != 0 {
		t.Fatalf("unexpected errors / pending timers: %v / %d", errs, sched.Pending())
	}
	if err := b.Buzz(0); err == nil {
		t.Fatal("invalid number of beeps accepted")
	}
}
