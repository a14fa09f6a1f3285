package scanner

import (
	"fmt"
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/felicita"
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/mock"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
	"gotest.tools/v3/assert"
)

type recorder struct {
	de1s     []Device
	scales   []Device
	errors   []string
	scanning []bool
	failed   []bool
}

func newTestScanner(t *testing.T, options ...func(*Scanner)) (*Scanner, *mock.Discoverer, *loop.Manual, *recorder) {
	t.Helper()

	sched := loop.NewManual(time.Unix(0, 0))
	d := mock.NewDiscoverer(sched)
	s := New(d, sched, options...)

	rec := new(recorder)
	s.SetDE1Handler(func(dev Device) {
		rec.de1s = append(rec.de1s, dev)
	})
	s.SetScaleHandler(func(dev Device, _ scale.Type) {
		rec.scales = append(rec.scales, dev)
	})
	s.SetErrorHandler(func(msg string) {
		rec.errors = append(rec.errors, msg)
	})
	s.SetScanningHandler(func(scanning bool) {
		rec.scanning = append(rec.scanning, scanning)
	})
	s.SetConnectionFailedHandler(func(failed bool) {
		rec.failed = append(rec.failed, failed)
	})

	return s, d, sched, rec
}

func TestScanClassification(t *testing.T) {
	s, d, _, rec := newTestScanner(t)

	assert.NilError(t, s.StartScan())
	assert.Assert(t, s.IsScanning())
	assert.DeepEqual(t, d.Timeouts(), []time.Duration{DefaultScanTimeout})

	d.Advertise(transport.Advertisement{Address: "aa:bb:cc:00:00:01", Name: "DE1"})
	d.Advertise(transport.Advertisement{Address: "aa:bb:cc:00:00:02", Name: "Lunar-123"})
	d.Advertise(transport.Advertisement{Address: "aa:bb:cc:00:00:03", Name: "My Phone"})
	d.Advertise(transport.Advertisement{Address: "aa:bb:cc:00:00:04", Services: []uuid.UUID{DE1Service}})
	d.Advertise(transport.Advertisement{Address: "aa:bb:cc:00:00:05", Services: []uuid.UUID{felicita.Service}})

	// Repeated sightings are ignored
	d.Advertise(transport.Advertisement{Address: "AA:BB:CC:00:00:02", Name: "Lunar-123"})
	d.Advertise(transport.Advertisement{Address: "aa:bb:cc:00:00:01", Name: "DE1"})

	assert.Equal(t, len(rec.de1s), 2)
	assert.Equal(t, rec.de1s[0].Address, "AA:BB:CC:00:00:01")
	assert.Equal(t, len(rec.scales), 2)
	assert.Equal(t, rec.scales[0].Type, scale.TypeAcaiaPyxis)
	assert.Equal(t, rec.scales[1].Type, scale.TypeFelicita)

	assert.Equal(t, len(s.DiscoveredDE1s()), 2)
	assert.Equal(t, len(s.DiscoveredScales()), 2)
	assert.Equal(t, s.ScaleType("aa:bb:cc:00:00:02"), scale.TypeAcaiaPyxis)
	assert.Equal(t, s.ScaleType("aa:bb:cc:00:00:03"), scale.TypeUnknown)

	d.Finish(nil)
	assert.Assert(t, !s.IsScanning())
	assert.DeepEqual(t, rec.scanning, []bool{true, false})
	assert.Equal(t, len(rec.errors), 0)
}

func TestScanRestartClearsDevices(t *testing.T) {
	s, d, _, rec := newTestScanner(t)

	assert.NilError(t, s.StartScan())
	d.Advertise(transport.Advertisement{Address: "aa:01", Name: "Skale"})
	d.Finish(nil)

	assert.NilError(t, s.StartScan())
	assert.Equal(t, len(s.DiscoveredScales()), 0)
	d.Advertise(transport.Advertisement{Address: "aa:01", Name: "Skale"})
	assert.Equal(t, len(rec.scales), 2)
	assert.Equal(t, d.Starts(), 2)
}

func TestStopScan(t *testing.T) {
	s, d, _, rec := newTestScanner(t)

	assert.NilError(t, s.StartScan())
	assert.NilError(t, s.StopScan())
	assert.Assert(t, !s.IsScanning())
	assert.Assert(t, !d.Running())
	assert.Equal(t, d.Stops(), 1)
	assert.DeepEqual(t, rec.scanning, []bool{true, false})

	// Stopping an idle scanner is a no-op
	assert.NilError(t, s.StopScan())
	assert.Equal(t, d.Stops(), 1)
}

func TestScanErrors(t *testing.T) {
	s, d, _, rec := newTestScanner(t)

	assert.NilError(t, s.StartScan())
	d.Finish(fmt.Errorf("adapter gone: %w", transport.ErrPoweredOff))
	assert.Assert(t, !s.IsScanning())
	assert.DeepEqual(t, rec.errors, []string{"Bluetooth is powered off"})

	sched := loop.NewManual(time.Unix(0, 0))
	s = New(mock.NewDiscoverer(sched, mock.WithStartError(transport.ErrLocationOff)), sched)
	var msgs []string
	s.SetErrorHandler(func(msg string) {
		msgs = append(msgs, msg)
	})
	assert.ErrorIs(t, s.StartScan(), transport.ErrLocationOff)
	assert.Assert(t, !s.IsScanning())
	assert.DeepEqual(t, msgs, []string{"Location services are turned off"})
}

func TestErrorMessage(t *testing.T) {
	for _, c := range []struct {
		err      error
		expected string
	}{
		{transport.ErrPoweredOff, "Bluetooth is powered off"},
		{transport.ErrIO, "Bluetooth I/O error"},
		{transport.ErrInvalidAdapter, "Invalid Bluetooth adapter"},
		{transport.ErrUnsupportedPlatform, "Platform does not support Bluetooth LE"},
		{transport.ErrUnsupportedDiscovery, "Unsupported discovery method"},
		{transport.ErrLocationOff, "Location services are turned off"},
		{fmt.Errorf("something else"), "Unknown Bluetooth error"},
	} {
		assert.Equal(t, ErrorMessage(c.err), c.expected)
	}
}

func TestAutoRescan(t *testing.T) {
	s, d, sched, _ := newTestScanner(t, WithAutoRescan(true), WithRescanDelay(time.Second))

	assert.NilError(t, s.StartScan())
	d.Finish(nil)
	assert.Equal(t, sched.Pending(), 1)

	sched.Advance(999 * time.Millisecond)
	assert.Equal(t, d.Starts(), 1)
	sched.Advance(time.Millisecond)
	assert.Equal(t, d.Starts(), 2)
	assert.Assert(t, s.IsScanning())

	// A connecting scale stops the automatic scan and no rescan is scheduled
	s.ScaleConnectionChanged(true)
	assert.Assert(t, !s.IsScanning())
	assert.Equal(t, sched.Pending(), 0)
	sched.Advance(time.Minute)
	assert.Equal(t, d.Starts(), 2)
}

func TestAutoRescanNotAfterError(t *testing.T) {
	s, d, sched, _ := newTestScanner(t, WithAutoRescan(true))

	assert.NilError(t, s.StartScan())
	d.Finish(transport.ErrIO)
	assert.Equal(t, sched.Pending(), 0)
}

func TestManualScanSurvivesConnection(t *testing.T) {
	s, _, _, _ := newTestScanner(t, WithAutoRescan(true))

	assert.NilError(t, s.StartScan())
	s.ScaleConnectionChanged(true)
	assert.Assert(t, s.IsScanning())
}

func TestDirectConnect(t *testing.T) {
	s, _, sched, rec := newTestScanner(t, WithDirectConnectTimeout(20*time.Second))

	assert.Assert(t, !s.TryDirectConnect())

	s.SetSavedScale("aa:bb:cc:dd:ee:ff", "kitchen")
	assert.Assert(t, !s.TryDirectConnect())

	s.SetSavedScale("aa:bb:cc:dd:ee:ff", "decent")
	assert.Assert(t, s.TryDirectConnect())
	assert.Equal(t, len(rec.scales), 1)
	assert.Equal(t, rec.scales[0].Type, scale.TypeDecent)
	assert.Equal(t, rec.scales[0].Address, "AA:BB:CC:DD:EE:FF")

	sched.Advance(20 * time.Second)
	assert.Assert(t, s.ConnectionFailed())
	assert.DeepEqual(t, rec.failed, []bool{true})

	// A new attempt clears the failure, a connection cancels the timeout
	assert.Assert(t, s.TryDirectConnect())
	assert.Assert(t, !s.ConnectionFailed())
	sched.Advance(10 * time.Second)
	s.ScaleConnectionChanged(true)
	sched.Advance(time.Minute)
	assert.Assert(t, !s.ConnectionFailed())
	assert.DeepEqual(t, rec.failed, []bool{true, false})
}
