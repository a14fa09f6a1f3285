// Package scanner implements the discovery of DE1 machines and supported scales,
// including automatic rescanning and the direct wake-up of a saved scale
package scanner

import (
	"errors"
	"strings"
	"time"

	"github.com/deckarep/golang-set/v2"
	"github.com/fako1024/de1ble/pkg/factory"
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
)

const (

	// DefaultScanTimeout denotes the default duration of a single discovery cycle
	DefaultScanTimeout = 30 * time.Second

	// DefaultRescanDelay denotes the default pause before an automatic rescan
	DefaultRescanDelay = 5 * time.Second

	// DefaultDirectConnectTimeout denotes the default time a saved scale has to connect
	// after a direct connection attempt
	DefaultDirectConnectTimeout = 20 * time.Second

	de1NamePrefix = "DE1"
)

// DE1Service denotes the primary service advertised by DE1 machines
var DE1Service = transport.UUID16(0xA000)

// Device denotes a discovered peripheral
type Device struct {
	Address string
	Name    string
	Type    scale.Type
}

// Scanner denotes a BLE device scanner. It is not safe for concurrent use and must
// only be accessed from the control loop
type Scanner struct {
	discoverer transport.Discoverer
	timers     *scale.Timers
	logger     scale.Logger

	scanTimeout          time.Duration
	rescanDelay          time.Duration
	directConnectTimeout time.Duration
	autoRescan           bool

	scanning         bool
	autoScan         bool
	gen              int
	scaleConnected   bool
	connectionFailed bool

	seen   mapset.Set[string]
	de1s   []Device
	scales []Device

	savedAddress string
	savedType    scale.Type

	rescanTimer loop.Timer
	directTimer loop.Timer

	de1Handler              func(dev Device)
	scaleHandler            func(dev Device, t scale.Type)
	errorHandler            func(msg string)
	scanningHandler         func(scanning bool)
	connectionFailedHandler func(failed bool)
}

// New instantiates a new Scanner, executing functional options, if any
func New(discoverer transport.Discoverer, sched loop.Scheduler, options ...func(*Scanner)) *Scanner {
	s := &Scanner{
		discoverer:           discoverer,
		timers:               scale.NewTimers(sched),
		logger:               &scale.NullLogger{},
		scanTimeout:          DefaultScanTimeout,
		rescanDelay:          DefaultRescanDelay,
		directConnectTimeout: DefaultDirectConnectTimeout,
		seen:                 mapset.NewThreadUnsafeSet[string](),
	}
	for _, option := range options {
		option(s)
	}

	return s
}

// WithLogger sets the logger
func WithLogger(logger scale.Logger) func(*Scanner) {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// WithScanTimeout sets the duration of a single discovery cycle
func WithScanTimeout(timeout time.Duration) func(*Scanner) {
	return func(s *Scanner) {
		s.scanTimeout = timeout
	}
}

// WithRescanDelay sets the pause before an automatic rescan
func WithRescanDelay(delay time.Duration) func(*Scanner) {
	return func(s *Scanner) {
		s.rescanDelay = delay
	}
}

// WithDirectConnectTimeout sets the time a saved scale has to connect after a direct
// connection attempt
func WithDirectConnectTimeout(timeout time.Duration) func(*Scanner) {
	return func(s *Scanner) {
		s.directConnectTimeout = timeout
	}
}

// WithAutoRescan enables automatic rescanning while no scale is connected
func WithAutoRescan(enabled bool) func(*Scanner) {
	return func(s *Scanner) {
		s.autoRescan = enabled
	}
}

// SetDE1Handler defines a handler function that is called upon discovery of a DE1
func (s *Scanner) SetDE1Handler(fn func(dev Device)) {
	s.de1Handler = fn
}

// SetScaleHandler defines a handler function that is called upon discovery of a scale
func (s *Scanner) SetScaleHandler(fn func(dev Device, t scale.Type)) {
	s.scaleHandler = fn
}

// SetErrorHandler defines a handler function that is called upon scan errors
func (s *Scanner) SetErrorHandler(fn func(msg string)) {
	s.errorHandler = fn
}

// SetScanningHandler defines a handler function that is called when scanning starts / stops
func (s *Scanner) SetScanningHandler(fn func(scanning bool)) {
	s.scanningHandler = fn
}

// SetConnectionFailedHandler defines a handler function that is called when a direct
// connection attempt fails (or the failure is cleared)
func (s *Scanner) SetConnectionFailedHandler(fn func(failed bool)) {
	s.connectionFailedHandler = fn
}

// SetAutoRescan enables / disables automatic rescanning
func (s *Scanner) SetAutoRescan(enabled bool) {
	s.autoRescan = enabled
	if !enabled {
		s.cancelRescan()
	}
}

// IsScanning returns if a discovery cycle is running
func (s *Scanner) IsScanning() bool {
	return s.scanning
}

// ConnectionFailed returns if the last direct connection attempt timed out
func (s *Scanner) ConnectionFailed() bool {
	return s.connectionFailed
}

// StartScan starts a single, time bounded discovery cycle
func (s *Scanner) StartScan() error {
	return s.startScan(false)
}

// StopScan aborts a running discovery cycle
func (s *Scanner) StopScan() error {
	s.cancelRescan()
	if !s.scanning {
		return nil
	}

	s.gen++
	s.setScanning(false)

	return s.discoverer.StopDiscovery()
}

// ClearDevices discards all discovered devices
func (s *Scanner) ClearDevices() {
	s.seen.Clear()
	s.de1s = nil
	s.scales = nil
}

// DiscoveredDE1s returns all DE1 machines discovered during the current session
func (s *Scanner) DiscoveredDE1s() []Device {
	return append([]Device(nil), s.de1s...)
}

// DiscoveredScales returns all scales discovered during the current session
func (s *Scanner) DiscoveredScales() []Device {
	return append([]Device(nil), s.scales...)
}

// ScaleType returns the type of a discovered scale (TypeUnknown if not discovered)
func (s *Scanner) ScaleType(address string) scale.Type {
	address = transport.NormalizeAddress(address)
	for _, dev := range s.scales {
		if dev.Address == address {
			return dev.Type
		}
	}

	return scale.TypeUnknown
}

// SetSavedScale defines the scale to connect to without a prior advertisement
func (s *Scanner) SetSavedScale(address string, typeName string) {
	s.savedAddress = transport.NormalizeAddress(address)
	s.savedType = scale.ParseType(typeName)
}

// TryDirectConnect reports the saved scale as discovered (it might be asleep and
// not advertising) and arms the connection timeout. It returns false if no valid
// scale is saved
func (s *Scanner) TryDirectConnect() bool {
	if s.savedAddress == "" || s.savedType == scale.TypeUnknown {
		return false
	}

	s.logger.Debugf("trying direct connection to saved %s scale `%s`", s.savedType, s.savedAddress)
	s.setConnectionFailed(false)

	if s.directTimer != nil {
		s.directTimer.Stop()
	}
	s.directTimer = s.timers.After(s.directConnectTimeout, func() {
		s.directTimer = nil
		if !s.scaleConnected {
			s.logger.Warnf("saved scale `%s` did not connect within %v", s.savedAddress, s.directConnectTimeout)
			s.setConnectionFailed(true)
		}
	})

	s.addScale(Device{
		Address: s.savedAddress,
		Type:    s.savedType,
	}, true)

	return true
}

// ScaleConnectionChanged informs the scanner about the connection state of the current scale
func (s *Scanner) ScaleConnectionChanged(connected bool) {
	s.scaleConnected = connected
	if !connected {
		return
	}

	s.cancelRescan()
	if s.directTimer != nil {
		s.directTimer.Stop()
		s.directTimer = nil
	}
	s.setConnectionFailed(false)

	if s.scanning && s.autoScan {
		s.logger.Debug("scale connected, stopping automatic scan")
		if err := s.StopScan(); err != nil {
			s.logger.Warnf("failed to stop scan: %s", err)
		}
	}
}

// IsDE1 returns if an advertisement belongs to a DE1 machine
func IsDE1(adv transport.Advertisement) bool {
	if strings.HasPrefix(strings.ToUpper(adv.Name), de1NamePrefix) {
		return true
	}

	return adv.HasService(DE1Service)
}

// ErrorMessage maps a discovery error to a human-readable message
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, transport.ErrPoweredOff):
		return "Bluetooth is powered off"
	case errors.Is(err, transport.ErrIO):
		return "Bluetooth I/O error"
	case errors.Is(err, transport.ErrInvalidAdapter):
		return "Invalid Bluetooth adapter"
	case errors.Is(err, transport.ErrUnsupportedPlatform):
		return "Platform does not support Bluetooth LE"
	case errors.Is(err, transport.ErrUnsupportedDiscovery):
		return "Unsupported discovery method"
	case errors.Is(err, transport.ErrLocationOff):
		return "Location services are turned off"
	}

	return "Unknown Bluetooth error"
}

////////////////////////////////////////////////////////////////////////////////

func (s *Scanner) startScan(auto bool) error {
	if s.scanning {
		return nil
	}

	s.cancelRescan()
	s.ClearDevices()

	s.gen++
	gen := s.gen
	if err := s.discoverer.StartDiscovery(s.scanTimeout, func(adv transport.Advertisement) {
		if gen == s.gen {
			s.onFound(adv)
		}
	}, func(err error) {
		if gen == s.gen {
			s.onFinished(err)
		}
	}); err != nil {
		s.emitError(err)
		return err
	}

	s.autoScan = auto
	s.setScanning(true)

	return nil
}

func (s *Scanner) onFound(adv transport.Advertisement) {
	address := transport.NormalizeAddress(adv.Address)
	if address == "" || s.seen.Contains(address) {
		return
	}

	if IsDE1(adv) {
		s.seen.Add(address)
		dev := Device{
			Address: address,
			Name:    adv.Name,
		}
		s.de1s = append(s.de1s, dev)
		if s.de1Handler != nil {
			s.de1Handler(dev)
		}
		return
	}

	t := factory.DetectType(adv.Name, adv.Services)
	if t == scale.TypeUnknown {
		return
	}

	s.addScale(Device{
		Address: address,
		Name:    adv.Name,
		Type:    t,
	}, false)
}

func (s *Scanner) addScale(dev Device, force bool) {
	if s.seen.Contains(dev.Address) && !force {
		return
	}
	if !s.seen.Contains(dev.Address) {
		s.seen.Add(dev.Address)
		s.scales = append(s.scales, dev)
	}

	s.logger.Debugf("discovered %s scale `%s` (%s)", dev.Type, dev.Name, dev.Address)
	if s.scaleHandler != nil {
		s.scaleHandler(dev, dev.Type)
	}
}

func (s *Scanner) onFinished(err error) {
	s.setScanning(false)
	s.autoScan = false
	if err != nil {
		s.emitError(err)
		return
	}

	if s.autoRescan && !s.scaleConnected {
		s.logger.Debugf("no scale connected, rescanning in %v", s.rescanDelay)
		s.rescanTimer = s.timers.After(s.rescanDelay, func() {
			s.rescanTimer = nil
			if s.scaleConnected {
				return
			}
			if err := s.startScan(true); err != nil {
				s.logger.Warnf("failed to restart scan: %s", err)
			}
		})
	}
}

func (s *Scanner) cancelRescan() {
	if s.rescanTimer != nil {
		s.rescanTimer.Stop()
		s.rescanTimer = nil
	}
}

func (s *Scanner) setScanning(scanning bool) {
	if s.scanning == scanning {
		return
	}

	s.scanning = scanning
	if s.scanningHandler != nil {
		s.scanningHandler(scanning)
	}
}

func (s *Scanner) setConnectionFailed(failed bool) {
	if s.connectionFailed == failed {
		return
	}

	s.connectionFailed = failed
	if s.connectionFailedHandler != nil {
		s.connectionFailedHandler(failed)
	}
}

func (s *Scanner) emitError(err error) {
	msg := ErrorMessage(err)
	s.logger.Warnf("scan error: %s (%s)", msg, err)
	if s.errorHandler != nil {
		s.errorHandler(msg)
	}
}
