package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fako1024/de1ble/cmd/internal/ble"
	"github.com/fako1024/de1ble/pkg/config"
	"github.com/fako1024/de1ble/pkg/factory"
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
)

type options struct {
	address  string
	typeName string
	backend  string
	timeout  time.Duration
	debug    bool

	tare  bool
	start bool
	stop  bool
	reset bool
	sleep bool
	wake  bool

	togglePrecision bool
	toggleBuzzer    bool
}

// precisionToggler denotes scales supporting an on-device precision toggle (e.g. Felicita)
type precisionToggler interface {
	TogglePrecision() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run() (err error) {

	// Parse command line options
	var opts options
	flag.StringVar(&opts.address, "addr", "", "Address of remote peripheral")
	flag.StringVar(&opts.typeName, "type", "", "Scale type (e.g. decent, acaia, felicita)")
	flag.StringVar(&opts.backend, "backend", config.BackendGATT, "Bluetooth backend (gatt or tinygo)")
	flag.DurationVar(&opts.timeout, "timeout", 20*time.Second, "Connection timeout")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	flag.BoolVar(&opts.tare, "tare", false, "Tare the scale")
	flag.BoolVar(&opts.start, "start", false, "Start the timer")
	flag.BoolVar(&opts.stop, "stop", false, "Stop the timer")
	flag.BoolVar(&opts.reset, "reset", false, "Reset the timer")
	flag.BoolVar(&opts.sleep, "sleep", false, "Put the scale into standby")
	flag.BoolVar(&opts.wake, "wake", false, "Wake the scale from standby")
	flag.BoolVar(&opts.togglePrecision, "p", false, "Toggle the scale precision")
	flag.BoolVar(&opts.toggleBuzzer, "b", false, "Toggle the buzzer on touch / action feature")
	flag.Parse()

	if opts.address == "" || opts.typeName == "" {
		return fmt.Errorf("both -addr and -type are required")
	}

	logger, err := scale.NewDefaultLogger(opts.debug)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l := loop.New()
	defer l.Close()
	go func() {
		if err := l.Run(context.Background()); err != nil {
			logger.Errorf("control loop terminated: %s", err)
		}
	}()

	backend, err := ble.New(opts.backend, l, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize bluetooth backend: %w", err)
	}
	f := &factory.Factory{
		NewTransport: backend.NewTransport,
		Scheduler:    l,
		Logger:       logger,
	}

	id := scale.Identity{
		Type:    scale.ParseType(opts.typeName),
		Address: transport.NormalizeAddress(opts.address),
	}
	s, err := f.CreateByName(id, opts.typeName)
	if err != nil {
		return err
	}

	connected := make(chan struct{})
	l.Do(func() {
		s.SetStateChangeHandler(func(status scale.ConnectionStatus) {
			logger.Debugf("scale state changed to %s", status.State)
			if status.State == scale.StateConnected {
				select {
				case <-connected:
				default:
					close(connected)
				}
			}
		})
		s.SetInfoHandler(func(msg string) {
			logger.Info(msg)
		})
		err = s.Connect(id)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to scale: %w", err)
	}
	defer func() {
		l.Do(func() {
			if derr := s.Disconnect(); derr != nil && err == nil {
				err = derr
			}
		})
	}()

	select {
	case <-connected:
	case <-time.After(opts.timeout):
		return fmt.Errorf("timed out connecting to `%s`", opts.address)
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, cmd := range commands(opts) {
		l.Do(func() {
			err = cmd.fn(s)
		})
		if err != nil {
			return fmt.Errorf("failed to %s: %w", cmd.name, err)
		}
		logger.Infof("%s: done", cmd.name)
	}

	return nil
}

type command struct {
	name string
	fn   func(s scale.Scale) error
}

func commands(opts options) (cmds []command) {
	add := func(enabled bool, name string, fn func(s scale.Scale) error) {
		if enabled {
			cmds = append(cmds, command{name: name, fn: fn})
		}
	}

	add(opts.wake, "wake scale", func(s scale.Scale) error { return s.Wake() })
	add(opts.tare, "tare scale", func(s scale.Scale) error { return s.Tare() })
	add(opts.reset, "reset timer", func(s scale.Scale) error { return s.ResetTimer() })
	add(opts.start, "start timer", func(s scale.Scale) error { return s.StartTimer() })
	add(opts.stop, "stop timer", func(s scale.Scale) error { return s.StopTimer() })
	add(opts.togglePrecision, "toggle scale precision", func(s scale.Scale) error {
		if t, ok := s.(precisionToggler); ok {
			return t.TogglePrecision()
		}
		return scale.ErrUnsupported
	})
	add(opts.toggleBuzzer, "toggle buzzer on touch / action", func(s scale.Scale) error {
		if b, ok := s.(scale.Buzzer); ok {
			return b.ToggleBuzzingOnTouch()
		}
		return scale.ErrUnsupported
	})
	add(opts.sleep, "put scale to sleep", func(s scale.Scale) error { return s.Sleep() })

	return
}
