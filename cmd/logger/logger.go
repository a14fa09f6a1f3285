package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fako1024/de1ble/cmd/internal/ble"
	"github.com/fako1024/de1ble/pkg/api"
	"github.com/fako1024/de1ble/pkg/config"
	"github.com/fako1024/de1ble/pkg/factory"
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/scanner"
	"github.com/fako1024/de1ble/pkg/shot"
	"github.com/fako1024/de1ble/pkg/slot"
	"go.uber.org/zap"
)

type flags struct {
	configPath string
	backend    string
	listen     string
	target     float64
	debug      bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run() error {

	// Parse command line options
	var opts flags
	flag.StringVar(&opts.configPath, "config", config.DefaultPath(), "path to config file")
	flag.StringVar(&opts.backend, "backend", "", "bluetooth backend (gatt or tinygo), overrides config")
	flag.StringVar(&opts.listen, "api", "", "serve the REST API on this address, overrides config")
	flag.Float64Var(&opts.target, "target", 0, "target weight of a shot (0: no stop-on-weight), overrides config")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, err := scale.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := loop.New()
	backend, err := ble.New(cfg.Backend, l, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize bluetooth backend: %w", err)
	}

	f := &factory.Factory{
		NewTransport: backend.NewTransport,
		Scheduler:    l,
		Logger:       logger,
	}

	sc := scanner.New(backend, l,
		scanner.WithLogger(scale.Named(logger, "scanner")),
		scanner.WithScanTimeout(cfg.Scan.Timeout),
		scanner.WithRescanDelay(cfg.Scan.RescanDelay),
		scanner.WithDirectConnectTimeout(cfg.Scan.DirectConnectTimeout),
		scanner.WithAutoRescan(cfg.Scan.AutoRescan),
	)

	var monitor *shot.Monitor
	if cfg.Shot.TargetWeight > 0 {
		if monitor, err = shot.New(nil, cfg.Shot.TargetWeight, shot.WithLogger(logger)); err != nil {
			return err
		}
		monitor.SetReachedHandler(func(weight float64) {
			logger.Infow("target weight reached", "weight", weight, "target", cfg.Shot.TargetWeight)
		})
	}

	sl := slot.New(f.Create,
		slot.WithLogger(logger),
		slot.WithConnectionHandler(func(connected bool) {
			sc.ScaleConnectionChanged(connected)
			if connected && monitor != nil {
				if err := monitor.Start(); err != nil {
					logger.Warnf("failed to start shot: %s", err)
				}
			}
		}),
		slot.WithChangeHandler(func(s scale.Scale) {
			if monitor != nil {
				monitor.SetScale(s)
			}
		}),
		slot.WithSaveHandler(func(address, typeName string) {
			cfg.SetSavedScale(address, typeName)
			if err := cfg.Save(opts.configPath); err != nil {
				logger.Warnf("failed to save scale to config: %s", err)
			}
		}),
		slot.WithDataHandler(func(data scale.DataPoint) {
			logger.Infow("data", "weight", data.Weight, "flow", data.FlowRate, "battery", data.BatteryLevel)
			if monitor != nil {
				monitor.HandleData(data)
			}
		}),
	)

	sc.SetScaleHandler(func(dev scanner.Device, t scale.Type) {
		if _, err := sl.Offer(scale.Identity{Type: t, Address: dev.Address, Name: dev.Name}); err != nil {
			logger.Warnf("failed to connect scale `%s`: %s", dev.Address, err)
		}
	})
	sc.SetDE1Handler(func(dev scanner.Device) {
		logger.Infow("discovered DE1", "name", dev.Name, "address", dev.Address)
	})
	sc.SetErrorHandler(func(msg string) {
		logger.Warnf("scan error: %s", msg)
	})
	sc.SetConnectionFailedHandler(func(failed bool) {
		if failed {
			logger.Warnf("saved scale `%s` did not connect", cfg.Scale.Address)
		}
	})

	l.Post(func() {
		if cfg.Scale.Address != "" {
			sc.SetSavedScale(cfg.Scale.Address, cfg.Scale.Type)
			sc.TryDirectConnect()
		}
		if err := sc.StartScan(); err != nil {
			logger.Warnf("failed to start scan: %s", scanner.ErrorMessage(err))
		}
	})

	if cfg.API.Listen != "" {
		srv := api.New(l, sl, sc)
		go func() {
			if err := srv.Listen(cfg.API.Listen); err != nil {
				logger.Errorf("failed to serve API: %s", err)
				stop()
			}
		}()
		defer func() {
			if err := srv.Shutdown(); err != nil {
				logger.Warnf("failed to shut down API: %s", err)
			}
		}()
	}

	err = l.Run(ctx)
	logger.Info("terminating connection to device")
	sl.Release()
	l.Close()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func loadConfig(opts flags) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = config.Default()
	}

	if opts.backend != "" {
		cfg.Backend = opts.backend
	}
	if opts.listen != "" {
		cfg.API.Listen = opts.listen
	}
	if opts.target > 0 {
		cfg.Shot.TargetWeight = opts.target
	}
	if opts.debug {
		cfg.LogLevel = zap.DebugLevel.String()
	}

	return cfg, cfg.Validate()
}
