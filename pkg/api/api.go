// Package api provides a REST API for the current scale and the device scanner
package api

import (
	"errors"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/scanner"
	"github.com/fako1024/de1ble/pkg/slot"
	"github.com/gofiber/fiber/v2"
)

// Status denotes the state of the current scale
type Status struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Address   string  `json:"address"`
	State     string  `json:"state"`
	Connected bool    `json:"connected"`
	Weight    float64 `json:"weight"`
	FlowRate  float64 `json:"flow_rate"`
	Battery   int     `json:"battery"`
	Elapsed   float64 `json:"elapsed"`
}

// Device denotes a discovered device
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Type    string `json:"type,omitempty"`
}

// Devices denotes all devices discovered during the current scan session
type Devices struct {
	Scanning bool     `json:"scanning"`
	DE1s     []Device `json:"de1s"`
	Scales   []Device `json:"scales"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// API denotes a REST API for the current scale. All requests are executed on the
// control loop
type API struct {
	exec    loop.Executor
	slot    *slot.Slot
	scanner *scanner.Scanner
	router  *fiber.App
}

// New instantiates a new API
func New(exec loop.Executor, sl *slot.Slot, sc *scanner.Scanner) *API {

	api := API{
		exec:    exec,
		slot:    sl,
		scanner: sc,
		router: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
	}

	// Setup routes
	api.router.Get("/scale", api.handleStatus())
	api.router.Post("/tare", api.handleCommand(func(s scale.Scale) error { return s.Tare() }))
	api.router.Post("/timer/start", api.handleCommand(func(s scale.Scale) error { return s.StartTimer() }))
	api.router.Post("/timer/stop", api.handleCommand(func(s scale.Scale) error { return s.StopTimer() }))
	api.router.Post("/timer/reset", api.handleCommand(func(s scale.Scale) error { return s.ResetTimer() }))
	api.router.Post("/buzzer/toggle", api.handleCommand(func(s scale.Scale) error {
		b, ok := s.(scale.Buzzer)
		if !ok {
			return scale.ErrUnsupported
		}
		return b.ToggleBuzzingOnTouch()
	}))
	api.router.Post("/scan", api.handleScan())
	api.router.Get("/devices", api.handleDevices())

	return &api
}

// Listen serves the API on the given endpoint until Shutdown is called
func (api *API) Listen(endpoint string) error {
	return api.router.Listen(endpoint)
}

// Shutdown gracefully stops serving the API
func (api *API) Shutdown() error {
	return api.router.Shutdown()
}

////////////////////////////////////////////////////////////////////////////////

func (api *API) handleStatus() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var (
			status Status
			found  bool
		)
		api.exec.Do(func() {
			s := api.slot.Current()
			if s == nil {
				return
			}
			found = true

			id := s.Identity()
			status = Status{
				Name:      id.Name,
				Type:      id.Type.String(),
				Address:   id.Address,
				State:     s.ConnectionStatus().State.String(),
				Connected: s.IsConnected(),
				Weight:    s.Weight(),
				FlowRate:  s.FlowRate(),
				Battery:   s.BatteryLevel(),
				Elapsed:   s.ElapsedTime().Seconds(),
			}
		})

		if !found {
			return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "no scale selected"})
		}

		return c.JSON(status)
	}
}

func (api *API) handleCommand(fn func(s scale.Scale) error) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var err error
		api.exec.Do(func() {
			s := api.slot.Current()
			if s == nil || !s.IsConnected() {
				err = scale.ErrNotConnected
				return
			}
			err = fn(s)
		})

		if err != nil {
			code := fiber.StatusInternalServerError
			switch {
			case errors.Is(err, scale.ErrNotConnected):
				code = fiber.StatusConflict
			case errors.Is(err, scale.ErrUnsupported):
				code = fiber.StatusNotImplemented
			}
			return c.Status(code).JSON(errorResponse{Error: err.Error()})
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (api *API) handleScan() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var err error
		api.exec.Do(func() {
			err = api.scanner.StartScan()
		})

		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Error: scanner.ErrorMessage(err)})
		}

		return c.SendStatus(fiber.StatusAccepted)
	}
}

func (api *API) handleDevices() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		res := Devices{
			DE1s:   []Device{},
			Scales: []Device{},
		}
		api.exec.Do(func() {
			res.Scanning = api.scanner.IsScanning()
			for _, dev := range api.scanner.DiscoveredDE1s() {
				res.DE1s = append(res.DE1s, Device{Name: dev.Name, Address: dev.Address})
			}
			for _, dev := range api.scanner.DiscoveredScales() {
				res.Scales = append(res.Scales, Device{Name: dev.Name, Address: dev.Address, Type: dev.Type.String()})
			}
		})

		return c.JSON(res)
	}
}
