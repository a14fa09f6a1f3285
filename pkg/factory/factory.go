// Package factory detects scale types from advertisement data and instantiates
// the matching driver
package factory

import (
	"fmt"
	"strings"

	"github.com/fako1024/de1ble/pkg/acaia"
	"github.com/fako1024/de1ble/pkg/bookoo"
	"github.com/fako1024/de1ble/pkg/decent"
	"github.com/fako1024/de1ble/pkg/difluid"
	"github.com/fako1024/de1ble/pkg/eclair"
	"github.com/fako1024/de1ble/pkg/eureka"
	"github.com/fako1024/de1ble/pkg/felicita"
	"github.com/fako1024/de1ble/pkg/hiroia"
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/skale"
	"github.com/fako1024/de1ble/pkg/smartchef"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/fako1024/de1ble/pkg/varia"
	"github.com/google/uuid"
)

// namePrefixes maps (upper case) advertised name prefixes to scale types, in order
// of precedence
var namePrefixes = []struct {
	prefix string
	t      scale.Type
}{
	{"DECENT SCALE", scale.TypeDecent},
	{"PROCH", scale.TypeAcaiaPyxis},
	{"LUNAR", scale.TypeAcaiaPyxis},
	{"PYXIS", scale.TypeAcaiaPyxis},
	{"ACAIA", scale.TypeAcaia},
	{"PEARL", scale.TypeAcaia},
	{"FELICITA", scale.TypeFelicita},
	{"SKALE", scale.TypeSkale},
	{"HIROIA JIMMY", scale.TypeHiroiaJimmy},
	{"BOOKOO_SC", scale.TypeBookoo},
	{"SMARTCHEF", scale.TypeSmartChef},
	{"MICROBALANCE", scale.TypeDifluid},
	{"CFS-9002", scale.TypeEurekaPrecisa},
	{"LSJ-001", scale.TypeSoloBarista},
	{"ECLAIR", scale.TypeAtomheartEclair},
	{"VARIA AKU", scale.TypeVariaAku},
	{"AKU", scale.TypeVariaAku},
}

// serviceTypes maps primary services unique to a single vendor to scale types. The
// generic 0xFFF0 service (shared by several vendors) is deliberately absent
var serviceTypes = []struct {
	service uuid.UUID
	t       scale.Type
}{
	{felicita.Service, scale.TypeFelicita},
	{skale.Service, scale.TypeSkale},
	{hiroia.Service, scale.TypeHiroiaJimmy},
	{bookoo.Service, scale.TypeBookoo},
	{difluid.Service, scale.TypeDifluid},
	{eclair.Service, scale.TypeAtomheartEclair},
}

// DetectType determines the scale type from the advertised name (case insensitive
// prefix match) and, failing that, from the advertised services
func DetectType(name string, services []uuid.UUID) scale.Type {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper != "" {
		for _, p := range namePrefixes {
			if strings.HasPrefix(upper, p.prefix) {
				return p.t
			}
		}
	}

	hasService := func(u uuid.UUID) bool {
		for _, s := range services {
			if s == u {
				return true
			}
		}
		return false
	}

	// Scales advertising the Pyxis service only use the newer protocol exclusively
	if hasService(acaia.PyxisService) {
		if hasService(acaia.IPSService) {
			return scale.TypeAcaia
		}
		return scale.TypeAcaiaPyxis
	}
	if hasService(acaia.IPSService) {
		return scale.TypeAcaia
	}
	for _, s := range serviceTypes {
		if hasService(s.service) {
			return s.t
		}
	}

	return scale.TypeUnknown
}

// IsKnownScale returns if an advertisement belongs to a supported scale
func IsKnownScale(adv transport.Advertisement) bool {
	return DetectType(adv.Name, adv.Services) != scale.TypeUnknown
}

// TypeName returns the wire name of the type detected for an advertisement (empty
// if unknown)
func TypeName(adv transport.Advertisement) string {
	t := DetectType(adv.Name, adv.Services)
	if t == scale.TypeUnknown {
		return ""
	}

	return t.String()
}

// KnownServices returns the primary services of all supported scales (e.g. for
// discovery filters)
func KnownServices() []uuid.UUID {
	return []uuid.UUID{
		decent.Service,
		acaia.PyxisService,
		acaia.IPSService,
		felicita.Service,
		skale.Service,
		hiroia.Service,
		bookoo.Service,
		difluid.Service,
		eclair.Service,
	}
}

// Factory creates scale drivers sharing a scheduler and a logger
type Factory struct {

	// NewTransport provides a fresh transport for each created driver
	NewTransport func() transport.Transport

	// Scheduler is the control loop all drivers run on
	Scheduler loop.Scheduler

	// Logger is passed on to all drivers (optional)
	Logger scale.Logger
}

// Create instantiates the driver for the given identity (nil if the type is unknown)
func (f *Factory) Create(id scale.Identity) scale.Scale {
	if id.Type == scale.TypeUnknown {
		return nil
	}

	logger := f.Logger
	if logger == nil {
		logger = &scale.NullLogger{}
	}
	logger = scale.Named(logger, id.Type.String())

	var tr transport.Transport
	if f.NewTransport != nil {
		tr = f.NewTransport()
	}

	switch id.Type {
	case scale.TypeDecent:
		return decent.New(tr, f.Scheduler, decent.WithLogger(logger))
	case scale.TypeAcaia:
		return acaia.New(tr, f.Scheduler, acaia.WithLogger(logger))
	case scale.TypeAcaiaPyxis:
		return acaia.NewPyxis(tr, f.Scheduler, acaia.WithLogger(logger))
	case scale.TypeFelicita:
		return felicita.New(tr, f.Scheduler, felicita.WithLogger(logger))
	case scale.TypeSkale:
		return skale.New(tr, f.Scheduler, skale.WithLogger(logger))
	case scale.TypeHiroiaJimmy:
		return hiroia.New(tr, f.Scheduler, hiroia.WithLogger(logger))
	case scale.TypeBookoo:
		return bookoo.New(tr, f.Scheduler, bookoo.WithLogger(logger))
	case scale.TypeSmartChef:
		return smartchef.New(tr, f.Scheduler, smartchef.WithLogger(logger))
	case scale.TypeDifluid:
		return difluid.New(tr, f.Scheduler, difluid.WithLogger(logger))
	case scale.TypeEurekaPrecisa:
		return eureka.New(tr, f.Scheduler, eureka.WithLogger(logger))
	case scale.TypeSoloBarista:
		return eureka.NewSoloBarista(tr, f.Scheduler, eureka.WithLogger(logger))
	case scale.TypeAtomheartEclair:
		return eclair.New(tr, f.Scheduler, eclair.WithLogger(logger))
	case scale.TypeVariaAku:
		return varia.New(tr, f.Scheduler, varia.WithLogger(logger))
	}

	return nil
}

// CreateByName instantiates the driver for a scale type given by its wire name (e.g.
// for a saved scale that is connected without a prior advertisement)
func (f *Factory) CreateByName(id scale.Identity, typeName string) (scale.Scale, error) {
	t := scale.ParseType(typeName)
	if t == scale.TypeUnknown {
		return nil, fmt.Errorf("%w: `%s`", scale.ErrUnknownType, typeName)
	}
	id.Type = t

	return f.Create(id), nil
}

// CreateFromAdvertisement detects the scale type of an advertisement and instantiates
// the matching driver (nil if the device is not a supported scale)
func (f *Factory) CreateFromAdvertisement(adv transport.Advertisement) scale.Scale {
	return f.Create(scale.Identity{
		Type:    DetectType(adv.Name, adv.Services),
		Address: transport.NormalizeAddress(adv.Address),
		Name:    adv.Name,
	})
}
