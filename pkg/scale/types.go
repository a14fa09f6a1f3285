package scale

import (
	"strings"
	"time"
)

// Unit denotes the unit of the weight measurement
type Unit string

const (

	// UnitUnknown denotes an unknown / invalid unit
	UnitUnknown = "--"

	// UnitGrams denotes metric units
	UnitGrams = "g"

	// UnitOz denotes imperial units
	UnitOz = "oz"
)

// State denotes a connection state
type State int

const (

	// StateDisconnected is active before connecting and after losing the link to the scale
	StateDisconnected State = iota

	// StateConnecting is active while the link to the scale is being established
	StateConnecting

	// StateServiceDiscovery is active while enumerating the GATT services
	StateServiceDiscovery

	// StateCharacteristicDiscovery is active while enumerating the GATT characteristics
	StateCharacteristicDiscovery

	// StateEnablingNotifications is active while subscribing to the data characteristic(s)
	StateEnablingNotifications

	// StateHandshaking is active during vendor specific identification / configuration
	StateHandshaking

	// StateConnected is active while being connected to the scale
	StateConnected

	// StateFailed is active after a transport error or an exhausted retry budget
	StateFailed
)

var stateNames = [...]string{
	"disconnected",
	"connecting",
	"service_discovery",
	"characteristic_discovery",
	"enabling_notifications",
	"handshaking",
	"connected",
	"failed",
}

// String returns a human-readable representation of the state
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ConnectionStatus denotes the current status of the bluetooth device
type ConnectionStatus struct {
	Error error
	State
}

// DataPoint denotes a weight measurement at a certain point in time
type DataPoint struct {
	TimeStamp    time.Time
	Unit         Unit
	Weight       float64
	FlowRate     float64
	BatteryLevel int
}

// Value provides a method to retrieve the current value (for interface use)
func (d DataPoint) Value() float64 {
	return d.Weight
}

// DataPoints denotes a set of data points (usually part of a brew process)
type DataPoints []DataPoint

// Type denotes a scale vendor / protocol family
type Type int

const (

	// TypeUnknown denotes an unrecognized device
	TypeUnknown Type = iota

	// TypeDecent denotes the Decent Scale
	TypeDecent

	// TypeAcaia denotes Acaia scales using the legacy IPS service
	TypeAcaia

	// TypeAcaiaPyxis denotes Acaia scales using the newer Pyxis service
	TypeAcaiaPyxis

	// TypeFelicita denotes Felicita scales
	TypeFelicita

	// TypeSkale denotes the Atomax Skale
	TypeSkale

	// TypeHiroiaJimmy denotes the Hiroia Jimmy
	TypeHiroiaJimmy

	// TypeBookoo denotes Bookoo scales
	TypeBookoo

	// TypeSmartChef denotes SmartChef scales
	TypeSmartChef

	// TypeDifluid denotes the Difluid Microbalance
	TypeDifluid

	// TypeEurekaPrecisa denotes the Eureka Precisa
	TypeEurekaPrecisa

	// TypeSoloBarista denotes the Solo Barista (Eureka protocol)
	TypeSoloBarista

	// TypeAtomheartEclair denotes the Atomheart Eclair
	TypeAtomheartEclair

	// TypeVariaAku denotes the Varia Aku
	TypeVariaAku
)

var typeNames = map[Type]string{
	TypeDecent:          "decent",
	TypeAcaia:           "acaia",
	TypeAcaiaPyxis:      "acaiapyxis",
	TypeFelicita:        "felicita",
	TypeSkale:           "skale",
	TypeHiroiaJimmy:     "hiroiajimmy",
	TypeBookoo:          "bookoo",
	TypeSmartChef:       "smartchef",
	TypeDifluid:         "difluid",
	TypeEurekaPrecisa:   "eureka_precisa",
	TypeSoloBarista:     "solo_barista",
	TypeAtomheartEclair: "atomheart_eclair",
	TypeVariaAku:        "varia_aku",
}

// String returns the wire name of the type (as persisted with a saved scale)
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseType resolves a type from its wire name (case insensitive)
func ParseType(name string) Type {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == name {
			return t
		}
	}
	return TypeUnknown
}

// Types returns all known scale types
func Types() []Type {
	res := make([]Type, 0, len(typeNames))
	for t := TypeDecent; t <= TypeVariaAku; t++ {
		res = append(res, t)
	}
	return res
}

// Identity denotes a detected scale device
type Identity struct {
	Type    Type
	Address string
	Name    string
}

// Capabilities denotes the optional operations a scale supports in software
type Capabilities struct {
	Tare  bool
	Timer bool
	Sleep bool
}
