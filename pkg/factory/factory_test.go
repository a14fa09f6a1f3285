package factory

import (
	"errors"
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/acaia"
	"github.com/fako1024/de1ble/pkg/decent"
	"github.com/fako1024/de1ble/pkg/eureka"
	"github.com/fako1024/de1ble/pkg/felicita"
	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/mock"
	"github.com/fako1024/de1ble/pkg/scale"
	"github.com/fako1024/de1ble/pkg/transport"
	"github.com/google/uuid"
	"gotest.tools/v3/assert"
)

func TestDetectByName(t *testing.T) {
	for _, c := range []struct {
		name     string
		expected scale.Type
	}{
		{"Decent Scale", scale.TypeDecent},
		{"ACAIA123", scale.TypeAcaia},
		{"PEARLS-45", scale.TypeAcaia},
		{"PROCHBT001", scale.TypeAcaiaPyxis},
		{"Lunar 2021", scale.TypeAcaiaPyxis},
		{"pyxis-77", scale.TypeAcaiaPyxis},
		{"FELICITA Arc", scale.TypeFelicita},
		{"Skale2", scale.TypeSkale},
		{"HIROIA JIMMY", scale.TypeHiroiaJimmy},
		{"BOOKOO_SC 123", scale.TypeBookoo},
		{"smartchef", scale.TypeSmartChef},
		{"Microbalance 1", scale.TypeDifluid},
		{"CFS-9002", scale.TypeEurekaPrecisa},
		{"LSJ-001", scale.TypeSoloBarista},
		{"ECLAIR-xyz", scale.TypeAtomheartEclair},
		{"AKU Mini", scale.TypeVariaAku},
		{"Varia AKU", scale.TypeVariaAku},
		{"DE1", scale.TypeUnknown},
		{"", scale.TypeUnknown},
	} {
		assert.Equal(t, DetectType(c.name, nil), c.expected, c.name)
	}
}

func TestDetectByService(t *testing.T) {
	assert.Equal(t, DetectType("", []uuid.UUID{acaia.PyxisService}), scale.TypeAcaiaPyxis)
	assert.Equal(t, DetectType("", []uuid.UUID{acaia.IPSService}), scale.TypeAcaia)
	assert.Equal(t, DetectType("", []uuid.UUID{acaia.PyxisService, acaia.IPSService}), scale.TypeAcaia)
	assert.Equal(t, DetectType("unnamed", []uuid.UUID{felicita.Service}), scale.TypeFelicita)

	// The shared 0xFFF0 service is ambiguous
	assert.Equal(t, DetectType("", []uuid.UUID{decent.Service}), scale.TypeUnknown)
	assert.Equal(t, DetectType("", []uuid.UUID{eureka.Service}), scale.TypeUnknown)

	// Names take precedence
	assert.Equal(t, DetectType("Skale", []uuid.UUID{felicita.Service}), scale.TypeSkale)
}

func TestAdvertisementHelpers(t *testing.T) {
	adv := transport.Advertisement{Address: "aa:bb", Name: "BOOKOO_SC"}
	assert.Assert(t, IsKnownScale(adv))
	assert.Equal(t, TypeName(adv), "bookoo")

	adv = transport.Advertisement{Address: "aa:bb", Name: "Phone"}
	assert.Assert(t, !IsKnownScale(adv))
	assert.Equal(t, TypeName(adv), "")

	assert.Assert(t, len(KnownServices()) > 0)
}

func TestCreate(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	var transports int
	f := &Factory{
		NewTransport: func() transport.Transport {
			transports++
			return mock.NewTransport(sched)
		},
		Scheduler: sched,
	}

	for _, typ := range scale.Types() {
		s := f.Create(scale.Identity{Type: typ, Address: "AA:BB", Name: "test"})
		assert.Assert(t, s != nil, typ.String())
		assert.Equal(t, s.Type(), typ)
		assert.Equal(t, s.ConnectionStatus().State, scale.StateDisconnected)
		assert.Equal(t, s.BatteryLevel(), -1)
	}
	assert.Equal(t, transports, len(scale.Types()))

	assert.Assert(t, f.Create(scale.Identity{Type: scale.TypeUnknown}) == nil)
}

func TestCreateByName(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	f := &Factory{
		NewTransport: func() transport.Transport {
			return mock.NewTransport(sched)
		},
		Scheduler: sched,
	}

	s, err := f.CreateByName(scale.Identity{Address: "AA:BB"}, "eureka_precisa")
	assert.NilError(t, err)
	assert.Equal(t, s.Type(), scale.TypeEurekaPrecisa)

	_, err = f.CreateByName(scale.Identity{Address: "AA:BB"}, "kitchen")
	assert.Assert(t, errors.Is(err, scale.ErrUnknownType))
}

func TestCreateFromAdvertisement(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	tr := mock.NewTransport(sched, mock.WithService(felicita.Service))
	f := &Factory{
		NewTransport: func() transport.Transport {
			return tr
		},
		Scheduler: sched,
	}

	s := f.CreateFromAdvertisement(transport.Advertisement{Address: "aa:bb:cc", Name: "FELICITA"})
	assert.Equal(t, s.Type(), scale.TypeFelicita)
	assert.NilError(t, s.Connect(scale.Identity{Address: "AA:BB:CC", Name: "FELICITA"}))
	assert.Equal(t, tr.Address(), "AA:BB:CC")
}
