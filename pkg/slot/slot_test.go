package slot

import (
	"errors"
	"testing"
	"time"

	"github.com/fako1024/de1ble/pkg/loop"
	"github.com/fako1024/de1ble/pkg/mock"
	"github.com/fako1024/de1ble/pkg/scale"
	"gotest.tools/v3/assert"
)

type recorder struct {
	created     []*mock.Mock
	changes     []scale.Scale
	connections []bool
	saved       []string
	weights     []float64
}

func newTestSlot(t *testing.T) (*Slot, *recorder) {
	t.Helper()

	sched := loop.NewManual(time.Unix(0, 0))
	rec := new(recorder)
	s := New(func(id scale.Identity) scale.Scale {
		if id.Name == "unsupported" {
			return nil
		}
		m := mock.New(sched)
		rec.created = append(rec.created, m)
		return m
	},
		WithChangeHandler(func(s scale.Scale) {
			rec.changes = append(rec.changes, s)
		}),
		WithConnectionHandler(func(connected bool) {
			rec.connections = append(rec.connections, connected)
		}),
		WithSaveHandler(func(address, _ string) {
			rec.saved = append(rec.saved, address)
		}),
		WithDataHandler(func(data scale.DataPoint) {
			rec.weights = append(rec.weights, data.Weight)
		}),
	)

	return s, rec
}

func TestOfferAndSwap(t *testing.T) {
	s, rec := newTestSlot(t)
	assert.Assert(t, s.Current() == nil)

	bound, err := s.Offer(scale.Identity{Address: "aa:01", Name: "first"})
	assert.NilError(t, err)
	assert.Assert(t, bound)
	assert.Equal(t, len(rec.created), 1)
	assert.Assert(t, s.Current().IsConnected())
	assert.DeepEqual(t, rec.saved, []string{"AA:01"})
	assert.DeepEqual(t, rec.connections, []bool{true})

	// Ignored while the current scale is connected
	bound, err = s.Offer(scale.Identity{Address: "aa:02", Name: "second"})
	assert.NilError(t, err)
	assert.Assert(t, !bound)
	assert.Equal(t, len(rec.created), 1)

	// The same device reconnects the existing instance
	first := rec.created[0]
	assert.NilError(t, first.Disconnect())
	assert.DeepEqual(t, rec.connections, []bool{true, false})
	bound, err = s.Offer(scale.Identity{Address: "AA:01"})
	assert.NilError(t, err)
	assert.Assert(t, bound)
	assert.Equal(t, len(rec.created), 1)
	assert.Equal(t, s.Current().Name(), "first")

	// A different device replaces the current one
	assert.NilError(t, first.Disconnect())
	bound, err = s.Offer(scale.Identity{Address: "aa:02", Name: "second"})
	assert.NilError(t, err)
	assert.Assert(t, bound)
	assert.Equal(t, len(rec.created), 2)
	assert.Equal(t, s.Current().Name(), "second")
	assert.Equal(t, len(rec.changes), 3)
	assert.Assert(t, rec.changes[1] == nil)

	// The previous scale is detached
	first.SetWeight(12.)
	rec.created[1].SetWeight(3.)
	assert.DeepEqual(t, rec.weights, []float64{3.})
}

func TestOfferUnsupported(t *testing.T) {
	s, rec := newTestSlot(t)

	bound, err := s.Offer(scale.Identity{Address: "aa:01", Name: "unsupported"})
	assert.Assert(t, !bound)
	assert.Assert(t, errors.Is(err, scale.ErrUnknownType))
	assert.Assert(t, s.Current() == nil)
	assert.Equal(t, len(rec.changes), 0)
}

func TestRelease(t *testing.T) {
	s, rec := newTestSlot(t)

	_, err := s.Offer(scale.Identity{Address: "aa:01", Name: "first"})
	assert.NilError(t, err)

	s.Release()
	assert.Assert(t, s.Current() == nil)
	assert.Assert(t, !rec.created[0].IsConnected())
	assert.DeepEqual(t, rec.connections, []bool{true, false})

	// Releasing an empty slot is a no-op
	s.Release()
	assert.Equal(t, len(rec.changes), 2)
}
