package testnet

import (
	"testing"

	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"gotest.tools/v3/assert"
)

func TestRBTS2(t *testing.T) {
	ps, err := RBTS2(Options{})
	assert.NilError(t, err)
	assert.Equal(t, ps.Name(), "rbts2")
	assert.Equal(t, len(ps.Buses()), 12)
	assert.Equal(t, len(ps.Lines()), 11)
	assert.Equal(t, len(ps.Switches()), 4)

	dist := Network(ps, "dist")
	assert.Assert(t, dist != nil)
	assert.Equal(t, dist.Kind(), powersystem.DistributionNetwork)
	assert.Assert(t, dist.Controller() != nil)
	assert.Equal(t, len(dist.BusIDs()), 11)
}

func TestLookupChecksKind(t *testing.T) {
	ps, err := RBTS2(Options{})
	assert.NilError(t, err)
	assert.Assert(t, Bus(ps, "B5") != nil)
	assert.Assert(t, Line(ps, "L5") != nil)
	assert.Assert(t, Switch(ps, "DL4") != nil)

	assert.Assert(t, Line(ps, "B5") == nil)
	assert.Assert(t, Bus(ps, "B42") == nil)
	assert.Assert(t, Battery(ps, "B5") == nil)
	assert.Assert(t, Network(ps, "mg") == nil)
}

func TestNames(t *testing.T) {
	assert.DeepEqual(t, names("L", 2, 4), []string{"L2", "L3", "L4"})
	assert.Equal(t, len(names("B", 3, 2)), 0)
}
