package ict

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/ohowland/relsim/internal/pkg/simtime"
	"gotest.tools/v3/assert"
)

func chain(t *testing.T) (*Network, []*Node, []*Line) {
	n := NewNetwork("ict")
	nodes := []*Node{
		NewNode("controller", 0, simtime.Hours(1)),
		NewNode("router", 0, simtime.Hours(1)),
		NewNode("sensor", 0, simtime.Hours(1)),
	}
	for _, node := range nodes {
		n.AddNode(node)
	}
	l1, err := n.AddLine("il1", nodes[0], nodes[1], 0, simtime.Hours(1))
	assert.NilError(t, err)
	l2, err := n.AddLine("il2", nodes[1], nodes[2], 0, simtime.Hours(1))
	assert.NilError(t, err)
	return n, nodes, []*Line{l1, l2}
}

func TestIsConnected(t *testing.T) {
	n, nodes, lines := chain(t)

	assert.Assert(t, IsConnected(nodes[0], nodes[2], n))
	assert.Assert(t, IsConnected(nodes[0], nodes[0], n))

	nodes[1].Fail()
	assert.Assert(t, !IsConnected(nodes[0], nodes[2], n))
	nodes[1].Repair()

	lines[1].Fail()
	assert.Assert(t, !IsConnected(nodes[0], nodes[2], n))
	assert.Assert(t, IsConnected(nodes[0], nodes[1], n))
	lines[1].Repair()

	nodes[2].Fail()
	assert.Assert(t, !IsConnected(nodes[0], nodes[2], n))
}

func TestUnknownNode(t *testing.T) {
	n := NewNetwork("ict")
	a := NewNode("a", 0, simtime.Hours(1))
	b := NewNode("b", 0, simtime.Hours(1))
	n.AddNode(a)

	_, err := n.AddLine("x", a, b, 0, simtime.Hours(1))
	assert.Assert(t, errors.Is(err, ErrUnknownNode))
	assert.Assert(t, !IsConnected(b, a, n))
}

func TestNodeRepairsAfterRepairTime(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 1))
	node := NewNode("n", 0, simtime.Hours(2))
	node.Fail()

	node.UpdateFailStatus(simtime.Hours(1), r)
	assert.Assert(t, node.Failed())
	node.UpdateFailStatus(simtime.Hours(1), r)
	assert.Assert(t, !node.Failed())
}
