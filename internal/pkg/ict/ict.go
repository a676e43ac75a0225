// Package ict models the communication network used by controllers to reach
// sensors and intelligent switches.
package ict

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/ohowland/relsim/internal/pkg/simtime"
)

var ErrUnknownNode = errors.New("ict node not in network")

// Node is a communication endpoint
type Node struct {
	name       string
	failed     bool
	failRate   float64
	repairTime simtime.Time
	remaining  simtime.Time
}

// NewNode returns an operational node. failRate is per year; zero disables
// random failures.
func NewNode(name string, failRate float64, repairTime simtime.Time) *Node {
	return &Node{
		name:       name,
		failRate:   failRate,
		repairTime: repairTime,
	}
}

// PID is an accessor for the process id

// Name is an accessor for the node name
func (n *Node) Name() string { return n.name }

// Failed reports whether the node is out of service
func (n *Node) Failed() bool { return n.failed }

// Fail takes the node out of service for its repair time
func (n *Node) Fail() {
	n.failed = true
	n.remaining = n.repairTime
}

// Repair puts the node back in service
func (n *Node) Repair() {
	n.failed = false
	n.remaining = simtime.Time{}
}

// UpdateFailStatus ages a failed node or samples a new failure
func (n *Node) UpdateFailStatus(dt simtime.Time, r *rand.Rand) {
	if n.failed {
		n.remaining = n.remaining.Sub(dt)
		if !n.remaining.Positive() {
			n.Repair()
		}
		return
	}
	if n.failRate > 0 && r.Float64() < simtime.ConvertYearlyFailRate(n.failRate, dt) {
		n.Fail()
	}
}

// Line is a communication link between two nodes
type Line struct {
	name       string
	a, b       *Node
	failed     bool
	failRate   float64
	repairTime simtime.Time
	remaining  simtime.Time
}

func (l *Line) Name() string { return l.name }
func (l *Line) Failed() bool { return l.failed }
func (l *Line) Ends() (a, b *Node) { return l.a, l.b }

func (l *Line) Fail() {
	l.failed = true
	l.remaining = l.repairTime
}

func (l *Line) Repair() {
	l.failed = false
	l.remaining = simtime.Time{}
}

// UpdateFailStatus ages a failed line or samples a new failure
func (l *Line) UpdateFailStatus(dt simtime.Time, r *rand.Rand) {
	if l.failed {
		l.remaining = l.remaining.Sub(dt)
		if !l.remaining.Positive() {
			l.Repair()
		}
		return
	}
	if l.failRate > 0 && r.Float64() < simtime.ConvertYearlyFailRate(l.failRate, dt) {
		l.Fail()
	}
}

// Network is an undirected graph of nodes and lines
type Network struct {
	name      string
	nodes     []*Node
	lines     []*Line
	adjacency map[*Node][]*Line
}

// NewNetwork returns an empty network
func NewNetwork(name string) *Network {
	return &Network{
		name:      name,
		adjacency: make(map[*Node][]*Line),
	}
}

func (n *Network) Name() string { return n.name }
func (n *Network) Nodes() []*Node { return n.nodes }
func (n *Network) Lines() []*Line { return n.lines }

// AddNode registers a node. Adding the same node twice is a no-op.
func (n *Network) AddNode(node *Node) {
	if _, exists := n.adjacency[node]; exists {
		return
	}
	n.nodes = append(n.nodes, node)
	n.adjacency[node] = make([]*Line, 0)
}

// AddLine links two registered nodes
func (n *Network) AddLine(name string, a, b *Node, failRate float64, repairTime simtime.Time) (*Line, error) {
	if _, ok := n.adjacency[a]; !ok {
		return nil, fmt.Errorf("line %s end %s: %w", name, a.Name(), ErrUnknownNode)
	}
	if _, ok := n.adjacency[b]; !ok {
		return nil, fmt.Errorf("line %s end %s: %w", name, b.Name(), ErrUnknownNode)
	}
	l := &Line{name: name, a: a, b: b, failRate: failRate, repairTime: repairTime}
	n.lines = append(n.lines, l)
	n.adjacency[a] = append(n.adjacency[a], l)
	n.adjacency[b] = append(n.adjacency[b], l)
	return l, nil
}

// UpdateFailStatus samples nodes then lines in registration order
func (n *Network) UpdateFailStatus(dt simtime.Time, r *rand.Rand) {
	for _, node := range n.nodes {
		node.UpdateFailStatus(dt, r)
	}
	for _, l := range n.lines {
		l.UpdateFailStatus(dt, r)
	}
}

// Reset repairs every node and line
func (n *Network) Reset() {
	for _, node := range n.nodes {
		node.Repair()
	}
	for _, l := range n.lines {
		l.Repair()
	}
}

// IsConnected reports whether a path of operational nodes and lines joins a
// and b.
func IsConnected(a, b *Node, n *Network) bool {
	if a == nil || b == nil || n == nil || a.failed || b.failed {
		return false
	}
	if _, ok := n.adjacency[a]; !ok {
		return false
	}
	visited := map[*Node]bool{a: true}
	stack := []*Node{a}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == b {
			return true
		}
		for _, l := range n.adjacency[cur] {
			if l.failed {
				continue
			}
			next := l.a
			if next == cur {
				next = l.b
			}
			if next.failed || visited[next] {
				continue
			}
			visited[next] = true
			stack = append(stack, next)
		}
	}
	return false
}
