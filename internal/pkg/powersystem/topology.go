package powersystem

import (
	"fmt"
	"slices"
)

// RadialNode is a bus of an oriented radial tree. Line is the edge to the
// parent and is NoLine at the root.
type RadialNode struct {
	Bus      BusID
	Line     LineID
	Children []*RadialNode
}

// Walk visits the tree in pre-order
func (n *RadialNode) Walk(fn func(*RadialNode)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// PostOrder visits the tree children first
func (n *RadialNode) PostOrder(fn func(*RadialNode)) {
	for _, c := range n.Children {
		c.PostOrder(fn)
	}
	fn(n)
}

// Depth maps every bus of the tree to its distance from the root in edges
func (n *RadialNode) Depth() map[BusID]int {
	depth := map[BusID]int{n.Bus: 0}
	n.Walk(func(p *RadialNode) {
		for _, c := range p.Children {
			depth[c.Bus] = depth[p.Bus] + 1
		}
	})
	return depth
}

// ConfigureBFSLoadFlowSetup orients lines away from the unique slack bus of
// buses and returns the radial tree.
func (ps *PowerSystem) ConfigureBFSLoadFlowSetup(buses []BusID, lines []LineID) (*RadialNode, error) {
	slack := NoBus
	for _, id := range buses {
		if !ps.buses[id].IsSlack() {
			continue
		}
		if slack != NoBus {
			return nil, fmt.Errorf("buses %s and %s: %w", ps.buses[slack].Name(), ps.buses[id].Name(), ErrMultipleSlackBus)
		}
		slack = id
	}
	if slack == NoBus {
		return nil, ErrNoSlackBus
	}
	return ps.Orient(slack, buses, lines)
}

// Orient runs a breadth-first search from root over lines, flips every line
// that points toward the root and rewires the buses accordingly. Children
// follow the order of each bus's connected lines.
func (ps *PowerSystem) Orient(root BusID, buses []BusID, lines []LineID) (*RadialNode, error) {
	inSet := make(map[LineID]bool, len(lines))
	for _, id := range lines {
		inSet[id] = true
	}
	tree := &RadialNode{Bus: root, Line: NoLine}
	visited := map[BusID]bool{root: true}
	used := make(map[LineID]bool, len(lines))
	queue := []*RadialNode{tree}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, id := range ps.buses[node.Bus].connectedLines {
			if !inSet[id] || used[id] {
				continue
			}
			l := ps.lines[id]
			used[id] = true
			next := l.OtherEnd(node.Bus)
			if visited[next] {
				return nil, fmt.Errorf("line %s: %w", l.Name(), ErrNotRadial)
			}
			visited[next] = true
			if l.fbus != node.Bus {
				if l.connected {
					l.unwire()
				}
				l.flip()
				if l.connected {
					l.wire()
				}
			}
			if l.connected {
				ps.buses[next].toLine = id
			}
			child := &RadialNode{Bus: next, Line: id}
			node.Children = append(node.Children, child)
			queue = append(queue, child)
		}
	}
	for _, id := range buses {
		if !visited[id] {
			return nil, fmt.Errorf("bus %s not reached from %s: %w", ps.buses[id].Name(), ps.buses[root].Name(), ErrDisconnectedIsland)
		}
	}
	return tree, nil
}

// SubSystem is a maximal set of buses joined by connected lines
type SubSystem struct {
	Buses []BusID
	Lines []LineID
	Slack BusID
}

// HasSlack reports whether the sub-system is fed by the transmission grid
func (s *SubSystem) HasSlack() bool { return s.Slack != NoBus }

// FindSubSystems partitions the network-attached buses into islands over the
// currently connected lines. Islands are ordered by their lowest bus id.
func (ps *PowerSystem) FindSubSystems() []*SubSystem {
	slack := ps.SlackBus()
	seen := make(map[BusID]bool, len(ps.buses))
	var out []*SubSystem
	for _, b := range ps.buses {
		if b.network == NoNetwork || seen[b.id] {
			continue
		}
		sub := &SubSystem{Slack: NoBus}
		seen[b.id] = true
		stack := []BusID{b.id}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			sub.Buses = append(sub.Buses, id)
			if id == slack {
				sub.Slack = id
			}
			for _, lid := range ps.buses[id].connectedLines {
				l := ps.lines[lid]
				if !l.connected {
					continue
				}
				next := l.OtherEnd(id)
				if l.fbus == id {
					sub.Lines = append(sub.Lines, lid)
				}
				if seen[next] {
					continue
				}
				seen[next] = true
				stack = append(stack, next)
			}
		}
		slices.Sort(sub.Buses)
		slices.Sort(sub.Lines)
		out = append(out, sub)
	}
	return out
}

// Reachable is the set of buses joined to from by connected lines
func (ps *PowerSystem) Reachable(from BusID) map[BusID]bool {
	seen := map[BusID]bool{from: true}
	stack := []BusID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, lid := range ps.buses[id].connectedLines {
			l := ps.lines[lid]
			if !l.connected {
				continue
			}
			if next := l.OtherEnd(id); !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}
