package powersystem

import (
	"fmt"
	"strings"

	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// NetworkKind discriminates the network variants
type NetworkKind int

const (
	TransmissionNetwork NetworkKind = iota
	DistributionNetwork
	MicrogridNetwork
)

func (k NetworkKind) String() string {
	switch k {
	case TransmissionNetwork:
		return "transmission"
	case DistributionNetwork:
		return "distribution"
	}
	return "microgrid"
}

// MicrogridMode selects the reconnection and battery dispatch policy
type MicrogridMode int

const (
	Survival MicrogridMode = iota
	FullSupport
	LimitedSupport
)

func (m MicrogridMode) String() string {
	switch m {
	case Survival:
		return "SURVIVAL"
	case FullSupport:
		return "FULL_SUPPORT"
	}
	return "LIMITED_SUPPORT"
}

// ParseMicrogridMode maps a mode name to a MicrogridMode
func ParseMicrogridMode(s string) (MicrogridMode, error) {
	switch strings.ToUpper(s) {
	case "SURVIVAL":
		return Survival, nil
	case "FULL_SUPPORT":
		return FullSupport, nil
	case "LIMITED_SUPPORT":
		return LimitedSupport, nil
	}
	return Survival, fmt.Errorf("microgrid mode %q: %w", s, ErrInvalidParameter)
}

// NetworkController is the controller attached to a distribution or microgrid
type NetworkController interface {
	Name() string
	SectioningTime() simtime.Time
}

// Network is a transmission, distribution or microgrid network
type Network struct {
	id   NetworkID
	ps   *PowerSystem
	name string
	kind NetworkKind
	mode MicrogridMode

	parent        NetworkID
	children      []NetworkID
	connectedLine LineID

	buses    []BusID
	lines    []LineID
	sections []SectionID

	controller NetworkController
	history    *history.Log
}

func (ps *PowerSystem) newNetwork(kind NetworkKind, parent NetworkID) *Network {
	count := 0
	for _, n := range ps.networks {
		if n.kind == kind {
			count++
		}
	}
	n := &Network{
		id:            NetworkID(len(ps.networks)),
		ps:            ps,
		name:          fmt.Sprintf("%s%d", kind, count+1),
		kind:          kind,
		parent:        parent,
		connectedLine: NoLine,
	}
	ps.networks = append(ps.networks, n)
	if parent != NoNetwork {
		p := ps.networks[parent]
		p.children = append(p.children, n.id)
	}
	return n
}

// NewTransmission creates the transmission network around the slack bus
func NewTransmission(ps *PowerSystem, slack *Bus) (*Network, error) {
	if !slack.IsSlack() {
		return nil, fmt.Errorf("transmission bus %s: %w", slack.Name(), ErrNoSlackBus)
	}
	if ps.transmission != NoNetwork {
		return nil, fmt.Errorf("second transmission network: %w", ErrMultipleSlackBus)
	}
	n := ps.newNetwork(TransmissionNetwork, NoNetwork)
	n.name = "transmission"
	ps.transmission = n.id
	if err := n.AddBus(slack); err != nil {
		return nil, err
	}
	return n, nil
}

// NewDistribution creates a distribution network fed from parent through
// line, which must carry a circuit breaker.
func NewDistribution(parent *Network, line *Line) (*Network, error) {
	if parent.kind == MicrogridNetwork {
		return nil, fmt.Errorf("distribution under %s: %w", parent.Name(), ErrNetworkKind)
	}
	return newFedNetwork(parent, line, DistributionNetwork, FullSupport)
}

// NewMicrogrid creates a microgrid fed from a distribution through line,
// which must carry a circuit breaker.
func NewMicrogrid(parent *Network, line *Line, mode MicrogridMode) (*Network, error) {
	if parent.kind != DistributionNetwork {
		return nil, fmt.Errorf("microgrid under %s: %w", parent.Name(), ErrNetworkKind)
	}
	return newFedNetwork(parent, line, MicrogridNetwork, mode)
}

func newFedNetwork(parent *Network, line *Line, kind NetworkKind, mode MicrogridMode) (*Network, error) {
	if line.breaker == NoSwitch {
		return nil, fmt.Errorf("%s feeder line %s: %w", kind, line.Name(), ErrMissingCircuitBreaker)
	}
	if line.network != NoNetwork {
		return nil, fmt.Errorf("%s feeder line %s: %w", kind, line.Name(), ErrAlreadyAttached)
	}
	n := parent.ps.newNetwork(kind, parent.id)
	n.mode = mode
	n.connectedLine = line.id
	if err := n.AddLine(line); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Network) ID() NetworkID { return n.id }
func (n *Network) Name() string { return n.name }
func (n *Network) Kind() NetworkKind { return n.kind }
func (n *Network) Mode() MicrogridMode { return n.mode }
func (n *Network) BusIDs() []BusID { return n.buses }
func (n *Network) LineIDs() []LineID { return n.lines }
func (n *Network) SectionIDs() []SectionID { return n.sections }
func (n *Network) Controller() NetworkController { return n.controller }
func (n *Network) History() *history.Log { return n.history }

// PowerSystem is the arena the network lives in
func (n *Network) PowerSystem() *PowerSystem { return n.ps }

// SetName renames the network
func (n *Network) SetName(name string) { n.name = name }

// SetController attaches the network's controller
func (n *Network) SetController(c NetworkController) { n.controller = c }

// Parent returns the feeding network, nil for the transmission network
func (n *Network) Parent() *Network {
	return n.ps.Network(n.parent)
}

// Children returns the networks fed from this one, in registration order
func (n *Network) Children() []*Network {
	out := make([]*Network, len(n.children))
	for i, id := range n.children {
		out[i] = n.ps.networks[id]
	}
	return out
}

// Microgrids returns the child microgrids
func (n *Network) Microgrids() []*Network {
	var out []*Network
	for _, c := range n.Children() {
		if c.kind == MicrogridNetwork {
			out = append(out, c)
		}
	}
	return out
}

func (n *Network) Buses() []*Bus {
	out := make([]*Bus, len(n.buses))
	for i, id := range n.buses {
		out[i] = n.ps.buses[id]
	}
	return out
}

func (n *Network) Lines() []*Line {
	out := make([]*Line, len(n.lines))
	for i, id := range n.lines {
		out[i] = n.ps.lines[id]
	}
	return out
}

func (n *Network) Sections() []*Section {
	out := make([]*Section, len(n.sections))
	for i, id := range n.sections {
		out[i] = n.ps.sections[id]
	}
	return out
}

// ConnectedLine is the line feeding the network, nil for transmission
func (n *Network) ConnectedLine() *Line {
	if n.connectedLine == NoLine {
		return nil
	}
	return n.ps.lines[n.connectedLine]
}

// FeederBreaker is the circuit breaker of the feeding line
func (n *Network) FeederBreaker() *Switch {
	l := n.ConnectedLine()
	if l == nil || l.breaker == NoSwitch {
		return nil
	}
	return n.ps.switches[l.breaker]
}

// UpstreamBus is the end of the feeding line that lies outside the network
func (n *Network) UpstreamBus() BusID {
	l := n.ConnectedLine()
	if l == nil {
		return NoBus
	}
	if n.ps.buses[l.fbus].network != n.id {
		return l.fbus
	}
	return l.tbus
}

// BackupLines lists the normally open lines of the network
func (n *Network) BackupLines() []*Line {
	var out []*Line
	for _, id := range n.lines {
		if l := n.ps.lines[id]; l.IsBackup() {
			out = append(out, l)
		}
	}
	return out
}

// HasFailedLine reports whether any line of the network is failed
func (n *Network) HasFailedLine() bool {
	for _, id := range n.lines {
		if n.ps.lines[id].failed {
			return true
		}
	}
	return false
}

// MaxLoad is the sum of the peak demand of every bus in the network
func (n *Network) MaxLoad() float64 {
	total := 0.0
	for _, id := range n.buses {
		total += n.ps.buses[id].MaxLoad()
	}
	return total
}

// AddBus registers b and its bus-bound components. Adding a bus twice is a no-op.
func (n *Network) AddBus(b *Bus) error {
	if b.network == n.id {
		return nil
	}
	if b.network != NoNetwork {
		return fmt.Errorf("bus %s in %s: %w", b.Name(), n.ps.networks[b.network].Name(), ErrAlreadyAttached)
	}
	b.network = n.id
	n.buses = append(n.buses, b.id)
	n.ps.register(b.Name(), b)
	if b.battery != NoBattery {
		bat := n.ps.batteries[b.battery]
		n.ps.register(bat.Name(), bat)
	}
	if b.evPark != NoEVPark {
		ev := n.ps.evparks[b.evPark]
		n.ps.register(ev.Name(), ev)
	}
	if b.production != NoProduction {
		p := n.ps.productions[b.production]
		n.ps.register(p.Name(), p)
	}
	return nil
}

func (n *Network) AddBuses(buses ...*Bus) error {
	for _, b := range buses {
		if err := n.AddBus(b); err != nil {
			return err
		}
	}
	return nil
}

// AddLine registers l and its switches and sensor. Adding a line twice is a no-op.
func (n *Network) AddLine(l *Line) error {
	if l.network == n.id {
		return nil
	}
	if l.network != NoNetwork {
		return fmt.Errorf("line %s in %s: %w", l.Name(), n.ps.networks[l.network].Name(), ErrAlreadyAttached)
	}
	l.network = n.id
	n.lines = append(n.lines, l.id)
	n.ps.register(l.Name(), l)
	if l.breaker != NoSwitch {
		cb := n.ps.switches[l.breaker]
		n.ps.register(cb.Name(), cb)
	}
	for _, id := range l.disconnectors {
		d := n.ps.switches[id]
		n.ps.register(d.Name(), d)
		if d.iswitch != NoISwitch {
			is := n.ps.iswitches[d.iswitch]
			n.ps.register(is.Name(), is)
		}
	}
	if l.sensor != NoSensor {
		s := n.ps.sensors[l.sensor]
		n.ps.register(s.Name(), s)
	}
	return nil
}

func (n *Network) AddLines(lines ...*Line) error {
	for _, l := range lines {
		if err := n.AddLine(l); err != nil {
			return err
		}
	}
	return nil
}

// tripFeeder opens the protection of the network. A fault in a distribution
// also islands its microgrids.
func (n *Network) tripFeeder() {
	if cb := n.FeederBreaker(); cb != nil {
		cb.Open()
	}
	if n.kind != DistributionNetwork {
		return
	}
	for _, mg := range n.Microgrids() {
		if cb := mg.FeederBreaker(); cb != nil {
			cb.Open()
		}
	}
}

// CreateSections splits the network into sections bounded by disconnectors,
// rooted at the feeding line. Two lines meeting at a bus share a section
// unless either carries a disconnector at that bus.
func (n *Network) CreateSections() error {
	if n.kind == TransmissionNetwork {
		return nil
	}
	ps := n.ps
	cl := n.ConnectedLine()
	up := n.UpstreamBus()
	down := cl.OtherEnd(up)

	root := n.newSection(NoSection)
	root.add(cl)

	type item struct {
		line LineID
		bus  BusID
		sec  *Section
	}
	queue := []item{{cl.id, down, root}}
	visited := map[BusID]bool{up: true, down: true}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		in := ps.lines[it.line]
		var shared *Section
		for _, id := range ps.buses[it.bus].connectedLines {
			m := ps.lines[id]
			if id == it.line || m.network != n.id || m.IsBackup() || m.section != NoSection {
				continue
			}
			other := m.OtherEnd(it.bus)
			if visited[other] {
				return fmt.Errorf("%s line %s closes a loop: %w", n.Name(), m.Name(), ErrNotRadial)
			}
			visited[other] = true
			target := it.sec
			switch {
			case m.HasDisconnectorAt(it.bus):
				target = n.newSection(it.sec.id)
			case in.HasDisconnectorAt(it.bus):
				if shared == nil {
					shared = n.newSection(it.sec.id)
				}
				target = shared
			}
			target.add(m)
			queue = append(queue, item{id, other, target})
		}
	}

	for _, id := range n.lines {
		l := ps.lines[id]
		if l.section != NoSection {
			continue
		}
		if !l.IsBackup() {
			return fmt.Errorf("%s line %s unreachable from feeder %s: %w", n.Name(), l.Name(), cl.Name(), ErrNotRadial)
		}
		n.newSection(root.id).add(l)
	}
	return nil
}

func (n *Network) newSection(parent SectionID) *Section {
	s := &Section{
		id:      SectionID(len(n.ps.sections)),
		ps:      n.ps,
		network: n.id,
		parent:  parent,
	}
	n.ps.sections = append(n.ps.sections, s)
	n.sections = append(n.sections, s.id)
	if parent != NoSection {
		p := n.ps.sections[parent]
		p.children = append(p.children, s.id)
	}
	return s
}

func (n *Network) ResetStatus(save bool) {
	n.history = nil
	if save {
		n.history = history.New()
	}
}

// UpdateHistory records the aggregate state of the network's buses
func (n *Network) UpdateHistory() {
	if n.history == nil {
		return
	}
	var pload, pshed, accShed float64
	for _, id := range n.buses {
		b := n.ps.buses[id]
		pload += b.pload
		pshed += b.pShed
		accShed += b.accPShed
	}
	n.history.Record("p_load", pload)
	n.history.Record("p_load_shed", pshed)
	n.history.Record("acc_p_load_shed", accShed)
	if n.controller != nil {
		n.history.Record("sectioning_time", n.controller.SectioningTime().Hours())
	}
}
