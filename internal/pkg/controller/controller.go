// Package controller implements the fault management hierarchy: a main
// controller supervising one controller per distribution network, which in
// turn drives the controllers of its microgrids.
package controller

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ohowland/relsim/internal/pkg/history"
	"github.com/ohowland/relsim/internal/pkg/ict"
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"github.com/rs/zerolog/log"
)

var (
	ErrWrongNetwork  = errors.New("controller attached to the wrong network kind")
	ErrHasController = errors.New("network already has a controller")
)

// Config holds the parameters shared by distribution and microgrid controllers
type Config struct {
	Name                 string
	ManualSectioningTime simtime.Time
	ICTNode              *ict.Node
	ICTNetwork           *ict.Network
}

// feeder is the fault-location loop common to distribution and microgrid
// controllers. It latches a feeder trip, scans the sections for faults,
// isolates the failed ones and recloses the feeder breaker.
type feeder struct {
	cfg     Config
	ps      *powersystem.PowerSystem
	network *powersystem.Network

	sectioningTime simtime.Time
	locating       bool
	failed         []powersystem.SectionID

	history *history.Log
}

func newFeeder(cfg Config, n *powersystem.Network, kind powersystem.NetworkKind) (feeder, error) {
	if n == nil || n.Kind() != kind {
		return feeder{}, fmt.Errorf("controller %s: %w", cfg.Name, ErrWrongNetwork)
	}
	if n.Controller() != nil {
		return feeder{}, fmt.Errorf("controller %s on %s: %w", cfg.Name, n.Name(), ErrHasController)
	}
	if cfg.Name == "" {
		cfg.Name = n.Name() + "_controller"
	}
	if cfg.ManualSectioningTime.Value == 0 {
		cfg.ManualSectioningTime = simtime.Hours(0)
	}
	f := feeder{
		cfg:            cfg,
		ps:             n.PowerSystem(),
		network:        n,
		sectioningTime: simtime.Hours(0),
	}
	return f, nil
}

func (f *feeder) Name() string { return f.cfg.Name }
func (f *feeder) Network() *powersystem.Network { return f.network }
func (f *feeder) SectioningTime() simtime.Time { return f.sectioningTime }
func (f *feeder) Locating() bool { return f.locating }
func (f *feeder) History() *history.Log { return f.history }

// FailedSections lists the sections currently held out of service
func (f *feeder) FailedSections() []powersystem.SectionID { return f.failed }

func (f *feeder) setManualSectioningTime(t simtime.Time) {
	f.cfg.ManualSectioningTime = t
}

// SetParentSectioningTime raises the sectioning time to t when t is longer
func (f *feeder) SetParentSectioningTime(t simtime.Time) {
	f.sectioningTime = simtime.Max(f.sectioningTime, t)
}

// step runs one tick of the loop. reclose decides whether the feeder breaker
// may close once the faults are isolated; onIsland and onReclose are called
// on the corresponding transitions.
func (f *feeder) step(dt simtime.Time, manual bool, reclose func() bool, onIsland, onReclose func()) {
	f.sectioningTime = f.sectioningTime.Sub(dt).ClampZero()
	f.checkRepairs()

	cb := f.network.FeederBreaker()
	if cb.IsOpen() && !f.locating {
		f.locating = true
		if onIsland != nil {
			onIsland()
		}
		f.sectioningTime = f.sectioningTime.Add(f.scan(dt, manual, true))
		log.Debug().
			Str("controller", f.cfg.Name).
			Float64("sectioning_time_h", f.sectioningTime.Hours()).
			Int("failed_sections", len(f.failed)).
			Msg("feeder breaker tripped")
	}
	if !f.locating || f.sectioningTime.Positive() {
		return
	}
	if extra := f.scan(dt, manual, false); extra.Positive() {
		f.sectioningTime = f.sectioningTime.Add(extra)
		return
	}
	f.isolate()
	if f.network.ConnectedLine().Failed() || !reclose() {
		return
	}
	cb.Close()
	f.locating = false
	f.engageBackups()
	if onReclose != nil {
		onReclose()
	}
	log.Debug().Str("controller", f.cfg.Name).Msg("feeder breaker reclosed")
}

// checkRepairs returns repaired sections to service
func (f *feeder) checkRepairs() {
	if len(f.failed) == 0 {
		return
	}
	f.disengageBackups()
	still := f.failed[:0]
	for _, id := range f.failed {
		s := f.ps.Section(id)
		if s.HasFailedLine() {
			still = append(still, id)
			continue
		}
		s.Connect()
	}
	f.failed = still
	if len(f.failed) > 0 && !f.network.FeederBreaker().IsOpen() {
		f.engageBackups()
	}
}

// scan looks for failed sections and returns the time it costs. The first
// scan after a trip pays for the field crew; later scans only pay when they
// find new faults.
func (f *feeder) scan(dt simtime.Time, manual, first bool) simtime.Time {
	spent := simtime.Hours(0)
	crew := false
	var found []*powersystem.Section
	for _, s := range f.network.Sections() {
		faulted := false
		if f.observable(s, manual) {
			for _, id := range s.Sensors() {
				t, lineFailed := f.ps.Sensor(id).GetLineFailStatus(dt)
				spent = spent.Add(t)
				faulted = faulted || lineFailed
			}
		} else {
			crew = true
			faulted = s.HasFailedLine()
		}
		if faulted && !slices.Contains(f.failed, s.ID()) {
			f.failed = append(f.failed, s.ID())
			found = append(found, s)
		}
	}
	if crew && (first || len(found) > 0) {
		spent = spent.Add(f.cfg.ManualSectioningTime)
	}
	for _, s := range found {
		spent = spent.Add(f.disconnectTime(s, manual, crew))
	}
	return spent
}

// observable reports whether the section's fault state can be read remotely
func (f *feeder) observable(s *powersystem.Section, manual bool) bool {
	if manual || !s.FullySensed() {
		return false
	}
	for _, id := range s.Sensors() {
		sensor := f.ps.Sensor(id)
		if sensor.State() == powersystem.DeviceRepair || !f.reachable(sensor.ICTNode()) {
			return false
		}
	}
	return true
}

func (f *feeder) reachable(node *ict.Node) bool {
	if f.cfg.ICTNode == nil || node == nil || f.cfg.ICTNetwork == nil {
		return false
	}
	return ict.IsConnected(f.cfg.ICTNode, node, f.cfg.ICTNetwork)
}

// disconnectTime is the time needed to open the disconnectors of a newly
// failed section. A crew already on site opens them at no extra cost.
func (f *feeder) disconnectTime(s *powersystem.Section, manual, crew bool) simtime.Time {
	spent := simtime.Hours(0)
	if crew {
		return spent
	}
	needCrew := false
	for _, id := range s.Disconnectors() {
		sw := f.ps.Switch(id)
		is := f.ps.IntelligentSwitch(sw.IntelligentSwitch())
		if manual || is == nil || !f.reachable(is.ICTNode()) {
			needCrew = true
			continue
		}
		spent = spent.Add(is.GetOpenTime(f.cfg.ManualSectioningTime))
	}
	if needCrew {
		spent = spent.Add(f.cfg.ManualSectioningTime)
	}
	return spent
}

// isolate opens the failed sections and closes everything else
func (f *feeder) isolate() {
	for _, s := range f.network.Sections() {
		if slices.Contains(f.failed, s.ID()) {
			s.Disconnect()
			continue
		}
		s.Connect()
	}
}

// engageBackups closes every healthy backup line that bridges the energised
// part of the system and a de-energised part.
func (f *feeder) engageBackups() {
	root := f.network.UpstreamBus()
	for _, l := range f.network.BackupLines() {
		if l.Failed() || l.Connected() {
			continue
		}
		live := f.ps.Reachable(root)
		if live[l.FBus()] == live[l.TBus()] {
			continue
		}
		ds := l.Disconnectors()
		for _, id := range ds {
			sw := f.ps.Switch(id)
			if is := f.ps.IntelligentSwitch(sw.IntelligentSwitch()); is != nil {
				is.Close()
				continue
			}
			sw.Close()
		}
		if len(ds) == 0 {
			l.Connect()
		}
		log.Debug().Str("controller", f.cfg.Name).Str("line", l.Name()).Msg("backup line engaged")
	}
}

func (f *feeder) disengageBackups() {
	for _, l := range f.network.BackupLines() {
		if !l.Connected() {
			continue
		}
		ds := l.Disconnectors()
		for _, id := range ds {
			f.ps.Switch(id).Open()
		}
		if len(ds) == 0 {
			l.Disconnect()
		}
	}
}

// upstreamSupplied reports whether the bus feeding the network is reachable
// from the slack bus.
func (f *feeder) upstreamSupplied() bool {
	slack := f.ps.SlackBus()
	if slack == powersystem.NoBus {
		return false
	}
	return f.ps.Reachable(f.network.UpstreamBus())[slack]
}

func (f *feeder) reset(save bool) {
	f.sectioningTime = simtime.Hours(0)
	f.locating = false
	f.failed = nil
	f.history = nil
	if save {
		f.history = history.New()
	}
}

func (f *feeder) record() {
	f.history.Record("sectioning_time", f.sectioningTime.Hours())
	f.history.RecordBool("locating", f.locating)
	f.history.Record("failed_sections", float64(len(f.failed)))
}
