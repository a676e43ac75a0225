package powersystem

import (
	"fmt"

	"github.com/ohowland/relsim/internal/pkg/history"
)

// SectionState tells whether a section is in service
type SectionState int

const (
	SectionConnected SectionState = iota
	SectionDisconnected
)

// Section is a maximal set of lines bounded by disconnectors
type Section struct {
	id       SectionID
	ps       *PowerSystem
	network  NetworkID
	parent   SectionID
	children []SectionID
	lines    []LineID
	state    SectionState
	history  *history.Log
}

func (s *Section) ID() SectionID { return s.id }
func (s *Section) Network() NetworkID { return s.network }
func (s *Section) Parent() SectionID { return s.parent }
func (s *Section) Children() []SectionID { return s.children }
func (s *Section) Lines() []LineID { return s.lines }
func (s *Section) State() SectionState { return s.state }
func (s *Section) History() *history.Log { return s.history }

// Name identifies the section by its network and first line
func (s *Section) Name() string {
	first := "empty"
	if len(s.lines) > 0 {
		first = s.ps.lines[s.lines[0]].Name()
	}
	return fmt.Sprintf("%s:S(%s)", s.ps.networks[s.network].Name(), first)
}

func (s *Section) add(l *Line) {
	s.lines = append(s.lines, l.id)
	l.section = s.id
}

// Disconnectors are the disconnectors owned by the section's lines. A
// disconnector that sits on a neighbouring section's line at a shared bus
// belongs to that neighbour only, since opening it takes the neighbour's
// line out as well. Disconnect opens exactly this set.
func (s *Section) Disconnectors() []SwitchID {
	var out []SwitchID
	for _, id := range s.lines {
		out = append(out, s.ps.lines[id].disconnectors...)
	}
	return out
}

// Sensors are the sensors of the section's lines
func (s *Section) Sensors() []SensorID {
	var out []SensorID
	for _, id := range s.lines {
		if sid := s.ps.lines[id].sensor; sid != NoSensor {
			out = append(out, sid)
		}
	}
	return out
}

// FullySensed reports whether every line of the section carries a sensor
func (s *Section) FullySensed() bool {
	for _, id := range s.lines {
		if s.ps.lines[id].sensor == NoSensor {
			return false
		}
	}
	return len(s.lines) > 0
}

// FailedLines lists the failed lines of the section
func (s *Section) FailedLines() []LineID {
	var out []LineID
	for _, id := range s.lines {
		if s.ps.lines[id].failed {
			out = append(out, id)
		}
	}
	return out
}

func (s *Section) HasFailedLine() bool {
	return len(s.FailedLines()) > 0
}

// Disconnect opens every disconnector of the section and takes its lines out
func (s *Section) Disconnect() {
	s.state = SectionDisconnected
	for _, id := range s.lines {
		l := s.ps.lines[id]
		for _, did := range l.disconnectors {
			s.ps.switches[did].Open()
		}
		l.Disconnect()
	}
}

// Connect closes the disconnectors of the section and reconnects its healthy
// lines. Backup lines are left as they are.
func (s *Section) Connect() {
	s.state = SectionConnected
	for _, id := range s.lines {
		l := s.ps.lines[id]
		if l.IsBackup() {
			continue
		}
		for _, did := range l.disconnectors {
			sw := s.ps.switches[did]
			if !sw.isOpen {
				continue
			}
			if sw.iswitch != NoISwitch {
				s.ps.iswitches[sw.iswitch].Close()
				continue
			}
			sw.Close()
		}
		l.Connect()
	}
}

func (s *Section) ResetStatus(save bool) {
	s.state = SectionConnected
	s.history = nil
	if save {
		s.history = history.New()
	}
}

func (s *Section) UpdateHistory() {
	s.history.Record("state", float64(s.state))
}
