package controller

import (
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// ManualMainController never fails and always drives the distributions
// with field crews. A positive sectioning time replaces the crew time of
// every controller below it.
type ManualMainController struct {
	name           string
	sectioningTime simtime.Time
	ps             *powersystem.PowerSystem
}

func NewManualMainController(name string, sectioningTime simtime.Time) *ManualMainController {
	if name == "" {
		name = "manual_main_controller"
	}
	return &ManualMainController{name: name, sectioningTime: sectioningTime}
}

func (m *ManualMainController) Name() string { return m.name }

func (m *ManualMainController) Attach(ps *powersystem.PowerSystem) { m.ps = ps }

func (m *ManualMainController) UpdateFailStatus(dt simtime.Time) {}

// SectioningTime is the fixed crew time, zero when the controllers keep their own
func (m *ManualMainController) SectioningTime() simtime.Time { return m.sectioningTime }

func (m *ManualMainController) RunControlLoop(curr, dt simtime.Time) {
	for _, dc := range m.distributions() {
		if m.sectioningTime.Positive() {
			dc.setManualSectioningTime(m.sectioningTime)
			for _, mc := range dc.Microgrids() {
				mc.setManualSectioningTime(m.sectioningTime)
			}
		}
		dc.RunManualControlLoop(curr, dt)
	}
}

func (m *ManualMainController) distributions() []*DistributionController {
	var out []*DistributionController
	for _, n := range m.ps.Distributions() {
		if dc, ok := n.Controller().(*DistributionController); ok {
			out = append(out, dc)
		}
	}
	return out
}

func (m *ManualMainController) ResetStatus(save bool) {
	for _, dc := range m.distributions() {
		dc.ResetStatus(save)
	}
}

func (m *ManualMainController) UpdateHistory() {
	for _, dc := range m.distributions() {
		dc.UpdateHistory()
	}
}
