package controller

import (
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// DistributionController manages faults on one distribution network and
// drives the controllers of its microgrids.
type DistributionController struct {
	feeder
}

// NewDistributionController attaches a controller to distribution network n
func NewDistributionController(cfg Config, n *powersystem.Network) (*DistributionController, error) {
	f, err := newFeeder(cfg, n, powersystem.DistributionNetwork)
	if err != nil {
		return nil, err
	}
	c := &DistributionController{feeder: f}
	n.SetController(c)
	return c, nil
}

// Microgrids returns the controllers of the child microgrids in registration order
func (c *DistributionController) Microgrids() []*MicrogridController {
	var out []*MicrogridController
	for _, mg := range c.network.Microgrids() {
		if mc, ok := mg.Controller().(*MicrogridController); ok {
			out = append(out, mc)
		}
	}
	return out
}

// RunControlLoop runs one tick using sensors and intelligent switches where
// they are reachable.
func (c *DistributionController) RunControlLoop(curr, dt simtime.Time) {
	c.run(curr, dt, false)
}

// RunManualControlLoop runs one tick with field crews only
func (c *DistributionController) RunManualControlLoop(curr, dt simtime.Time) {
	c.run(curr, dt, true)
}

func (c *DistributionController) run(curr, dt simtime.Time, manual bool) {
	c.step(dt, manual, func() bool { return true }, nil, nil)
	for _, mc := range c.Microgrids() {
		if mc.network.FeederBreaker().IsOpen() {
			mc.SetParentSectioningTime(c.sectioningTime)
		}
	}
	for _, mc := range c.Microgrids() {
		if manual {
			mc.RunManualControlLoop(curr, dt)
			continue
		}
		mc.RunControlLoop(curr, dt)
	}
}

func (c *DistributionController) ResetStatus(save bool) {
	c.reset(save)
	for _, mc := range c.Microgrids() {
		mc.ResetStatus(save)
	}
}

func (c *DistributionController) UpdateHistory() {
	c.record()
	for _, mc := range c.Microgrids() {
		mc.UpdateHistory()
	}
}
