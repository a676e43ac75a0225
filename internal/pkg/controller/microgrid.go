package controller

import (
	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// MicrogridController manages faults inside a microgrid and decides when the
// microgrid rejoins its distribution network.
type MicrogridController struct {
	feeder
}

// NewMicrogridController attaches a controller to microgrid n
func NewMicrogridController(cfg Config, n *powersystem.Network) (*MicrogridController, error) {
	f, err := newFeeder(cfg, n, powersystem.MicrogridNetwork)
	if err != nil {
		return nil, err
	}
	c := &MicrogridController{feeder: f}
	n.SetController(c)
	return c, nil
}

func (c *MicrogridController) Mode() powersystem.MicrogridMode { return c.network.Mode() }

func (c *MicrogridController) RunControlLoop(curr, dt simtime.Time) {
	c.step(dt, false, c.mayReclose, c.islanded, c.reconnected)
}

func (c *MicrogridController) RunManualControlLoop(curr, dt simtime.Time) {
	c.step(dt, true, c.mayReclose, c.islanded, c.reconnected)
}

// mayReclose holds a SURVIVAL microgrid islanded while its parent still has
// a failed line. No mode reconnects to a de-energised parent.
func (c *MicrogridController) mayReclose() bool {
	if !c.upstreamSupplied() {
		return false
	}
	if c.Mode() == powersystem.Survival && c.network.Parent().HasFailedLine() {
		return false
	}
	return true
}

func (c *MicrogridController) batteries() []*powersystem.Battery {
	var out []*powersystem.Battery
	for _, b := range c.network.Buses() {
		if bat := c.ps.Battery(b.Battery()); bat != nil {
			out = append(out, bat)
		}
	}
	return out
}

func (c *MicrogridController) islanded() {
	if c.Mode() != powersystem.Survival {
		return
	}
	load := c.network.MaxLoad()
	for _, b := range c.batteries() {
		b.StartSurvival(load)
	}
}

func (c *MicrogridController) reconnected() {
	for _, b := range c.batteries() {
		b.StopSurvival()
	}
}

func (c *MicrogridController) ResetStatus(save bool) { c.reset(save) }

func (c *MicrogridController) UpdateHistory() { c.record() }
