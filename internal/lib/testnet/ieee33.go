package testnet

import (
	"fmt"

	"github.com/ohowland/relsim/internal/pkg/powersystem"
	"github.com/ohowland/relsim/internal/pkg/simtime"
)

// ieee33Lines lists the 32 feeder branches as from, to, R and X in ohm.
// Branch i feeds bus i+1.
var ieee33Lines = [][4]float64{
	{1, 2, 0.0922, 0.0470}, {2, 3, 0.4930, 0.2511}, {3, 4, 0.3660, 0.1864},
	{4, 5, 0.3811, 0.1941}, {5, 6, 0.8190, 0.7070}, {6, 7, 0.1872, 0.6188},
	{7, 8, 0.7114, 0.2351}, {8, 9, 1.0300, 0.7400}, {9, 10, 1.0440, 0.7400},
	{10, 11, 0.1966, 0.0650}, {11, 12, 0.3744, 0.1238}, {12, 13, 1.4680, 1.1550},
	{13, 14, 0.5416, 0.7129}, {14, 15, 0.5910, 0.5260}, {15, 16, 0.7463, 0.5450},
	{16, 17, 1.2890, 1.7210}, {17, 18, 0.7320, 0.5740}, {2, 19, 0.1640, 0.1565},
	{19, 20, 1.5042, 1.3554}, {20, 21, 0.4095, 0.4784}, {21, 22, 0.7089, 0.9373},
	{3, 23, 0.4512, 0.3083}, {23, 24, 0.8980, 0.7091}, {24, 25, 0.8960, 0.7011},
	{6, 26, 0.2030, 0.1034}, {26, 27, 0.2842, 0.1447}, {27, 28, 1.0590, 0.9337},
	{28, 29, 0.8042, 0.7006}, {29, 30, 0.5075, 0.2585}, {30, 31, 0.9744, 0.9630},
	{31, 32, 0.3105, 0.3619}, {32, 33, 0.3410, 0.5302},
}

// ieee33Ties are the normally open tie lines kept as backups, numbered as
// in the original case.
var ieee33Ties = map[int][4]float64{
	34: {9, 15, 2.0, 2.0},
	36: {18, 33, 0.5, 0.5},
	37: {25, 29, 0.5, 0.5},
}

// ieee33Loads holds P in kW and Q in kVAr for buses 2 to 33
var ieee33Loads = [][2]float64{
	{100, 60}, {90, 40}, {120, 80}, {60, 30}, {60, 20}, {200, 100}, {200, 100},
	{60, 20}, {60, 20}, {45, 30}, {60, 35}, {60, 35}, {120, 80}, {60, 10},
	{60, 20}, {60, 20}, {90, 40}, {90, 40}, {90, 40}, {90, 40}, {90, 40},
	{90, 50}, {420, 200}, {420, 200}, {60, 25}, {60, 25}, {60, 20}, {120, 70},
	{200, 600}, {150, 70}, {210, 100}, {60, 40},
}

// ieee33Disconnectors places a disconnector on line L<k> at bus B<v>
var ieee33Disconnectors = [][2]int{
	{2, 2}, {22, 3}, {6, 6}, {25, 6}, {9, 9}, {14, 14}, {29, 29},
	{19, 19}, {34, 9}, {36, 18}, {37, 25},
}

// IEEE33 builds the IEEE 33 bus feeder. The lateral B19-B22 is a microgrid
// fed through L18 with a battery on B19; the remaining buses form the
// distribution network fed through L1.
func IEEE33(opts Options) (*powersystem.PowerSystem, error) {
	opts, err := opts.withDefaults(4)
	if err != nil {
		return nil, err
	}
	mode, err := powersystem.ParseMicrogridMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	g, err := newGrid(powersystem.Config{Name: "ieee33", SRef: 1, VRef: 12.66}, opts)
	if err != nil {
		return nil, err
	}

	buses := []busSpec{{name: "B1", slack: true}}
	for i, pq := range ieee33Loads {
		buses = append(buses, busSpec{
			name: fmt.Sprintf("B%d", i+2),
			p:    pq[0] / 1000,
			q:    pq[1] / 1000,
			n:    int(pq[0] / 10),
		})
	}
	var lines []lineSpec
	for i, l := range ieee33Lines {
		lines = append(lines, lineSpec{
			name:   fmt.Sprintf("L%d", i+1),
			from:   fmt.Sprintf("B%d", int(l[0])),
			to:     fmt.Sprintf("B%d", int(l[1])),
			r:      l[2],
			x:      l[3],
			length: 1,
		})
	}
	for _, k := range []int{34, 36, 37} {
		l := ieee33Ties[k]
		lines = append(lines, lineSpec{
			name:   fmt.Sprintf("L%d", k),
			from:   fmt.Sprintf("B%d", int(l[0])),
			to:     fmt.Sprintf("B%d", int(l[1])),
			r:      l[2],
			x:      l[3],
			length: 1,
			backup: true,
		})
	}
	switches := []switchSpec{
		{name: "E1", line: "L1"},
		{name: "E2", line: "L18"},
	}
	for _, d := range ieee33Disconnectors {
		switches = append(switches, switchSpec{
			name: fmt.Sprintf("D%d_%d", d[0], d[1]),
			line: fmt.Sprintf("L%d", d[0]),
			bus:  fmt.Sprintf("B%d", d[1]),
		})
	}

	if err := g.addBuses(buses); err != nil {
		return nil, err
	}
	if _, err := g.ps.NewBattery(powersystem.BatteryConfig{
		Name: "BAT19",
		StorageConfig: powersystem.StorageConfig{
			InjPMax:    1,
			InjQMax:    0.5,
			EMax:       3,
			SOCMin:     0.1,
			SOCMax:     1,
			Efficiency: 0.95,
		},
		SurvivalTime: simtime.Hours(4),
	}, g.buses["B19"]); err != nil {
		return nil, err
	}
	if err := g.addLines(lines); err != nil {
		return nil, err
	}
	if err := g.addSwitches(switches); err != nil {
		return nil, err
	}

	trans, err := powersystem.NewTransmission(g.ps, g.buses["B1"])
	if err != nil {
		return nil, err
	}
	dist, err := powersystem.NewDistribution(trans, g.lines["L1"])
	if err != nil {
		return nil, err
	}
	dist.SetName("dist")

	var distBuses, distLines []string
	for i := 2; i <= 33; i++ {
		if i < 19 || i > 22 {
			distBuses = append(distBuses, fmt.Sprintf("B%d", i))
		}
	}
	for i := 2; i <= 37; i++ {
		if (i >= 18 && i <= 21) || i == 33 || i == 35 {
			continue
		}
		distLines = append(distLines, fmt.Sprintf("L%d", i))
	}
	if err := g.attach(dist, distBuses, distLines); err != nil {
		return nil, err
	}
	mg, err := powersystem.NewMicrogrid(dist, g.lines["L18"], mode)
	if err != nil {
		return nil, err
	}
	mg.SetName("mg")
	if err := g.attach(mg, names("B", 19, 22), names("L", 19, 21)); err != nil {
		return nil, err
	}
	if err := g.controllers(dist); err != nil {
		return nil, err
	}
	return g.ps, nil
}
