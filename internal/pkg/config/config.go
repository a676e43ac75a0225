// Package config loads the run configuration from a YAML file with RELSIM_
// environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/ohowland/relsim/internal/pkg/loadflow"
	"github.com/ohowland/relsim/internal/pkg/simtime"
	"github.com/ohowland/relsim/internal/pkg/simulation"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment overrides, e.g. RELSIM_SIMULATION_ITERATIONS
const EnvPrefix = "RELSIM"

type Config struct {
	Scenario   string          `mapstructure:"scenario"`
	Simulation Simulation      `mapstructure:"simulation"`
	LoadFlow   loadflow.Config `mapstructure:"load_flow"`
	Log        Log             `mapstructure:"log"`
	Sinks      Sinks           `mapstructure:"sinks"`
	Web        Web             `mapstructure:"web"`
}

// Simulation mirrors simulation.MonteCarloOptions
type Simulation struct {
	Iterations     int     `mapstructure:"iterations"`
	Start          float64 `mapstructure:"start"`
	Stop           float64 `mapstructure:"stop"`
	TimeStep       float64 `mapstructure:"time_step"`
	TimeUnit       string  `mapstructure:"time_unit"`
	SaveIterations []int   `mapstructure:"save_iterations"`
	SaveDir        string  `mapstructure:"save_dir"`
	SaveFlag       bool    `mapstructure:"save_flag"`
	NProcs         int     `mapstructure:"nprocs"`
	Debug          bool    `mapstructure:"debug"`
	RandomSeed     uint64  `mapstructure:"random_seed"`
	StartHour      int     `mapstructure:"start_hour"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Sinks name the JSON handler configs of the optional result sinks. Empty
// disables a sink.
type Sinks struct {
	SQL   string `mapstructure:"sql"`
	Mongo string `mapstructure:"mongo"`
	NATS  string `mapstructure:"nats"`
}

type Web struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("simulation.iterations", 100)
	v.SetDefault("simulation.start", 0)
	v.SetDefault("simulation.stop", 8760)
	v.SetDefault("simulation.time_step", 1)
	v.SetDefault("simulation.time_unit", "h")
	v.SetDefault("simulation.save_dir", "results")
	v.SetDefault("simulation.save_flag", false)
	v.SetDefault("simulation.nprocs", 0)
	v.SetDefault("simulation.random_seed", 0)
	v.SetDefault("load_flow.max_it", loadflow.DefaultMaxIt)
	v.SetDefault("load_flow.pq_cost_ratio", loadflow.DefaultPQCostRatio)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("web.addr", ":8080")
	// unset keys are invisible to AutomaticEnv during Unmarshal
	v.SetDefault("scenario", "")
	v.SetDefault("sinks.sql", "")
	v.SetDefault("sinks.mongo", "")
	v.SetDefault("sinks.nats", "")
}

// Load reads path, or only defaults and environment when path is empty
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// MonteCarloOptions converts the simulation section
func (c Config) MonteCarloOptions() (simulation.MonteCarloOptions, error) {
	s := c.Simulation
	unit, err := simtime.ParseUnit(s.TimeUnit)
	if err != nil {
		return simulation.MonteCarloOptions{}, err
	}
	return simulation.MonteCarloOptions{
		Iterations:     s.Iterations,
		Start:          s.Start,
		Stop:           s.Stop,
		TimeStep:       s.TimeStep,
		TimeUnit:       unit,
		SaveIterations: s.SaveIterations,
		SaveDir:        s.SaveDir,
		SaveFlag:       s.SaveFlag,
		NProcs:         s.NProcs,
		Debug:          s.Debug,
		RandomSeed:     s.RandomSeed,
		StartHour:      s.StartHour,
	}, nil
}
