package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/database/mongodb"
	"github.com/ohowland/relsim/internal/pkg/database/sqldb"
	"github.com/ohowland/relsim/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/relsim/internal/pkg/logging"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/scenario"
	"github.com/ohowland/relsim/internal/pkg/simulation"
	"github.com/ohowland/relsim/internal/pkg/webservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var scenarioPath string
	var iterations, nprocs int
	var serve bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Monte-Carlo reliability study of a scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scenarioPath == "" {
				scenarioPath = cfg.Scenario
			}
			if scenarioPath == "" {
				return errors.New("no scenario: pass --scenario or set scenario in the config")
			}
			opts, err := cfg.MonteCarloOptions()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("iterations") {
				opts.Iterations = iterations
			}
			if cmd.Flags().Changed("nprocs") {
				opts.NProcs = nprocs
			}

			sc, err := scenario.Load(scenarioPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.Component("main")
			publisher := msg.NewPublisher(uuid.New())
			defer publisher.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			metrics := simulation.NewMetrics(reg)

			sinks, err := startSinks(publisher, log)
			defer sinks.stop()
			if err != nil {
				return err
			}

			if serve {
				app := webservice.New(webservice.Config{Addr: cfg.Web.Addr, SaveDir: opts.SaveDir},
					sinks.store, reg, publisher)
				webCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					if err := app.ListenAndServe(webCtx); err != nil {
						log.Error().Err(err).Msg("webservice")
					}
				}()
			}

			opts.Progress = progressLogger(log, opts.Iterations)
			sim := simulation.New(sc.Build,
				simulation.WithLoadFlow(cfg.LoadFlow),
				simulation.WithPublisher(publisher),
				simulation.WithMetrics(metrics),
			)
			log.Info().Str("scenario", scenarioPath).Int("iterations", opts.Iterations).Msg("starting run")
			res, err := sim.RunMonteCarlo(ctx, opts)
			if err != nil {
				return err
			}
			log.Info().
				Str("run_id", res.RunID.String()).
				Int("failed", res.Failed).
				Float64("saifi", res.Mean.SAIFI).
				Float64("saidi", res.Mean.SAIDI).
				Msg("run finished")

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				RunID    uuid.UUID                     `json:"run_id"`
				System   string                        `json:"system"`
				Failed   int                           `json:"failed"`
				Mean     simulation.Indices            `json:"mean"`
				StdDev   simulation.Indices            `json:"std_dev"`
				Networks map[string]simulation.Indices `json:"networks"`
			}{res.RunID, res.System, res.Failed, res.Mean, res.StdDev, res.Networks})
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (overrides the config)")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 0, "number of replications (overrides the config)")
	cmd.Flags().IntVarP(&nprocs, "nprocs", "j", 0, "worker count (overrides the config)")
	cmd.Flags().BoolVar(&serve, "serve", false, "serve progress, metrics and tables while running")

	return cmd
}

// progressLogger logs roughly every tenth of the run
func progressLogger(log zerolog.Logger, total int) func(simulation.Progress) {
	every := total / 10
	if every < 1 {
		every = 1
	}
	return func(p simulation.Progress) {
		if p.Failed {
			log.Warn().Int("iteration", p.Iteration).Msg("replication failed")
		}
		if p.Done%every == 0 || p.Done == p.Total {
			log.Info().Int("done", p.Done).Int("total", p.Total).Msg("progress")
		}
	}
}

// sinkSet holds the running result sinks
type sinkSet struct {
	store    webservice.Store
	shutdown []func()
}

// stop shuts the sinks down in reverse start order
func (s *sinkSet) stop() {
	for i := len(s.shutdown) - 1; i >= 0; i-- {
		s.shutdown[i]()
	}
}

// run starts process in a goroutine and registers a shutdown that stops it
// unless it already returned on its own.
func (s *sinkSet) run(log zerolog.Logger, name string, process func() error, stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := process(); err != nil {
			log.Error().Err(err).Str("sink", name).Msg("sink stopped")
		}
	}()
	s.shutdown = append(s.shutdown, func() {
		select {
		case <-done:
		default:
			stop()
			<-done
		}
	})
}

func readSinkConfig(kind, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s sink: %w", kind, err)
	}
	return data, nil
}

// startSinks starts every sink named in the config. On error the sinks
// started so far are still returned for stopping.
func startSinks(publisher *msg.PubSub, log zerolog.Logger) (*sinkSet, error) {
	s := &sinkSet{}
	if path := cfg.Sinks.SQL; path != "" {
		data, err := readSinkConfig("sql", path)
		if err != nil {
			return s, err
		}
		h, err := sqldb.New(data, publisher)
		if err != nil {
			return s, err
		}
		s.store = h
		s.shutdown = append(s.shutdown, func() {
			if err := h.Close(); err != nil {
				log.Warn().Err(err).Msg("close sql sink")
			}
		})
		s.run(log, "sql", func() error { h.Process(); return nil }, h.Stop)
	}
	if path := cfg.Sinks.Mongo; path != "" {
		data, err := readSinkConfig("mongo", path)
		if err != nil {
			return s, err
		}
		h, err := mongodb.New(data, publisher)
		if err != nil {
			return s, err
		}
		s.run(log, "mongo", h.Process, h.StopProcess)
	}
	if path := cfg.Sinks.NATS; path != "" {
		data, err := readSinkConfig("nats", path)
		if err != nil {
			return s, err
		}
		h, err := natshandler.New(data, publisher)
		if err != nil {
			return s, err
		}
		s.run(log, "nats", h.Process, h.Stop)
	}
	return s, nil
}
