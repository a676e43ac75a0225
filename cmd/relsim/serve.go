package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/ohowland/relsim/internal/pkg/database/sqldb"
	"github.com/ohowland/relsim/internal/pkg/logging"
	"github.com/ohowland/relsim/internal/pkg/msg"
	"github.com/ohowland/relsim/internal/pkg/webservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs and result tables over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Web.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			publisher := msg.NewPublisher(uuid.New())
			defer publisher.Close()

			var store webservice.Store
			if path := cfg.Sinks.SQL; path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				h, err := sqldb.New(data, publisher)
				if err != nil {
					return err
				}
				defer h.Close()
				store = h
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			logging.Component("main").Info().Str("save_dir", cfg.Simulation.SaveDir).Msg("serving results")
			app := webservice.New(webservice.Config{Addr: addr, SaveDir: cfg.Simulation.SaveDir}, store, reg, nil)
			return app.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides the config)")

	return cmd
}
