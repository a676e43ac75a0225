// Command relsim runs sequential Monte-Carlo reliability studies of radial
// distribution networks and serves their results.
package main

import (
	"fmt"
	"os"

	"github.com/ohowland/relsim/internal/pkg/config"
	"github.com/ohowland/relsim/internal/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relsim",
		Short: "relsim - reliability simulation of distribution networks with microgrids",
		Long: `relsim samples component failures hour by hour over a radial distribution
network, lets microgrids, batteries and EV parks ride through the outages and
reports SAIFI, SAIDI, CAIDI, ENS and interruption cost over many replications.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(cfgFile); err != nil {
				return err
			}
			return logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and RELSIM_* environment when empty)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
