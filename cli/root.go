// Package cli implements the panpipe command line.
package cli

import (
	"context"
	"os"

	"cryogon/panpipe/config"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile    string
	configFile string
	cfg        config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "panpipe",
		Short:         "A local music player that learns what you like",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile, opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Load environment variables from this file if it exists")
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Read settings from a TOML or YAML file")

	cmd.AddCommand(
		newServeCmd(opts),
		newTUICmd(opts),
		newStatsCmd(opts),
		newShuffleCmd(opts),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
