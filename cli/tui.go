package cli

import (
	"cryogon/panpipe/logger"
	"cryogon/panpipe/tui"

	"github.com/spf13/cobra"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal client of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			closer, err := logger.Setup(opts.cfg.LogLevel, false, logFile)
			if err != nil {
				return err
			}
			defer closer.Close()

			return tui.Run(opts.cfg.SocketPath)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "panpipe-tui.log", "Write logs here while the terminal UI is open")
	return cmd
}
