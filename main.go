// Command tvloop runs the video loop appliance: the HTTP API for the playback
// frontend and admin pages, the rotary encoder bridge and library maintenance.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every command needs once flags are parsed.
type app struct {
	configFile string
	debug      bool

	config *cfgMain
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "tvloop",
		Short:         "Loop a tagged video catalog on a TV, one channel at a time",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default tvloop.yaml in ., /etc/tvloop or $HOME/.config/tvloop)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "development logging at debug level")
	addConfigFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newEncoderCmd(a))
	rootCmd.AddCommand(newSyncCmd(a))
	return rootCmd
}

// init builds the logger and loads the configuration.
func (a *app) init(cmd *cobra.Command) error {
	var err error
	if a.debug {
		a.logger, err = zap.NewDevelopment()
	} else {
		a.logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	a.config, err = loadConfig(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	a.logger.Debug("configuration loaded", zap.Any("config", a.config))
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "tvloop:", err)
		os.Exit(1)
	}
}
