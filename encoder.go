package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erikbos/tvloop/database"
	"github.com/erikbos/tvloop/input"
	"github.com/erikbos/tvloop/mailbox"
	"github.com/erikbos/tvloop/remote"
)

func newEncoderCmd(a *app) *cobra.Command {
	var stdin bool
	cmd := &cobra.Command{
		Use:   "encoder",
		Short: "Turn rotary encoder events into channel, volume and menu actions",
		Long: "Starts the hardware reader (encoder.command) and feeds the events it prints,\n" +
			"one per line (ROTARY_CW, ROTARY_CCW, BTN_PRESS, BTN_RELEASE), into the gesture machine.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.encoder(cmd.Context(), stdin)
		},
	}
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read events from stdin instead of starting the reader")
	return cmd
}

func (a *app) encoder(ctx context.Context, stdin bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := a.logger
	c := a.config

	// play counters stay with the server, json documents suffice.
	repo, err := database.New(&database.Config{
		Dir:             c.Content.Dir,
		FallbackChannel: c.Channels.Fallback,
	}, logger.Named("database"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.State.Dir, 0o755); err != nil {
		return err
	}
	mb := mailbox.New(&mailbox.Options{Dir: c.State.Dir, Logger: logger})

	machine := input.New(&input.Options{
		Emitter:       remote.New(&remote.Options{Repo: repo, Mailbox: mb, Logger: logger}),
		MenuOpen:      mb.MenuOpen,
		VolumeTimeout: c.Encoder.VolumeTimeout,
		VolumeStep:    c.Encoder.VolumeStep,
		Logger:        logger,
	})

	if stdin {
		logger.Info("reading encoder events from stdin")
		return ignoreCanceled(machine.Run(ctx, os.Stdin))
	}
	return runReader(ctx, logger, c.Encoder.Command, machine)
}

// runReader starts the hardware reader and feeds its output into machine
// until the reader exits or ctx is done.
func runReader(ctx context.Context, logger *zap.Logger, command string, machine *input.Machine) error {
	cmd := exec.CommandContext(ctx, command)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting encoder reader: %w", err)
	}
	logger.Info("encoder reader started", zap.String("command", command), zap.Int("pid", cmd.Process.Pid))

	runErr := machine.Run(ctx, stdout)
	if runErr != nil {
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		logger.Info("encoder stopped")
		return nil
	}
	if runErr != nil {
		return runErr
	}
	if waitErr != nil {
		return fmt.Errorf("encoder reader: %w", waitErr)
	}
	logger.Warn("encoder reader exited")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
