package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"ncjourney/internal/format"
)

func runJourney(cmd *cobra.Command, opts *rootOptions, args []string) error {
	mode, err := format.ParseMode(opts.report)
	if err != nil {
		return err
	}
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	engine := engineFrom(args)
	l, closeLauncher := newLauncher(cfg)
	defer func() { _ = closeLauncher() }()

	j, err := newJourney(cfg, engine, l, startTelemetry(ctx, cfg))
	if err != nil {
		return err
	}
	out, err := j.Run(ctx)
	printOutcome(cmd, out, mode)
	if err != nil {
		return fmt.Errorf("%s journey: %w", engine, err)
	}
	return nil
}
