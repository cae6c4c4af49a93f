package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ncjourney/internal/browser"
	"ncjourney/internal/format"
	"ncjourney/internal/nextcloud"
)

func newMatrixCmd(opts *rootOptions) *cobra.Command {
	var engines []string
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Run the journey on every engine concurrently",
		Long: "Each engine gets its own browsers and its own uploaded file. A failure\n" +
			"on one engine does not stop the others.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error { return runMatrix(cmd, opts, engines) },
	}
	names := make([]string, 0, len(browser.Kinds()))
	for _, k := range browser.Kinds() {
		names = append(names, string(k))
	}
	cmd.Flags().StringSliceVar(&engines, "engines", names, "Engines to run")
	return cmd
}

func runMatrix(cmd *cobra.Command, opts *rootOptions, engineNames []string) error {
	mode, err := format.ParseMode(opts.report)
	if err != nil {
		return err
	}
	var engines []browser.Kind
	for _, name := range engineNames {
		k, err := browser.ParseKind(name)
		if err != nil {
			return err
		}
		engines = append(engines, k)
	}
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	l, closeLauncher := newLauncher(cfg)
	defer func() { _ = closeLauncher() }()
	tel := startTelemetry(ctx, cfg)

	var (
		mu       sync.Mutex
		outcomes = make(map[browser.Kind]*nextcloud.Outcome, len(engines))
		failures []error
	)
	// Plain Group: one engine failing must not cancel the others.
	var g errgroup.Group
	for _, engine := range engines {
		g.Go(func() error {
			j, err := newJourney(cfg, engine, l, tel)
			if err != nil {
				return err
			}
			out, err := j.Run(ctx)
			mu.Lock()
			defer mu.Unlock()
			outcomes[engine] = out
			if err != nil {
				failures = append(failures, fmt.Errorf("%s journey: %w", engine, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	t := format.NewTable(mode)
	t.Header("Engine", "Steps", "Download", "Bytes", "OK")
	t.AlignRight(4)
	for _, engine := range engines {
		out := outcomes[engine]
		printOutcome(cmd, out, mode)
		var steps, dl int
		var size int64
		if out.Main != nil {
			steps = len(out.Main.CompletedSteps)
		}
		if out.Download != nil {
			dl = len(out.Download.CompletedSteps)
		}
		if out.Artifact != nil {
			size = out.Artifact.ByteSize
		}
		t.Row(engine, steps, dl, size, format.Mark(out.OK()))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.String())
	return errors.Join(failures...)
}
