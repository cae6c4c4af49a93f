package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ncjourney/internal/config"
	"ncjourney/internal/fixture"
)

func newFixtureCmd(opts *rootOptions) *cobra.Command {
	var size int64
	cmd := &cobra.Command{
		Use:   "fixture [path]",
		Short: "Write the random-letter upload fixture",
		Long:  "Writes the upload fixture to path, or to the configured fixture_path.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			path := cfg.FixturePath
			if len(args) == 1 {
				path = args[0]
			}
			if err := fixture.Write(path, size); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fixture: %s (%d bytes)\n", path, size)
			return nil
		},
	}
	cmd.Flags().Int64Var(&size, "size", fixture.DefaultSize, "Fixture size in bytes")
	return cmd
}
