package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ncjourney/internal/config"
	"ncjourney/internal/nextcloud"
)

func newLocatorsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "locators",
		Short: "Print the effective locator table as YAML",
		Long:  "Prints the built-in locators merged with locators_file, in the format\nlocators_file accepts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			locs := nextcloud.DefaultLocators()
			if cfg.LocatorsFile != "" {
				if locs, err = nextcloud.LoadLocatorsFromPath(cfg.LocatorsFile); err != nil {
					return err
				}
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(locs); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
