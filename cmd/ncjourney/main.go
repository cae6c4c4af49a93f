// ncjourney drives the Nextcloud Files journey in a real browser: log in,
// upload, share, download through the public link, verify and delete.
//
// Usage:
//
//	ncjourney [chromium|firefox]
//	ncjourney matrix
//	ncjourney fixture [path] [--size=N]
//	ncjourney locators
package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ncjourney [chromium|firefox]",
		Short: "Run the Nextcloud Files journey in a browser",
		Long: "ncjourney logs in to Nextcloud, uploads a file, shares it, downloads it\n" +
			"through the share link in a fresh browser, checks its size and deletes it.",
		Args:    engineArgs,
		RunE:    func(cmd *cobra.Command, args []string) error { return runJourney(cmd, opts, args) },
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	opts.bind(root)

	root.AddCommand(newMatrixCmd(opts))
	root.AddCommand(newFixtureCmd(opts))
	root.AddCommand(newLocatorsCmd(opts))
	return root
}

// run executes the root command and returns the exit code. cobra reports
// the error on stderr.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
