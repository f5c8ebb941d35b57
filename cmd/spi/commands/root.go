package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return newRootCommand(version, commit, buildDate).ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spi",
		Short: "OCR4all service provider host",
		Long: `spi loads the service providers declared in a host configuration,
drives their lifecycle and runs their processors against workflow sandboxes.

Configurations are written in CUE or YAML. Providers declaring a command run
it as an external process; premises are decided by Rego policies and the
provider journals and executions are archived in SQLite.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "spi.cue", "host configuration file or directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newProvidersCommand())
	rootCmd.AddCommand(newExecCommand())
	rootCmd.AddCommand(newJournalCommand())
	rootCmd.AddCommand(newTrackCommand())
	rootCmd.AddCommand(newPremiseCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
