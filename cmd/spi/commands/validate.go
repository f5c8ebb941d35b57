package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ocr4all/spi/pkg/config"
)

func newValidateCommand() *cobra.Command {
	var (
		printConfig bool
		schema      bool
	)

	cmd := &cobra.Command{
		Use:   "validate [source...]",
		Short: "Validate host configurations",
		Long: `Validate CUE and YAML host configurations against the host schema and the
field rules. All sources are unified into one configuration; a directory
contributes its .cue, .yaml and .json files.`,
		Example: `  # Validate the configuration given with --config
  spi validate

  # Validate and print the resolved configuration
  spi validate --print ./host.cue ./providers.yaml

  # Print the schema
  spi validate --schema`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if schema {
				fmt.Fprint(out, config.Schema())
				return nil
			}

			sources := args
			if len(sources) == 0 {
				sources = []string{configPath}
			}
			log.Debug().Strs("sources", sources).Msg("Validating configuration")

			cfg, err := config.LoadFile(cmd.Context(), sources...)
			if err != nil {
				var errs config.ValidationErrors
				if errors.As(err, &errs) {
					if jsonOutput {
						_ = printJSON(out, errs)
					} else {
						for _, e := range errs {
							fmt.Fprintln(cmd.ErrOrStderr(), e.String())
						}
					}
					return fmt.Errorf("%d validation errors", len(errs))
				}
				return err
			}

			if printConfig {
				if jsonOutput {
					return printJSON(out, cfg)
				}
				data, err := config.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			fmt.Fprintf(out, "configuration %q is valid: %d providers\n", cfg.Name, len(cfg.Providers))
			return nil
		},
	}

	cmd.Flags().BoolVar(&printConfig, "print", false, "print the resolved configuration")
	cmd.Flags().BoolVar(&schema, "schema", false, "print the host schema and exit")

	return cmd
}
