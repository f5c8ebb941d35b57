package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/ocr4all/spi/pkg/env"
)

func newPremiseCommand() *cobra.Command {
	var (
		exchange string
		opt      string
		project  string
		folios   string
		sandbox  string
		locale   string
	)

	cmd := &cobra.Command{
		Use:   "premise <provider>",
		Short: "Ask a provider whether it can run on a target",
		Example: `  spi premise ocrd-tesserocr --project /srv/ocr4all/data/book \
    --folios /srv/ocr4all/data/book/folios`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tag, err := language.Parse(locale)
			if err != nil {
				return fmt.Errorf("invalid locale %q: %w", locale, err)
			}

			h, err := openHost(ctx, false)
			if err != nil {
				return err
			}
			defer h.close(ctx)

			target := &env.Target{Exchange: exchange, Opt: opt}
			if project != "" {
				target.Project = &env.Project{Root: project}
				if folios != "" {
					target.Project.Images = &env.Images{Folios: folios}
				}
			}
			if sandbox != "" {
				target.Sandbox = &env.Sandbox{Root: sandbox}
			}

			premise, err := h.registry.Premise(args[0], target)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, map[string]string{
					"provider": args[0],
					"state":    string(premise.State()),
					"message":  premise.Message(tag),
				})
			}
			if msg := premise.Message(tag); msg != "" {
				fmt.Fprintf(out, "%s: %s\n", premise.State(), msg)
			} else {
				fmt.Fprintln(out, premise.State())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange directory")
	cmd.Flags().StringVar(&opt, "opt", "", "opt directory")
	cmd.Flags().StringVar(&project, "project", "", "project root directory")
	cmd.Flags().StringVar(&folios, "folios", "", "folios directory of the project")
	cmd.Flags().StringVar(&sandbox, "sandbox", "", "sandbox root directory")
	cmd.Flags().StringVar(&locale, "lang", "en", "message locale")

	return cmd
}
