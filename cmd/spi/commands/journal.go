package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocr4all/spi/pkg/config"
	"github.com/ocr4all/spi/pkg/stores"
)

func newJournalCommand() *cobra.Command {
	var (
		level      string
		limit      int
		executions bool
	)

	cmd := &cobra.Command{
		Use:   "journal [provider]",
		Short: "Show archived journal entries and executions",
		Example: `  # Warnings of one provider
  spi journal ocrd-tesserocr --level warn

  # Latest processor executions
  spi journal --executions --limit 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.LoadFile(ctx, configPath)
			if err != nil {
				return err
			}
			store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
			if err != nil {
				return err
			}
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			var provider *string
			if len(args) == 1 {
				provider = &args[0]
			}
			out := cmd.OutOrStdout()

			if executions {
				list, err := store.ListExecutions(ctx, provider, limit, 0)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(out, list)
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPROVIDER\tSTATUS\tPROGRESS\tEXIT\tSTARTED")
				for _, e := range list {
					exit := "-"
					if e.ExitCode != nil {
						exit = fmt.Sprint(*e.ExitCode)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
						e.ID, e.Provider, e.Status, e.Progress*100, exit, e.StartedAt.Format(time.RFC3339))
				}
				return w.Flush()
			}

			filter := stores.JournalFilter{Provider: provider, Limit: limit}
			if level != "" {
				filter.Level = &level
			}
			records, err := store.ListJournal(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, records)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tPROVIDER\tLEVEL\tOK\tSTATUS\tMESSAGE")
			for _, r := range records {
				status := r.TargetStatus
				if r.SourceStatus != nil {
					status = *r.SourceStatus + " -> " + r.TargetStatus
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
					r.CreatedAt.Format(time.RFC3339), r.Provider, r.Level, r.Successful, status, r.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "only entries of the level (debug, info, warn, error)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records, 0 for all")
	cmd.Flags().BoolVar(&executions, "executions", false, "list processor executions instead of journal entries")

	return cmd
}
