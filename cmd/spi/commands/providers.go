package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

type providerView struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Version    float32 `json:"version"`
	Index      int     `json:"index"`
	Status     string  `json:"status"`
	Eager      bool    `json:"eager"`
	Enabled    bool    `json:"enabled"`
	ThreadPool string  `json:"thread_pool,omitempty"`
	Last       string  `json:"last_entry,omitempty"`
}

func newProvidersCommand() *cobra.Command {
	var skipInit bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the service providers and their status",
		Long: `List the service providers of the host configuration after configuring
and initializing them. The last journal entry of each provider explains its
status.`,
		Example: `  # Initialize and list the providers
  spi providers -c host.cue

  # Only configure them
  spi providers --skip-init --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := openHost(ctx, !skipInit)
			if err != nil {
				return err
			}
			defer h.close(ctx)

			var views []providerView
			for _, p := range h.registry.List() {
				view := providerView{
					ID:         p.Provider(),
					Type:       string(p.Type()),
					Name:       p.Name(language.English),
					Version:    p.Version(),
					Index:      p.Index(),
					Status:     string(p.Status()),
					Eager:      p.IsEagerInitialized(),
					Enabled:    p.IsEnabled(),
					ThreadPool: p.ThreadPool(),
				}
				if journal := p.Journal(); len(journal) > 0 {
					view.Last = journal[len(journal)-1].Message()
				}
				views = append(views, view)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, views)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tINDEX\tSTATUS\tEAGER\tENABLED\tPOOL\tLAST ENTRY")
			for _, v := range views {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\t%t\t%s\t%s\n",
					v.ID, v.Type, v.Index, v.Status, v.Eager, v.Enabled, v.ThreadPool, v.Last)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&skipInit, "skip-init", false, "configure the providers without initializing them")

	return cmd
}
