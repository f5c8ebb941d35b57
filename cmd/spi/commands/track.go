package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ocr4all/spi/pkg/mets"
)

func newTrackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Encode and decode snapshot tracks",
		Long: `Convert snapshot tracks to mets file groups and back. A track is the
sequence of child ids leading from the root snapshot to a snapshot.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "encode <prefix> [id...]",
		Short:   "Encode a track as a file group",
		Example: "  spi track encode OCR-D 1 2 3",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			track := mets.Track{}
			for _, arg := range args[1:] {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid track id %q", arg)
				}
				track = append(track, id)
			}
			group, err := mets.NewFileGroup(args[0]).Encode(track)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]string{"group": group})
			}
			fmt.Fprintln(cmd.OutOrStdout(), group)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "decode <prefix> <group>",
		Short:   "Decode a file group to its track",
		Example: "  spi track decode OCR-D OCR-D-1-2-3",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			track, err := mets.NewFileGroup(args[0]).Decode(args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string][]int{"track": append([]int{}, track...)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), track.String())
			return nil
		},
	})

	return cmd
}
