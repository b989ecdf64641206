package main

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/spf13/cobra"
)

func newListCommand(state *cli) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the stored notes in sidebar order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := state.loadNotes(cmd.Context())
			if err != nil {
				return err
			}
			view := notes.NewCollection(list).View(query)
			out := cmd.OutOrStdout()
			for _, note := range view {
				fmt.Fprintf(out, "%s\t%t\t%s\t%s\n",
					note.ID,
					note.IsPinned,
					note.UpdatedAt.UTC().Format(time.RFC3339),
					note.Title)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Only list notes whose title, content or tags contain the query")
	return cmd
}
