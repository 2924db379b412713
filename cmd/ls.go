package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rivermoor/surge"
	"github.com/rivermoor/surge/internal/humanize"
	"github.com/spf13/cobra"
)

var lsJSON bool

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List all queued, running, and finished downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := surge.New(surge.Options{StatePath: statePathOrExit()})
		tasks, err := s.Peek()
		if err != nil {
			return fmt.Errorf("reading queue state: %w", err)
		}

		if lsJSON {
			data, err := json.MarshalIndent(tasks, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(tasks) == 0 {
			fmt.Println("No downloads queued.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDEST\tSTATUS\tPROGRESS\tSIZE\tPRIORITY")
		for _, t := range tasks {
			pct := 0.0
			if t.TotalSize > 0 {
				pct = float64(t.Downloaded) * 100 / float64(t.TotalSize)
			}
			id := t.ID
			if len(id) > 8 {
				id = id[:8]
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\t%s\n", id, t.Dest, t.Status, pct, humanize.Bytes(t.TotalSize), t.Priority)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "output as JSON")
}
