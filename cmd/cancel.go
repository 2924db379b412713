package cmd

import (
	"fmt"

	"github.com/rivermoor/surge"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Abort a download, delete its partial output, and mark it Cancelled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		release, err := acquireInstanceLock()
		if err != nil {
			return err
		}
		defer release()

		s := surge.New(surge.Options{StatePath: statePathOrExit()})
		if _, err := s.Peek(); err != nil {
			return fmt.Errorf("reading queue state: %w", err)
		}
		id, err := resolveTaskID(s, args[0])
		if err != nil {
			return err
		}
		if err := s.Cancel(id); err != nil {
			return friendlyQueueError(id, err)
		}
		fmt.Println("cancelled", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
