package cmd

import (
	"fmt"

	"github.com/rivermoor/surge"
	"github.com/spf13/cobra"
)

var rmClean bool

var rmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Remove a finished (terminal-status) download from the queue",
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

		if rmClean {
			if err := s.ClearCompleted(); err != nil {
				return err
			}
			fmt.Println("cleared completed downloads")
			return nil
		}

		if len(args) != 1 {
			return fmt.Errorf("rm requires exactly one task id, or --clean")
		}
		id, err := resolveTaskID(s, args[0])
		if err != nil {
			return err
		}

		if err := s.Remove(id); err != nil {
			return friendlyQueueError(id, err)
		}
		fmt.Println("removed", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().BoolVar(&rmClean, "clean", false, "remove all Completed tasks instead of a single id")
}
