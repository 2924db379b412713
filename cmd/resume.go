package cmd

import (
	"fmt"

	"github.com/rivermoor/surge"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a paused download and wait for it to finish",
	Long: `Resume moves a Paused task back to Pending and immediately tries to
admit it, so, like add, this command blocks in the foreground until the
task reaches a terminal state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		release, err := acquireInstanceLock()
		if err != nil {
			return err
		}
		defer release()

		s := surge.New(surge.Options{StatePath: statePathOrExit(), Runtime: runtimeFromFlags()})
		if _, err := s.Peek(); err != nil {
			return fmt.Errorf("reading queue state: %w", err)
		}
		id, err := resolveTaskID(s, args[0])
		if err != nil {
			return err
		}
		if err := s.Resume(id); err != nil {
			return friendlyQueueError(id, err)
		}

		return waitForTasks(s, map[string]string{id: taskDest(s, id)})
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
