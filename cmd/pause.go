package cmd

import (
	"fmt"

	"github.com/rivermoor/surge"
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a running download",
	Long: `Pause only has an effect on a task that is actively Downloading in this
same process. This command runs in its own process and takes the instance
lock: while a "surge add" or "surge resume" invocation is alive it fails to
get that lock, and otherwise no task is Downloading (loading the queue turns
Downloading tasks back into Pending), so it changes nothing.`,
	Args: cobra.ExactArgs(1),
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
		if err := s.Pause(id); err != nil {
			return friendlyQueueError(id, err)
		}
		fmt.Println("paused", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
}
