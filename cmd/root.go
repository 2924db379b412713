// Package cmd is the thin cobra CLI shell around the surge façade: every
// subcommand loads the persisted queue, performs one operation through
// *surge.Surge, and exits. There is no background server process — a
// subcommand that needs the engine actually running (add) holds the
// instance lock and blocks until its own tasks finish.
package cmd

import (
	"fmt"
	"os"

	"github.com/rivermoor/surge/internal/debuglog"
	"github.com/rivermoor/surge/internal/engineconfig"
	"github.com/rivermoor/surge/internal/surgeconfig"
	"github.com/spf13/cobra"
)

// Version is set via ldflags during build.
var Version = "dev"

var (
	flagMaxConcurrent int
	flagSpeedLimit    int64
	flagVerbose       bool
)

var rootCmd = &cobra.Command{
	Use:          "surge",
	Short:        "A resumable, multi-connection HTTP(S) download engine",
	Long:         "Surge downloads files over HTTP(S) using parallel ranged requests, with pause/resume, priority scheduling, and digest verification.",
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command; it is the sole entry point called by
// cmd/surge/main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagMaxConcurrent, "max-concurrent", 0, "maximum number of tasks downloading at once (0 = default)")
	rootCmd.PersistentFlags().Int64Var(&flagSpeedLimit, "speed-limit", 0, "speed cap in bytes/sec for each task, shared by its connections (0 = unlimited)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "create a debug log file under ~/.surge/logs (add and resume only; the engine writes no entries to it)")
}

// runtimeFromFlags builds the RuntimeConfig every subcommand shares, and
// turns on debuglog when -v was passed.
func runtimeFromFlags() *engineconfig.RuntimeConfig {
	if flagVerbose {
		if dir, err := surgeconfig.LogsDir(); err == nil {
			_ = debuglog.Configure(dir)
		}
	}
	return &engineconfig.RuntimeConfig{
		MaxConcurrentTasks:    flagMaxConcurrent,
		SpeedLimitBytesPerSec: flagSpeedLimit,
	}
}

func statePathOrExit() string {
	path, err := surgeconfig.DefaultQueueStatePath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: resolving queue state path:", err)
		os.Exit(1)
	}
	return path
}
