package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rivermoor/surge"
	"github.com/rivermoor/surge/internal/digest"
	"github.com/rivermoor/surge/internal/events"
	"github.com/rivermoor/surge/internal/filenameinfer"
	"github.com/rivermoor/surge/internal/humanize"
	"github.com/spf13/cobra"
)

var (
	addOutput     string
	addPriority   string
	addDigest     string
	addHeaders    []string
	addAutoRename bool
	addBatch      string
)

var addCmd = &cobra.Command{
	Use:     "add <url>...",
	Aliases: []string{"get"},
	Short:   "Queue one or more downloads and wait for them to finish",
	Long: `Add enqueues one or more URLs, then drives the engine in this process
until every task it just added reaches a terminal state, printing progress
as it goes. Any previously pending tasks in the queue (including ones an
interrupted run left Downloading) are admitted alongside the new ones, up
to the configured concurrency limit; paused tasks stay paused.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		urls := append([]string{}, args...)
		if addBatch != "" {
			fileURLs, err := readURLsFromFile(addBatch)
			if err != nil {
				return fmt.Errorf("reading batch file: %w", err)
			}
			urls = append(urls, fileURLs...)
		}
		if len(urls) == 0 {
			return cmd.Help()
		}

		release, err := acquireInstanceLock()
		if err != nil {
			return err
		}
		defer release()

		opts, err := buildAddOptions()
		if err != nil {
			return err
		}

		s := surge.New(surge.Options{StatePath: statePathOrExit(), Runtime: runtimeFromFlags()})
		if err := s.LoadState(); err != nil {
			return fmt.Errorf("loading queue state: %w", err)
		}

		added := make(map[string]string, len(urls))
		for _, u := range urls {
			dest := resolveDest(u, addOutput)
			id, err := s.Add(u, dest, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", u, err)
				continue
			}
			added[id] = u
		}
		if len(added) == 0 {
			return fmt.Errorf("no downloads were queued")
		}

		return waitForTasks(s, added)
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&addOutput, "output", "o", "", "destination file or directory (default: inferred filename in the current directory)")
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "normal", "scheduling priority: low, normal, high")
	addCmd.Flags().StringVar(&addDigest, "digest", "", "expected checksum as algorithm:hex, e.g. sha256:deadbeef...")
	addCmd.Flags().StringArrayVarP(&addHeaders, "header", "H", nil, "extra request header as Key: Value (repeatable)")
	addCmd.Flags().BoolVar(&addAutoRename, "auto-rename", false, "append \" (n)\" to the filename instead of overwriting an existing destination")
	addCmd.Flags().StringVarP(&addBatch, "batch", "b", "", "file containing URLs to download, one per line")
}

func buildAddOptions() (surge.AddOptions, error) {
	var priority surge.Priority
	switch strings.ToLower(addPriority) {
	case "low":
		priority = surge.Low
	case "high":
		priority = surge.High
	case "", "normal":
		priority = surge.Normal
	default:
		return surge.AddOptions{}, fmt.Errorf("invalid --priority %q (want low, normal, or high)", addPriority)
	}

	var expected *digest.Expected
	if addDigest != "" {
		exp, err := digest.ParseExpected(addDigest)
		if err != nil {
			return surge.AddOptions{}, err
		}
		expected = exp
	}

	headers := make(map[string]string, len(addHeaders))
	for _, h := range addHeaders {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return surge.AddOptions{}, fmt.Errorf("invalid --header %q (want \"Key: Value\")", h)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	return surge.AddOptions{
		Priority:   priority,
		Digest:     expected,
		Headers:    headers,
		AutoRename: addAutoRename,
	}, nil
}

// resolveDest turns a user-supplied output (empty, a directory, or a full
// path) into a concrete destination file path. A HEAD probe is used to let
// filenameinfer read Content-Disposition when it's available.
func resolveDest(rawURL, output string) string {
	dir := ""
	switch {
	case output == "":
		dir = "."
	default:
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			dir = output
		} else {
			return output
		}
	}

	var resp *http.Response
	client := &http.Client{Timeout: 10 * time.Second}
	if r, err := client.Head(rawURL); err == nil {
		resp = r
		defer resp.Body.Close()
	}

	name := filenameinfer.Infer(rawURL, resp)
	return filepath.Join(dir, name)
}

func waitForTasks(s *surge.Surge, added map[string]string) error {
	remaining := make(map[string]struct{}, len(added))
	for id := range added {
		remaining[id] = struct{}{}
	}

	failures := 0
	for len(remaining) > 0 {
		ev := <-s.Events()
		url, ours := added[ev.TaskID]
		if !ours {
			continue
		}

		switch ev.Kind {
		case events.ProgressUpdated:
			printProgress(ev)
		case events.TaskCompleted:
			fmt.Printf("\ndone: %s -> %s\n", url, taskDest(s, ev.TaskID))
			delete(remaining, ev.TaskID)
		case events.TaskFailed:
			fmt.Fprintf(os.Stderr, "\nfailed: %s: %s\n", url, ev.Err)
			failures++
			delete(remaining, ev.TaskID)
		case events.TaskCancelled:
			delete(remaining, ev.TaskID)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d downloads failed", failures, len(added))
	}
	return nil
}

func taskDest(s *surge.Surge, id string) string {
	if t, ok := s.Get(id); ok {
		return t.Dest
	}
	return ""
}

func printProgress(ev events.Event) {
	pct := 0.0
	if ev.Total > 0 {
		pct = float64(ev.Downloaded) * 100 / float64(ev.Total)
	}
	fmt.Printf("\r%s %6.1f%%  %s", ev.TaskID[:8], pct, humanize.Rate(ev.Speed))
}

// readURLsFromFile reads URLs from a file, one per line, skipping blank
// lines and "#"-prefixed comments.
func readURLsFromFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var urls []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, nil
}
