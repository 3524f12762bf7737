package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tanq16/resumer/internal/output"
	"github.com/tanq16/resumer/internal/resume"
	"github.com/tanq16/resumer/internal/scheduler"
	"github.com/tanq16/resumer/internal/utils"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Download every link of a YAML list, one at a time",
		Long: `The YAML file is a list of entries:

  - link: https://example.com/a.iso
    op: downloads/a.iso
  - link: https://example.com/b.tar.gz`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			entries, err := utils.ReadDownloadList(args[0])
			if err != nil {
				output.PrintError(os.Stderr, err.Error())
				os.Exit(1)
			}
			if len(entries) == 0 {
				output.PrintError(os.Stderr, "No valid entries found in the batch file")
				os.Exit(1)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			output.PrintInfo(os.Stderr, fmt.Sprintf("Downloading %d entries", len(entries)))
			results, _ := scheduler.Run(ctx, entries, func(entry utils.DownloadEntry) ([]resume.Option, error) {
				return taskOptions(entry.URL)
			})
			failures := len(entries) - len(results)
			for _, r := range results {
				failures += report(r)
			}
			output.PrintHeader(os.Stderr, fmt.Sprintf("Completed %d of %d", len(entries)-failures, len(entries)))
			if failures > 0 {
				writeMetrics()
				os.Exit(1)
			}
		},
	}
	return cmd
}

// report prints one result and returns 1 if it counts as a failure.
func report(r scheduler.Result) int {
	switch {
	case r.Err != nil:
		output.PrintError(os.Stderr, fmt.Sprintf("%s: %v", r.Entry.URL, r.Err))
		return 1
	case r.State == resume.StateAborted && !r.Finished:
		output.PrintWarning(os.Stderr, fmt.Sprintf("%s: server cannot resume, partial file kept at %s", r.Entry.URL, r.Path))
		return 1
	default:
		output.PrintSuccess(os.Stderr, fmt.Sprintf("Saved %s %s", r.Path, output.FDebug(r.TaskID)))
		return 0
	}
}
