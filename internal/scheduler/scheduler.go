package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/tanq16/resumer/internal/resume"
	"github.com/tanq16/resumer/internal/utils"
)

// Result is the outcome of one batch entry.
type Result struct {
	Entry    utils.DownloadEntry
	TaskID   string
	Path     string
	State    resume.State
	Finished bool
	Err      error
}

// OptionsFunc builds the controller options for one entry.
type OptionsFunc func(entry utils.DownloadEntry) ([]resume.Option, error)

// Run downloads the entries one after another. A failed entry does not stop
// the batch; the returned error joins every failure. Cancelling ctx stops
// before the next entry.
func Run(ctx context.Context, entries []utils.DownloadEntry, optionsFor OptionsFunc) ([]Result, error) {
	logger := utils.GetLogger("scheduler")
	results := make([]Result, 0, len(entries))
	var errs []error
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		logger.Debug().Msgf("Processing entry %d of %d: %s", i+1, len(entries), entry.URL)
		result := runEntry(ctx, entry, optionsFor)
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.URL, result.Err))
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

func runEntry(ctx context.Context, entry utils.DownloadEntry, optionsFor OptionsFunc) Result {
	result := Result{Entry: entry}
	var opts []resume.Option
	if optionsFor != nil {
		built, err := optionsFor(entry)
		if err != nil {
			result.Err = err
			return result
		}
		opts = built
	}
	opts = append(opts, resume.WithPath(entry.OutputPath))
	task, err := resume.New(entry.URL, opts...)
	if err != nil {
		result.Err = err
		return result
	}
	defer task.Close()
	result.TaskID = task.ID
	result.Path = task.Path
	result.Err = task.Start(ctx)
	result.State = task.State()
	result.Finished = task.IsFinished()
	return result
}
