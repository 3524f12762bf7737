package output

import (
	"fmt"
	"io"
	"time"

	"github.com/mattn/go-isatty"
)

const progressTemplate = "%6d%% %12s %15s %18s ETA"

// RenderInterval is the minimum gap between lines on a non-interactive stream.
const RenderInterval = 500 * time.Millisecond

// Sample is one computed progress reading.
type Sample struct {
	Percent    int
	Downloaded int64
	Speed      float64 // bytes per second
	ETASeconds float64
}

func FormatLine(s Sample) string {
	return fmt.Sprintf(progressTemplate, s.Percent, FormatBytes(s.Downloaded), FormatSpeed(s.Speed), FormatETA(s.ETASeconds))
}

// IsInteractive reports whether w is a terminal. Writers that are not files
// are treated as logs.
func IsInteractive(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ProgressRenderer writes samples to a stream. On a terminal every sample
// overwrites the current line; otherwise lines are appended at most once per
// RenderInterval, the first one immediately.
type ProgressRenderer struct {
	w           io.Writer
	interactive bool
	now         func() time.Time
	lastRender  time.Time
}

func NewProgressRenderer(w io.Writer, interactive bool, now func() time.Time) *ProgressRenderer {
	if now == nil {
		now = time.Now
	}
	return &ProgressRenderer{w: w, interactive: interactive, now: now}
}

// Reset restarts the throttle clock so the next sample renders immediately.
func (r *ProgressRenderer) Reset() {
	r.lastRender = time.Time{}
}

// Render writes the sample unless throttled and reports whether it did.
func (r *ProgressRenderer) Render(s Sample) bool {
	if r.interactive {
		io.WriteString(r.w, FormatLine(s)+"\r")
		flush(r.w)
		return true
	}
	now := r.now()
	if !r.lastRender.IsZero() && now.Sub(r.lastRender) < RenderInterval {
		return false
	}
	r.lastRender = now
	io.WriteString(r.w, FormatLine(s)+"\n")
	flush(r.w)
	return true
}

// Done terminates the progress output with a newline.
func (r *ProgressRenderer) Done() error {
	if _, err := io.WriteString(r.w, "\n"); err != nil {
		return err
	}
	return flush(r.w)
}

// flush pushes buffered writers through; *os.File writes are unbuffered.
func flush(w io.Writer) error {
	if f, ok := w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
