package resume

import (
	"math"
	"time"

	"github.com/tanq16/resumer/internal/output"
	"github.com/tanq16/resumer/internal/transfer"
)

// transferState is the mutable part of a task.
//
// contentLength is set once, from the first progress report that carries a
// length, and never changes afterwards. downloaded is the resume offset of
// the current attempt, re-read from disk before each attempt.
type transferState struct {
	downloaded    int64
	received      int64
	contentLength int64
	startTime     time.Time
}

func (s *transferState) beginAttempt() {
	s.downloaded = 0
	s.received = 0
	s.startTime = time.Time{}
}

func (s *transferState) resolveContentLength(n int64) {
	if s.contentLength == 0 && n > 0 {
		s.contentLength = n
	}
}

// onProgress runs on the transfer's goroutine for every buffer written.
func (t *Task) onProgress(p transfer.Progress) {
	t.ts.received = p.Downloaded
	if p.DownloadTotal == 0 {
		return
	}
	t.ts.resolveContentLength(t.ts.downloaded + p.DownloadTotal)
	if !t.cfg.showProgress {
		return
	}
	t.renderer.Render(t.sample(p, t.cfg.now()))
}

func (t *Task) sample(p transfer.Progress, now time.Time) output.Sample {
	if t.ts.startTime.IsZero() {
		t.ts.startTime = now
	}
	// +1s keeps the first samples from dividing by ~0
	duration := now.Sub(t.ts.startTime).Seconds() + 1
	speed := float64(p.Downloaded) / duration
	eta := math.Inf(1)
	if speed > 0 {
		eta = float64(p.DownloadTotal-p.Downloaded) / speed
	}
	downloaded := t.ts.downloaded + p.Downloaded
	percent := 0
	if t.ts.contentLength > 0 {
		percent = int(downloaded * 100 / t.ts.contentLength)
	}
	return output.Sample{
		Percent:    percent,
		Downloaded: downloaded,
		Speed:      speed,
		ETASeconds: eta,
	}
}
