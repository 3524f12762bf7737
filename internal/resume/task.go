package resume

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tanq16/resumer/internal/metrics"
	"github.com/tanq16/resumer/internal/output"
	"github.com/tanq16/resumer/internal/transfer"
	"github.com/tanq16/resumer/internal/utils"
)

type State int

const (
	StateIdle State = iota
	StateAttempting
	StateFinished
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateFinished:
		return "finished"
	case StateAborted:
		return "aborted"
	default:
		return "idle"
	}
}

// Task downloads one URL to one path. It is not safe for concurrent use.
type Task struct {
	ID      string
	URL     string
	Path    string
	Headers map[string]string

	cfg      config
	state    State
	ts       transferState
	renderer *output.ProgressRenderer
	log      zerolog.Logger
	closed   bool
}

// New builds a task; nothing touches the network or the disk until Start.
func New(rawURL string, opts ...Option) (*Task, error) {
	if rawURL == "" {
		return nil, utils.ErrEmptyURL
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	path, err := utils.ResolveOutputPath(rawURL, cfg.path)
	if err != nil {
		return nil, err
	}
	if cfg.driver == nil {
		cfg.driver = transfer.NewHTTPDriver(utils.NewHTTPClient(cfg.clientConfig))
	}
	interactive := output.IsInteractive(cfg.stream)
	if cfg.interactive != nil {
		interactive = *cfg.interactive
	}
	id := uuid.NewString()
	return &Task{
		ID:       id,
		URL:      rawURL,
		Path:     path,
		Headers:  mergeHeaders(cfg.headers, cookieHeader(cfg.session, rawURL)),
		cfg:      cfg,
		renderer: output.NewProgressRenderer(cfg.stream, interactive, cfg.now),
		log:      utils.GetLogger("resume/controller").With().Str("task", id).Logger(),
	}, nil
}

func (t *Task) State() State {
	return t.state
}

// ContentLength is the full size of the resource, or 0 while unknown.
func (t *Task) ContentLength() int64 {
	return t.ts.contentLength
}

// Start runs attempts until the file is complete, the server refuses to
// resume, or a fatal error occurs. A refused resume returns nil with the
// partial file left in place; callers that need certainty check IsFinished.
func (t *Task) Start(ctx context.Context) error {
	if !t.cfg.autoRetry {
		err := t.attempt(ctx)
		if transfer.KindOf(err) == transfer.KindRangeNotSupported && t.alreadyComplete(err) {
			err = nil
		}
		t.finish(err)
		return err
	}

	retries := 0
	for !t.IsFinished() {
		err := t.attempt(ctx)
		if err == nil {
			if t.ts.contentLength == 0 {
				// no length to compare against; a clean end of stream is all there is
				t.log.Debug().Msg("Server sent no length, treating end of stream as complete")
				break
			}
			continue
		}
		switch transfer.KindOf(err) {
		case transfer.KindInterrupted:
			retries++
			if t.cfg.maxRetries > 0 && retries > t.cfg.maxRetries {
				err = fmt.Errorf("%w after %d retries: %w", utils.ErrRetriesExhausted, t.cfg.maxRetries, err)
				t.finish(err)
				return err
			}
			metrics.Retries.Inc()
			t.log.Warn().Err(err).Msgf("Retrying download for %s (retry %d)", t.Path, retries)
			if err := t.wait(ctx); err != nil {
				t.finish(err)
				return err
			}
		case transfer.KindRangeNotSupported:
			if t.alreadyComplete(err) {
				t.log.Debug().Msgf("Server reports %s is already complete", t.Path)
				t.finish(nil)
				return nil
			}
			t.log.Warn().Err(err).Msgf("Server cannot resume %s, keeping partial file", t.Path)
			t.state = StateAborted
			metrics.Downloads.WithLabelValues(t.state.String()).Inc()
			return nil
		default:
			t.finish(err)
			return err
		}
	}
	t.finish(nil)
	return nil
}

// alreadyComplete reports whether a refused range was refused because the
// file on disk already holds every byte the server has.
func (t *Task) alreadyComplete(err error) bool {
	var te *transfer.Error
	if !errors.As(err, &te) || te.Total == 0 || te.Total != t.ts.downloaded {
		return false
	}
	t.ts.resolveContentLength(te.Total)
	return t.IsFinished()
}

// finish moves the task into its terminal state after the last attempt.
func (t *Task) finish(err error) {
	if err != nil {
		t.state = StateAborted
		t.log.Error().Err(err).Msgf("Download failed for %s", t.Path)
		metrics.Downloads.WithLabelValues("failed").Inc()
		return
	}
	t.state = StateFinished
	t.log.Info().Msgf("Download complete for %s", t.Path)
	metrics.Downloads.WithLabelValues(t.state.String()).Inc()
}

func (t *Task) wait(ctx context.Context) error {
	if t.cfg.retryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.cfg.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// destFile is the part of *os.File an attempt writes through.
type destFile interface {
	io.Writer
	Sync() error
	Close() error
}

var openDest = func(name string, flag int) (destFile, error) {
	f, err := os.OpenFile(name, flag, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// attempt re-reads the on-disk size, opens the file in the matching mode and
// runs one driver attempt. The file is synced and closed on every path.
func (t *Task) attempt(ctx context.Context) (err error) {
	t.state = StateAttempting
	t.ts.beginAttempt()
	t.renderer.Reset()

	fileMode := os.O_CREATE | os.O_WRONLY
	if t.cfg.resume {
		if info, statErr := os.Stat(t.Path); statErr == nil {
			t.ts.downloaded = info.Size()
		}
	}
	if t.ts.downloaded > 0 {
		fileMode |= os.O_APPEND
	} else {
		fileMode |= os.O_TRUNC
	}
	outFile, err := openDest(t.Path, fileMode)
	if err != nil {
		return fmt.Errorf("error opening output file: %w", err)
	}
	defer func() {
		if syncErr := outFile.Sync(); syncErr != nil && err == nil {
			err = fmt.Errorf("error syncing output file: %w", syncErr)
		}
		if closeErr := outFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("error closing output file: %w", closeErr)
		}
	}()

	t.log.Debug().Int64("offset", t.ts.downloaded).Msgf("Starting attempt for %s", t.URL)
	err = t.cfg.driver.Perform(ctx, transfer.Attempt{
		URL:        t.URL,
		Headers:    t.Headers,
		Offset:     t.ts.downloaded,
		Dest:       outFile,
		OnProgress: t.onProgress,
	})
	metrics.BytesWritten.Add(float64(t.ts.received))
	result := "success"
	if err != nil {
		result = transfer.KindOf(err).String()
	}
	metrics.Attempts.WithLabelValues(result).Inc()
	return err
}

// IsFinished reports whether the file on disk has reached the resolved
// content length. It is false while either is unknown.
func (t *Task) IsFinished() bool {
	if t.ts.contentLength == 0 {
		return false
	}
	info, err := os.Stat(t.Path)
	if err != nil {
		return false
	}
	return info.Size() == t.ts.contentLength
}

// Close ends the progress line with a newline. It runs once; later calls
// are no-ops.
func (t *Task) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.renderer.Done()
}

// Download runs a task to completion and always terminates the progress line.
func Download(ctx context.Context, rawURL string, opts ...Option) error {
	task, err := New(rawURL, opts...)
	if err != nil {
		return err
	}
	defer task.Close()
	return task.Start(ctx)
}

func cookieHeader(s Session, rawURL string) string {
	if s == nil {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	var pairs []string
	for _, c := range s.Cookies(u) {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// mergeHeaders copies the explicit headers and adds the cookie header unless
// one was given explicitly.
func mergeHeaders(explicit map[string]string, cookie string) map[string]string {
	merged := make(map[string]string, len(explicit)+1)
	hasCookie := false
	for k, v := range explicit {
		merged[k] = v
		if http.CanonicalHeaderKey(k) == "Cookie" {
			hasCookie = true
		}
	}
	if cookie != "" && !hasCookie {
		merged["Cookie"] = cookie
	}
	return merged
}
