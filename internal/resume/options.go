package resume

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/tanq16/resumer/internal/transfer"
	"github.com/tanq16/resumer/internal/utils"
)

// Session supplies cookies for a request. http.CookieJar satisfies it.
type Session interface {
	Cookies(u *url.URL) []*http.Cookie
}

type config struct {
	path         string
	headers      map[string]string
	session      Session
	showProgress bool
	resume       bool
	autoRetry    bool
	maxRetries   int
	retryDelay   time.Duration
	stream       io.Writer
	interactive  *bool
	driver       transfer.Driver
	clientConfig utils.HTTPClientConfig
	now          func() time.Time
}

func defaultConfig() config {
	return config{
		showProgress: true,
		resume:       true,
		autoRetry:    true,
		stream:       os.Stderr,
		now:          time.Now,
	}
}

type Option func(*config)

// WithPath sets the destination. Without it the name comes from the URL.
func WithPath(path string) Option {
	return func(c *config) { c.path = path }
}

func WithHeaders(headers map[string]string) Option {
	return func(c *config) { c.headers = headers }
}

// WithSession folds the session's cookies for the URL into a Cookie header.
func WithSession(s Session) Option {
	return func(c *config) { c.session = s }
}

func WithProgress(show bool) Option {
	return func(c *config) { c.showProgress = show }
}

// WithResume controls whether an existing file is appended to.
func WithResume(resume bool) Option {
	return func(c *config) { c.resume = resume }
}

// WithAutoRetry controls whether interrupted transfers are attempted again.
func WithAutoRetry(retry bool) Option {
	return func(c *config) { c.autoRetry = retry }
}

// WithMaxRetries caps retries after interruptions. 0 retries forever.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

func WithRetryDelay(d time.Duration) Option {
	return func(c *config) { c.retryDelay = d }
}

// WithStream sets where progress is written. Defaults to os.Stderr.
func WithStream(w io.Writer) Option {
	return func(c *config) { c.stream = w }
}

// WithInteractive overrides terminal detection on the progress stream.
func WithInteractive(interactive bool) Option {
	return func(c *config) { c.interactive = &interactive }
}

// WithDriver replaces the HTTP transfer driver.
func WithDriver(d transfer.Driver) Option {
	return func(c *config) { c.driver = d }
}

// WithHTTPConfig configures the default HTTP driver's client.
func WithHTTPConfig(cfg utils.HTTPClientConfig) Option {
	return func(c *config) { c.clientConfig = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}
