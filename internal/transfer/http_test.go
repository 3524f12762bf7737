package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/resumer/internal/utils"
)

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

type rangeLog struct {
	mu     sync.Mutex
	ranges []string
}

func (l *rangeLog) add(r string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ranges = append(l.ranges, r)
}

func (l *rangeLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ranges...)
}

// rangeServer serves data with byte-range support and records Range headers.
func rangeServer(t *testing.T, data []byte, ranges *rangeLog) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if ranges != nil {
			ranges.add(rangeHeader)
		}
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Write(data)
			return
		}
		start, _ := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rangeHeader, "bytes="), "-"))
		if start >= len(data) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(data)))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(data)-1, len(data)))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)-start))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start:])
	}))
	t.Cleanup(server.Close)
	return server
}

func newDriver() *HTTPDriver {
	return NewHTTPDriver(utils.NewHTTPClient(utils.HTTPClientConfig{}))
}

func TestPerformFullDownload(t *testing.T) {
	data := testData(256 * 1024)
	server := rangeServer(t, data, nil)

	var buf bytes.Buffer
	var samples []Progress
	err := newDriver().Perform(context.Background(), Attempt{
		URL:        server.URL,
		Dest:       &buf,
		OnProgress: func(p Progress) { samples = append(samples, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())

	require.NotEmpty(t, samples)
	last := samples[len(samples)-1]
	assert.Equal(t, int64(len(data)), last.DownloadTotal)
	assert.Equal(t, int64(len(data)), last.Downloaded)
	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i].Downloaded, samples[i-1].Downloaded)
	}
}

func TestPerformResumeFromOffset(t *testing.T) {
	data := testData(100000)
	ranges := &rangeLog{}
	server := rangeServer(t, data, ranges)

	var buf bytes.Buffer
	var last Progress
	err := newDriver().Perform(context.Background(), Attempt{
		URL:        server.URL,
		Offset:     40000,
		Dest:       &buf,
		OnProgress: func(p Progress) { last = p },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bytes=40000-"}, ranges.all())
	assert.Equal(t, data[40000:], buf.Bytes())
	// counts restart at zero for every attempt
	assert.Equal(t, int64(60000), last.DownloadTotal)
	assert.Equal(t, int64(60000), last.Downloaded)
}

func TestPerformSendsHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	err := newDriver().Perform(context.Background(), Attempt{
		URL:     server.URL,
		Headers: map[string]string{"X-Token": "abc", "Cookie": "a=1; b=2"},
		Dest:    io.Discard,
	})
	require.NoError(t, err)
	got := <-headers
	assert.Equal(t, "abc", got.Get("X-Token"))
	assert.Equal(t, "a=1; b=2", got.Get("Cookie"))
	assert.Equal(t, utils.ToolUserAgent, got.Get("User-Agent"))
	assert.Empty(t, got.Get("Range"))
}

func TestPerformInterrupted(t *testing.T) {
	data := testData(100000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data[:30000])
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	defer server.Close()

	var buf bytes.Buffer
	err := newDriver().Perform(context.Background(), Attempt{URL: server.URL, Dest: &buf})
	require.Error(t, err)
	assert.Equal(t, KindInterrupted, KindOf(err))
	assert.Equal(t, data[:buf.Len()], buf.Bytes())
}

func TestPerformRangeNotSupported(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"ignores range", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("full body"))
		}},
		{"not satisfiable", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		}},
		{"wrong start", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Range", "bytes 0-8/9")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte("full body"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			var buf bytes.Buffer
			err := newDriver().Perform(context.Background(), Attempt{URL: server.URL, Offset: 5, Dest: &buf})
			require.Error(t, err)
			assert.Equal(t, KindRangeNotSupported, KindOf(err))
			assert.ErrorIs(t, err, utils.ErrRangeRequestsNotSupported)
			assert.Zero(t, buf.Len(), "nothing may be appended after a refused range")
		})
	}
}

func TestPerformOtherErrors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name   string
		url    string
		offset int64
		status int
	}{
		{"not found", notFound.URL, 0, http.StatusNotFound},
		{"not found while resuming", notFound.URL, 10, http.StatusNotFound},
		{"connection refused", closedURL, 0, 0},
		{"malformed url", "http://[::1", 0, 0},
		{"empty url", "", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newDriver().Perform(context.Background(), Attempt{URL: tt.url, Offset: tt.offset, Dest: io.Discard})
			require.Error(t, err)
			assert.Equal(t, KindOther, KindOf(err))
			var te *Error
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.status, te.StatusCode)
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestPerformWriteErrorIsNotTransferError(t *testing.T) {
	server := rangeServer(t, testData(1024), nil)
	err := newDriver().Perform(context.Background(), Attempt{URL: server.URL, Dest: failingWriter{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	var te *Error
	assert.False(t, errors.As(err, &te))
	assert.Equal(t, KindOther, KindOf(err))
}

func TestPerformCancelledIsFatal(t *testing.T) {
	server := rangeServer(t, testData(1024), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newDriver().Perform(ctx, Attempt{URL: server.URL, Dest: io.Discard})
	require.Error(t, err)
	assert.Equal(t, KindOther, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyBody(t *testing.T) {
	assert.Equal(t, KindInterrupted, KindOf(classify(phaseBody, io.ErrUnexpectedEOF, nil, 0)))
	assert.Equal(t, KindInterrupted, KindOf(classify(phaseBody, errors.New("connection reset by peer"), nil, 0)))
	assert.Equal(t, KindOther, KindOf(classify(phaseBody, fmt.Errorf("read: %w", context.Canceled), nil, 0)))
	assert.Equal(t, KindOther, KindOf(classify(phaseBody, context.DeadlineExceeded, nil, 0)))
}

func TestClassifyResponse(t *testing.T) {
	resp := func(code int, contentRange string) *http.Response {
		h := http.Header{}
		if contentRange != "" {
			h.Set("Content-Range", contentRange)
		}
		return &http.Response{StatusCode: code, Header: h}
	}
	tests := []struct {
		name   string
		resp   *http.Response
		offset int64
		ok     bool
		kind   ErrorKind
	}{
		{"ok fresh", resp(200, ""), 0, true, 0},
		{"partial resume", resp(206, "bytes 100-199/200"), 100, true, 0},
		{"ok ignoring range", resp(200, ""), 100, false, KindRangeNotSupported},
		{"416", resp(416, ""), 100, false, KindRangeNotSupported},
		{"416 fresh", resp(416, ""), 0, false, KindRangeNotSupported},
		{"missing content range", resp(206, ""), 100, false, KindRangeNotSupported},
		{"server error", resp(500, ""), 0, false, KindOther},
		{"forbidden resume", resp(403, ""), 100, false, KindOther},
		{"no content", resp(204, ""), 0, true, 0},
		{"redirect leaked", resp(302, ""), 0, false, KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(phaseResponse, nil, tt.resp, tt.offset)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestContentRangeStart(t *testing.T) {
	start, ok := contentRangeStart("bytes 400000-999999/1000000")
	assert.True(t, ok)
	assert.Equal(t, int64(400000), start)

	start, ok = contentRangeStart("bytes 5-9/*")
	assert.True(t, ok)
	assert.Equal(t, int64(5), start)

	_, ok = contentRangeStart("")
	assert.False(t, ok)
	_, ok = contentRangeStart("items 1-2/3")
	assert.False(t, ok)
}

func TestContentRangeTotal(t *testing.T) {
	total, ok := contentRangeTotal("bytes */1000000")
	assert.True(t, ok)
	assert.Equal(t, int64(1000000), total)

	total, ok = contentRangeTotal("bytes 0-9/10")
	assert.True(t, ok)
	assert.Equal(t, int64(10), total)

	_, ok = contentRangeTotal("bytes 5-9/*")
	assert.False(t, ok)
	_, ok = contentRangeTotal("")
	assert.False(t, ok)
}

func TestPerformPastEndReportsTotal(t *testing.T) {
	data := testData(1024)
	server := rangeServer(t, data, nil)

	err := newDriver().Perform(context.Background(), Attempt{URL: server.URL, Offset: 1024, Dest: io.Discard})
	require.Error(t, err)
	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindRangeNotSupported, te.Kind)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, te.StatusCode)
	assert.Equal(t, int64(1024), te.Total)
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "interrupted", KindInterrupted.String())
	assert.Equal(t, "range_not_supported", KindRangeNotSupported.String())
	assert.Equal(t, "other", KindOther.String())
	assert.Equal(t, KindOther, KindOf(nil))
}
