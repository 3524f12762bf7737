package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tanq16/resumer/internal/utils"
)

// Progress carries cumulative counts for the current attempt only.
// DownloadTotal is 0 until the server reports a length.
type Progress struct {
	DownloadTotal int64
	Downloaded    int64
	UploadTotal   int64
	Uploaded      int64
}

type ProgressFunc func(Progress)

// Attempt describes one request for the bytes of URL starting at Offset.
type Attempt struct {
	URL        string
	Headers    map[string]string
	Offset     int64
	Dest       io.Writer
	OnProgress ProgressFunc
}

// Driver performs a single attempt. Failures are returned as *Error so the
// caller can switch on the Kind.
type Driver interface {
	Perform(ctx context.Context, a Attempt) error
}

type HTTPDriver struct {
	client     utils.HTTPDoer
	bufferSize int
	log        zerolog.Logger
}

func NewHTTPDriver(client utils.HTTPDoer) *HTTPDriver {
	return &HTTPDriver{
		client:     client,
		bufferSize: utils.DefaultBufferSize,
		log:        utils.GetLogger("transfer/http"),
	}
}

func (d *HTTPDriver) Perform(ctx context.Context, a Attempt) error {
	if a.URL == "" {
		return &Error{Kind: KindOther, Err: utils.ErrEmptyURL}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return classify(phaseRequest, fmt.Errorf("error creating GET request: %w", err), nil, a.Offset)
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
	if a.Offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", a.Offset))
		d.log.Debug().Msgf("Resuming download from offset %d", a.Offset)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return classify(phaseRequest, fmt.Errorf("error executing GET request: %w", err), nil, a.Offset)
	}
	defer resp.Body.Close()

	if err := classify(phaseResponse, nil, resp, a.Offset); err != nil {
		return err
	}

	expected := resp.ContentLength
	if expected < 0 {
		expected = 0
	}
	d.log.Debug().Int("status", resp.StatusCode).Int64("length", expected).Msg("Streaming response body")

	var received int64
	buffer := make([]byte, d.bufferSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := a.Dest.Write(buffer[:bytesRead]); writeErr != nil {
				return fmt.Errorf("error writing to output file: %w", writeErr)
			}
			received += int64(bytesRead)
			if a.OnProgress != nil {
				a.OnProgress(Progress{DownloadTotal: expected, Downloaded: received})
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return classify(phaseBody, fmt.Errorf("error reading response body: %w", readErr), resp, a.Offset)
		}
	}
	if expected > 0 && received < expected {
		return classify(phaseBody, fmt.Errorf("%d bytes remaining to read", expected-received), resp, a.Offset)
	}
	return nil
}

// contentRangeStart extracts the first byte position of a
// "bytes start-end/total" header.
func contentRangeStart(header string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}

// contentRangeTotal extracts the complete length from a "bytes a-b/total" or
// "bytes */total" header.
func contentRangeTotal(header string) (int64, bool) {
	_, total, ok := strings.Cut(header, "/")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
