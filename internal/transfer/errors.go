package transfer

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tanq16/resumer/internal/utils"
)

// ErrorKind tells the resume controller how to react to a failed attempt.
type ErrorKind int

const (
	// KindOther is fatal: DNS, TLS, refused connections, bad URLs, HTTP errors.
	KindOther ErrorKind = iota
	// KindInterrupted means the body stopped before the expected length.
	// The bytes written so far are valid and the attempt can be resumed.
	KindInterrupted
	// KindRangeNotSupported means the server refused to serve from the
	// requested offset.
	KindRangeNotSupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindInterrupted:
		return "interrupted"
	case KindRangeNotSupported:
		return "range_not_supported"
	default:
		return "other"
	}
}

type Error struct {
	Kind       ErrorKind
	StatusCode int
	// Total is the complete length the server reported in Content-Range,
	// or 0 when it did not say.
	Total int64
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInterrupted:
		return fmt.Sprintf("transfer interrupted: %v", e.Err)
	case KindRangeNotSupported:
		return fmt.Sprintf("cannot resume: %v", e.Err)
	default:
		return fmt.Sprintf("transfer failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of a transfer error. Errors that did not come from
// a driver (filesystem failures, for instance) are KindOther.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindOther
}

type phase int

const (
	phaseRequest phase = iota
	phaseResponse
	phaseBody
)

// classify is the single place where transport outcomes become an ErrorKind.
// For phaseResponse it returns nil when the response can be streamed.
func classify(p phase, err error, resp *http.Response, offset int64) error {
	switch p {
	case phaseRequest:
		return &Error{Kind: KindOther, Err: err}

	case phaseResponse:
		code := resp.StatusCode
		switch {
		case code == http.StatusRequestedRangeNotSatisfiable:
			total, _ := contentRangeTotal(resp.Header.Get("Content-Range"))
			return &Error{Kind: KindRangeNotSupported, StatusCode: code, Total: total, Err: fmt.Errorf("%w: rejected offset %d (status %d)", utils.ErrRangeRequestsNotSupported, offset, code)}
		case code >= 400:
			return &Error{Kind: KindOther, StatusCode: code, Err: fmt.Errorf("unexpected status code: %d", code)}
		case offset > 0 && code != http.StatusPartialContent:
			return &Error{Kind: KindRangeNotSupported, StatusCode: code, Err: fmt.Errorf("%w: range ignored (status %d)", utils.ErrRangeRequestsNotSupported, code)}
		case offset > 0:
			start, ok := contentRangeStart(resp.Header.Get("Content-Range"))
			if !ok || start != offset {
				return &Error{Kind: KindRangeNotSupported, StatusCode: code, Err: fmt.Errorf("%w: got range %q for offset %d", utils.ErrRangeRequestsNotSupported, resp.Header.Get("Content-Range"), offset)}
			}
			return nil
		case code < 200 || code >= 300:
			return &Error{Kind: KindOther, StatusCode: code, Err: fmt.Errorf("unexpected status code: %d", code)}
		}
		return nil

	default:
		// A cancelled caller is not a flaky connection
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return &Error{Kind: KindOther, Err: err}
		}
		return &Error{Kind: KindInterrupted, Err: err}
	}
}
