package core

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
)

// ErrInvalidRequest is returned when an inbound request cannot be turned into
// a request for the local target.
var ErrInvalidRequest = errors.New("invalid relayed request")

// ErrTransportUnavailable is returned when the relay transport is gone while a
// request is being served.
var ErrTransportUnavailable = errors.New("relay transport unavailable")

// ErrInvalidMapping is returned when a connection mapping cannot be used.
var ErrInvalidMapping = errors.New("invalid connection mapping")

// ConnectError wraps a failure to open the relay listener for a connection.
type ConnectError struct {
	Connection string
	Err        error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("unable to connect %s: %s", e.Connection, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// RelayWriteError is returned when writing the response back through the relay
// fails after some bytes may have been sent. It is never retried.
type RelayWriteError struct {
	Written int64
	Err     error
}

func (e *RelayWriteError) Error() string {
	return fmt.Sprintf("relay write failed after %d bytes: %s", e.Written, e.Err)
}

func (e *RelayWriteError) Unwrap() error {
	return e.Err
}

// StatusForError maps a per-request failure to the status reported back to
// the relay and recorded in the log.
func StatusForError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, http.StatusText(http.StatusOK)
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, http.StatusText(http.StatusBadRequest)
	case errors.Is(err, ErrTransportUnavailable):
		return http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable)
	case isNetworkError(err):
		return http.StatusBadGateway, http.StatusText(http.StatusBadGateway)
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
