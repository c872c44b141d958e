package core

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"
)

func TestStatusForError(t *testing.T) {
	refused := &url.Error{
		Op:  "Get",
		URL: "http://localhost:1",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
	}
	tests := []struct {
		err  error
		code int
	}{
		{nil, http.StatusOK},
		{errors.Wrap(ErrInvalidRequest, "bad method"), http.StatusBadRequest},
		{ErrTransportUnavailable, http.StatusServiceUnavailable},
		{refused, http.StatusBadGateway},
		{errors.Wrap(context.DeadlineExceeded, "upstream"), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
		{&RelayWriteError{Written: 3, Err: errors.New("closed")}, http.StatusInternalServerError},
	}
	for i, tc := range tests {
		tc := tc
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			code, text := StatusForError(tc.err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, http.StatusText(tc.code), text)
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	ce := &ConnectError{Connection: "svc", Err: ErrTransportUnavailable}
	assert.Check(t, errors.Is(ce, ErrTransportUnavailable))
	assert.Equal(t, "unable to connect svc: relay transport unavailable", ce.Error())

	var rwe *RelayWriteError
	err := errors.Wrap(&RelayWriteError{Written: 10, Err: net.ErrClosed}, "relay")
	assert.Check(t, errors.As(err, &rwe))
	assert.Equal(t, int64(10), rwe.Written)
}

func TestConnectionState(t *testing.T) {
	assert.Equal(t, "Online", Online.String())
	b, err := Offline.MarshalText()
	assert.NilError(t, err)
	assert.Equal(t, "Offline", string(b))

	var s ConnectionState
	assert.NilError(t, s.UnmarshalText([]byte("Closed")))
	assert.Equal(t, Closed, s)
	assert.ErrorContains(t, s.UnmarshalText([]byte("Sideways")), "unknown")
}

func TestPathAndQuery(t *testing.T) {
	u, err := url.Parse("https://ns.example.net/svc/a%20b?x=1")
	assert.NilError(t, err)
	r := InboundRequest{URL: u}
	assert.Equal(t, "/svc/a b?x=1", r.PathAndQuery())
	r.URL = nil
	assert.Equal(t, "", r.PathAndQuery())
}
