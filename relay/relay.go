// Package relay defines the boundary between the forwarding pipeline and the
// relay transport that delivers requests to it.
package relay

import (
	"context"
	"errors"
	"net/http"

	"hop.computer/passage/core"
)

// ErrClosed is returned by Channel.Accept once the channel has shut down and
// no further requests will be delivered.
var ErrClosed = errors.New("relay channel closed")

// StateFunc receives connectivity changes for one channel.
type StateFunc func(core.ConnectionState)

// Opener opens listening channels on the relay. Open returns a
// *core.ConnectError when the channel cannot be established.
type Opener interface {
	Open(ctx context.Context, m *core.ConnectionMapping, onState StateFunc) (Channel, error)
}

// Channel is an open control channel for one connection.
type Channel interface {
	// Accept blocks until the next relayed request arrives. It returns
	// ErrClosed when the channel is finished.
	Accept(ctx context.Context) (Context, error)
	Close() error
}

// Context is a single relayed request and the response that answers it.
type Context interface {
	ID() string
	Request() *core.InboundRequest
	Response() Response
}

// Response is the sink for a relayed response. The status and headers are
// sent on the first Write, or on Close if nothing was written. Close must be
// called exactly once.
type Response interface {
	SetStatus(code int, text string)
	Header() http.Header
	Write(p []byte) (int, error)
	Close() error
}
