// Package relaytest provides an in-memory relay for tests.
package relaytest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"hop.computer/passage/core"
	"hop.computer/passage/pkg/must"
	"hop.computer/passage/relay"
)

// Response records everything written to it.
type Response struct {
	m           sync.Mutex
	code        int
	text        string
	header      http.Header
	sentHeader  http.Header
	body        bytes.Buffer
	closes      int
	done        chan struct{}
	writeErr    error
	wroteHeader bool
}

// NewResponse returns an empty Response.
func NewResponse() *Response {
	return &Response{
		header: make(http.Header),
		done:   make(chan struct{}),
	}
}

// FailWrites makes every later Write return err.
func (r *Response) FailWrites(err error) {
	r.m.Lock()
	defer r.m.Unlock()
	r.writeErr = err
}

func (r *Response) SetStatus(code int, text string) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.wroteHeader {
		return
	}
	r.code = code
	r.text = text
}

func (r *Response) Header() http.Header {
	return r.header
}

func (r *Response) commit() {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.sentHeader = r.header.Clone()
	if r.code == 0 {
		r.code = http.StatusOK
		r.text = http.StatusText(http.StatusOK)
	}
}

func (r *Response) Write(p []byte) (int, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.writeErr != nil {
		return 0, r.writeErr
	}
	if r.closes > 0 {
		return 0, relay.ErrClosed
	}
	r.commit()
	return r.body.Write(p)
}

func (r *Response) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	r.commit()
	r.closes++
	if r.closes == 1 {
		close(r.done)
	}
	return nil
}

// Done is closed on the first Close.
func (r *Response) Done() <-chan struct{} {
	return r.done
}

// Status returns the status that was sent.
func (r *Response) Status() (int, string) {
	r.m.Lock()
	defer r.m.Unlock()
	return r.code, r.text
}

// SentHeader returns the headers as they were when the status was sent.
func (r *Response) SentHeader() http.Header {
	r.m.Lock()
	defer r.m.Unlock()
	return r.sentHeader.Clone()
}

// Body returns the bytes written so far.
func (r *Response) Body() []byte {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]byte(nil), r.body.Bytes()...)
}

// Closes returns how many times Close was called.
func (r *Response) Closes() int {
	r.m.Lock()
	defer r.m.Unlock()
	return r.closes
}

// Context is a relayed request paired with a recording Response.
type Context struct {
	id   string
	req  *core.InboundRequest
	resp *Response
}

var _ relay.Context = &Context{}

// NewContext pairs req with a fresh Response.
func NewContext(id string, req *core.InboundRequest) *Context {
	return &Context{
		id:   id,
		req:  req,
		resp: NewResponse(),
	}
}

func (c *Context) ID() string                    { return c.id }
func (c *Context) Request() *core.InboundRequest { return c.req }
func (c *Context) Response() relay.Response      { return c.resp }

// Recorded returns the concrete Response.
func (c *Context) Recorded() *Response {
	return c.resp
}

// NewRequest builds an inbound request for target, which may be a path or an
// absolute URL. A nil body means no body.
func NewRequest(method, target string, header http.Header, body string) *core.InboundRequest {
	u := must.Do(url.Parse(target))
	if header == nil {
		header = make(http.Header)
	}
	req := &core.InboundRequest{
		Method: method,
		URL:    u,
		Header: header,
	}
	if body != "" {
		req.Body = io.NopCloser(strings.NewReader(body))
		req.ContentLength = int64(len(body))
	}
	return req
}

// Channel is an in-memory relay.Channel.
type Channel struct {
	// CloseErr is returned by Close.
	CloseErr error

	mapping  *core.ConnectionMapping
	incoming chan *Context
	closed   chan struct{}
	once     sync.Once
	onState  relay.StateFunc
}

var _ relay.Channel = &Channel{}

// NewChannel returns an open channel. onState may be nil.
func NewChannel(onState relay.StateFunc) *Channel {
	if onState == nil {
		onState = func(core.ConnectionState) {}
	}
	return &Channel{
		incoming: make(chan *Context),
		closed:   make(chan struct{}),
		onState:  onState,
	}
}

func (c *Channel) Accept(ctx context.Context) (relay.Context, error) {
	select {
	case rc := <-c.incoming:
		return rc, nil
	case <-c.closed:
		return nil, relay.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Channel) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})
	return c.CloseErr
}

// Mapping returns the mapping the channel was opened for, or nil.
func (c *Channel) Mapping() *core.ConnectionMapping {
	return c.mapping
}

// Closed returns true after Close.
func (c *Channel) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// SetState reports a connectivity change to the channel's owner.
func (c *Channel) SetState(s core.ConnectionState) {
	c.onState(s)
}

// Send delivers rc to the next Accept call.
func (c *Channel) Send(ctx context.Context, rc *Context) error {
	select {
	case c.incoming <- rc:
		return nil
	case <-c.closed:
		return relay.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do sends req and waits for its response to be closed.
func (c *Channel) Do(ctx context.Context, id string, req *core.InboundRequest) (*Response, error) {
	rc := NewContext(id, req)
	if err := c.Send(ctx, rc); err != nil {
		return nil, err
	}
	select {
	case <-rc.resp.Done():
		return rc.resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Opener hands out in-memory channels. The first Failures calls to Open fail
// with a *core.ConnectError. Channels report Online when opened, or Offline if
// StartOffline is set.
type Opener struct {
	m            sync.Mutex
	Failures     int
	StartOffline bool
	opens        int
	opened       chan *Channel
}

var _ relay.Opener = &Opener{}

// NewOpener returns an Opener that fails the first failures opens.
func NewOpener(failures int) *Opener {
	return &Opener{
		Failures: failures,
		opened:   make(chan *Channel, 16),
	}
}

func (o *Opener) Open(ctx context.Context, m *core.ConnectionMapping, onState relay.StateFunc) (relay.Channel, error) {
	o.m.Lock()
	o.opens++
	fail := o.Failures > 0
	if fail {
		o.Failures--
	}
	initial := core.Online
	if o.StartOffline {
		initial = core.Offline
	}
	o.m.Unlock()

	if onState != nil {
		onState(core.Connecting)
	}
	if fail {
		return nil, &core.ConnectError{Connection: m.Name, Err: errors.New("refused by test opener")}
	}
	ch := NewChannel(onState)
	ch.mapping = m
	ch.SetState(initial)
	select {
	case o.opened <- ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return ch, nil
}

// Opens returns the number of Open calls so far.
func (o *Opener) Opens() int {
	o.m.Lock()
	defer o.m.Unlock()
	return o.opens
}

// Next waits for the next successfully opened channel.
func (o *Opener) Next(ctx context.Context) (*Channel, error) {
	select {
	case ch := <-o.opened:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
