package wsrelay

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/passage/core"
	"hop.computer/passage/pkg/thunks"
	"hop.computer/passage/relay"
)

type channel struct {
	conn    *websocket.Conn
	name    string
	onState relay.StateFunc

	pingInterval time.Duration
	pongWait     time.Duration

	writeMu   sync.Mutex
	requests  chan *requestContext
	done      chan struct{}
	closeOnce sync.Once
}

func newChannel(conn *websocket.Conn, name string, onState relay.StateFunc, pingInterval, pongWait time.Duration) *channel {
	return &channel{
		conn:         conn,
		name:         name,
		onState:      onState,
		pingInterval: pingInterval,
		pongWait:     pongWait,
		requests:     make(chan *requestContext, acceptBacklog),
		done:         make(chan struct{}),
	}
}

func (c *channel) Accept(ctx context.Context) (relay.Context, error) {
	select {
	case rc := <-c.requests:
		return rc, nil
	case <-c.done:
		return nil, relay.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close frame and tears down the socket. Responses still being
// written fail with core.ErrTransportUnavailable.
func (c *channel) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "listener closing")
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.shutdown()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return errors.Wrap(err, "close relay channel")
	}
	return nil
}

func (c *channel) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *channel) log() *logrus.Entry {
	return logrus.WithField("connection", c.name)
}

func (c *channel) readLoop() {
	defer c.shutdown()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				c.log().Warnf("wsrelay: read failed: %s", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

		switch f.Type {
		case FrameRequest:
			rc, err := c.newContext(&f)
			if err != nil {
				c.log().WithField("request_id", f.ID).Warnf("wsrelay: %s", err)
				c.reject(f.ID, http.StatusBadRequest)
				continue
			}
			select {
			case c.requests <- rc:
			case <-c.done:
				return
			}
		case FrameStatus:
			if f.State == StateOffline {
				c.onState(core.Offline)
			} else {
				c.onState(core.Online)
			}
		default:
			c.log().Debugf("wsrelay: ignoring %q frame", f.Type)
		}
	}
}

func (c *channel) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log().Debugf("wsrelay: ping failed: %s", err)
				c.shutdown()
				return
			}
		}
	}
}

func (c *channel) send(f *Frame) error {
	select {
	case <-c.done:
		return core.ErrTransportUnavailable
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		c.shutdown()
		return errors.Wrap(core.ErrTransportUnavailable, err.Error())
	}
	return nil
}

func (c *channel) reject(id string, code int) {
	r := newResponse(c, id)
	r.SetStatus(code, http.StatusText(code))
	r.Close()
}

func (c *channel) newContext(f *Frame) (*requestContext, error) {
	if f.ID == "" || f.Method == "" {
		return nil, errors.Wrap(core.ErrInvalidRequest, "request frame without id or method")
	}
	u, err := url.ParseRequestURI(f.URL)
	if err != nil {
		return nil, errors.Wrap(core.ErrInvalidRequest, err.Error())
	}
	header := f.Header
	if header == nil {
		header = make(http.Header)
	}
	var body io.ReadCloser = http.NoBody
	if len(f.Body) > 0 {
		body = io.NopCloser(bytes.NewReader(f.Body))
	}
	return &requestContext{
		id: f.ID,
		req: &core.InboundRequest{
			ID:            f.ID,
			Method:        f.Method,
			URL:           u,
			Header:        header,
			Body:          body,
			ContentLength: int64(len(f.Body)),
			RemoteAddr:    f.RemoteAddr,
			Received:      thunks.TimeNow(),
		},
		resp: newResponse(c, f.ID),
	}, nil
}

type requestContext struct {
	id   string
	req  *core.InboundRequest
	resp *response
}

func (rc *requestContext) ID() string                    { return rc.id }
func (rc *requestContext) Request() *core.InboundRequest { return rc.req }
func (rc *requestContext) Response() relay.Response      { return rc.resp }

// response streams one relayed response as head, data and end frames.
type response struct {
	c  *channel
	id string

	m         sync.Mutex
	code      int
	text      string
	header    http.Header
	committed bool
	closed    bool
}

func newResponse(c *channel, id string) *response {
	return &response{c: c, id: id, header: make(http.Header)}
}

func (r *response) SetStatus(code int, text string) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.committed {
		return
	}
	r.code = code
	r.text = text
}

func (r *response) Header() http.Header {
	return r.header
}

func (r *response) commit() error {
	if r.committed {
		return nil
	}
	r.committed = true
	if r.code == 0 {
		r.code = http.StatusOK
		r.text = http.StatusText(http.StatusOK)
	}
	return r.c.send(&Frame{
		Type:       FrameHead,
		ID:         r.id,
		Status:     r.code,
		StatusText: r.text,
		Header:     r.header.Clone(),
	})
}

func (r *response) Write(p []byte) (int, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if r.closed {
		return 0, relay.ErrClosed
	}
	if err := r.commit(); err != nil {
		return 0, err
	}
	written := 0
	for len(p) > 0 {
		n := min(len(p), maxChunk)
		if err := r.c.send(&Frame{Type: FrameData, ID: r.id, Body: p[:n]}); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}

func (r *response) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.commit(); err != nil {
		return err
	}
	return r.c.send(&Frame{Type: FrameEnd, ID: r.id})
}
