package wsrelay

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/passage/core"
	"hop.computer/passage/pkg/combinators"
	"hop.computer/passage/relay"
)

// ErrRejected is returned (inside a core.ConnectError) when the rendezvous
// refuses the registration.
var ErrRejected = errors.New("registration rejected by relay")

// Default timings for the control channel.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 20 * time.Second
	DefaultPongWait         = 45 * time.Second
	writeWait               = 10 * time.Second
	maxChunk                = 64 * 1024
	acceptBacklog           = 64
)

// Opener dials the rendezvous listen endpoint once per Open.
type Opener struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
}

// NewOpener returns an Opener for a ws:// or wss:// listen endpoint.
func NewOpener(rawURL string) (*Opener, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "relay url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Errorf("relay url %q: scheme must be ws or wss", rawURL)
	}
	return &Opener{URL: u.String()}, nil
}

// Open registers m with the rendezvous and returns the channel that delivers
// its requests.
func (o *Opener) Open(ctx context.Context, m *core.ConnectionMapping, onState relay.StateFunc) (relay.Channel, error) {
	if onState == nil {
		onState = func(core.ConnectionState) {}
	}
	onState(core.Connecting)

	handshake := combinators.Or(o.HandshakeTimeout, DefaultHandshakeTimeout)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}
	conn, resp, err := dialer.DialContext(ctx, o.URL, o.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &core.ConnectError{Connection: m.Name, Err: errors.Wrapf(err, "dial %s", o.URL)}
	}

	if err := register(conn, m, handshake); err != nil {
		conn.Close()
		return nil, &core.ConnectError{Connection: m.Name, Err: err}
	}

	c := newChannel(conn, m.Name, onState,
		combinators.Or(o.PingInterval, DefaultPingInterval),
		combinators.Or(o.PongWait, DefaultPongWait))
	logrus.WithField("connection", m.Name).Debugf("wsrelay: registered at %s", o.URL)
	onState(core.Online)
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func register(conn *websocket.Conn, m *core.ConnectionMapping, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	conn.SetWriteDeadline(deadline)
	err := conn.WriteJSON(&Frame{
		Type:       FrameRegister,
		Connection: m.Name,
		PolicyName: m.PolicyName,
		PolicyKey:  m.PolicyKey,
	})
	if err != nil {
		return errors.Wrap(err, "send register")
	}
	conn.SetReadDeadline(deadline)
	var reply Frame
	if err := conn.ReadJSON(&reply); err != nil {
		return errors.Wrap(err, "read register reply")
	}
	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	switch reply.Type {
	case FrameAccepted:
		return nil
	case FrameRejected:
		return errors.Wrap(ErrRejected, reply.Error)
	default:
		return errors.Errorf("unexpected %q frame during registration", reply.Type)
	}
}
