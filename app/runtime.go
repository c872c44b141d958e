// Package app wires connection mappings, supervisors, and the shared log ring
// into a running listener.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"hop.computer/passage/common"
	"hop.computer/passage/core"
	"hop.computer/passage/logring"
	"hop.computer/passage/metrics"
	"hop.computer/passage/pkg/combinators"
	"hop.computer/passage/pkg/waiter"
	"hop.computer/passage/proxy"
	"hop.computer/passage/relay"
	"hop.computer/passage/supervisor"
)

// ErrNoConnections is returned by Run when no mapping is usable.
var ErrNoConnections = errors.New("no usable connections configured")

// Options configure a Runtime.
type Options struct {
	Mappings []core.ConnectionMapping
	Opener   relay.Opener

	// Ring receives every transaction. A ring with default capacity is
	// created if nil.
	Ring *logring.Ring

	// Metrics is optional.
	Metrics *metrics.Metrics

	Forward proxy.Options

	RetryDelay     time.Duration
	DrainTimeout   time.Duration
	RequestTimeout time.Duration
}

// Connection describes one configured mapping for display and the status API.
type Connection struct {
	Name       string               `json:"name"`
	Forwarding string               `json:"forwarding"`
	State      core.ConnectionState `json:"state"`
	Phase      string               `json:"phase"`
	InFlight   int64                `json:"inFlight"`
	Error      string               `json:"error,omitempty"`
}

type connection struct {
	mapping   *core.ConnectionMapping
	sup       *supervisor.Supervisor
	transport *http.Transport
	err       error
}

// Runtime owns the log ring and one supervisor per valid mapping.
type Runtime struct {
	ring        *logring.Ring
	connections []*connection

	changed waiter.Queue[Runtime]
}

// New validates every mapping and builds a supervisor for each valid one.
// Invalid mappings are logged and reported as Closed.
func New(opts Options) *Runtime {
	r := &Runtime{
		ring: opts.Ring,
	}
	if r.ring == nil {
		r.ring = logring.New(logring.Options{})
	}
	for i := range opts.Mappings {
		m := opts.Mappings[i]
		c := &connection{mapping: &m}
		r.connections = append(r.connections, c)
		if err := m.Validate(); err != nil {
			logrus.Errorf("connection %q skipped: %s", m.Name, err)
			c.err = err
			continue
		}
		r.build(c, opts)
	}
	return r
}

func (r *Runtime) build(c *connection, opts Options) {
	name := c.mapping.Name
	c.transport = http.DefaultTransport.(*http.Transport).Clone()
	client := &http.Client{
		Transport: c.transport,
		Timeout:   combinators.Or(opts.RequestTimeout, common.DefaultRequestTimeout),
		// Redirects are relayed to the caller, not followed.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	var observer proxy.Observer
	if opts.Metrics != nil {
		observer = opts.Metrics
	}
	fwd := proxy.NewForwarder(c.mapping, client, r.ring, observer, opts.Forward)

	var handler supervisor.Handler = fwd
	if opts.Metrics != nil {
		handler = supervisor.HandlerFunc(func(ctx context.Context, rc relay.Context) {
			defer opts.Metrics.TrackInFlight(name)()
			fwd.Serve(ctx, rc)
		})
	}

	c.sup = supervisor.New(c.mapping, opts.Opener, handler, supervisor.Config{
		RetryDelay:   opts.RetryDelay,
		DrainTimeout: opts.DrainTimeout,
		OnState: func(s core.ConnectionState) {
			if opts.Metrics != nil {
				opts.Metrics.SetState(name, s)
			}
			r.changed.Notify()
		},
		OnReconnect: func() {
			if opts.Metrics != nil {
				opts.Metrics.Reconnect(name)
			}
		},
	})
}

// Ring returns the shared transaction log.
func (r *Runtime) Ring() *logring.Ring {
	return r.ring
}

// Run starts every supervisor and blocks until ctx is cancelled and all of
// them have drained.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	started := 0
	for _, c := range r.connections {
		if c.sup == nil {
			continue
		}
		c := c
		started++
		logrus.Infof("forwarding %s", c.mapping.Forwarding())
		g.Go(func() error {
			defer c.transport.CloseIdleConnections()
			return c.sup.Run(ctx)
		})
	}
	if started == 0 {
		return ErrNoConnections
	}
	return g.Wait()
}

// Connections reports every configured mapping in configuration order.
func (r *Runtime) Connections() []Connection {
	out := make([]Connection, 0, len(r.connections))
	for _, c := range r.connections {
		conn := Connection{
			Name:       c.mapping.Name,
			Forwarding: c.mapping.Forwarding(),
			State:      core.Closed,
			Phase:      supervisor.Closed.String(),
		}
		if c.err != nil {
			conn.Error = c.err.Error()
		}
		if c.sup != nil {
			conn.State = c.sup.State()
			conn.Phase = c.sup.Phase().String()
			conn.InFlight = c.sup.InFlight()
		}
		out = append(out, conn)
	}
	return out
}

// Subscribe delivers a coalesced notification on c whenever a connection
// changes state. The returned function removes the subscription.
func (r *Runtime) Subscribe(c chan *Runtime) func() {
	e := waiter.NewCoalescingEntry(r, c)
	r.changed.EventRegister(e)
	return func() {
		r.changed.EventUnregister(e)
	}
}
