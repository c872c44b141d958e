// Package supervisor keeps one relay connection open and dispatches the
// requests it delivers.
package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/passage/common"
	"hop.computer/passage/core"
	"hop.computer/passage/pkg/combinators"
	"hop.computer/passage/relay"
)

// Phase is the lifecycle position of a Supervisor.
type Phase int

// Phase values. A supervisor moves Idle -> Opening -> Listening, then to
// Reconnecting (and back to Opening) or to Closing -> Closed.
const (
	Idle Phase = iota
	Opening
	Listening
	Reconnecting
	Closing
	Closed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Opening:
		return "Opening"
	case Listening:
		return "Listening"
	case Reconnecting:
		return "Reconnecting"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// DefaultOfflineGrace is how long the accept loop stays paused on an Offline
// channel before the channel is reopened.
const DefaultOfflineGrace = 30 * time.Second

// errOffline is returned by the accept loop when a channel stayed Offline for
// longer than the grace period.
var errOffline = errors.New("channel offline")

// Handler serves one relayed request. It must close the relayed response.
type Handler interface {
	Serve(ctx context.Context, rc relay.Context)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rc relay.Context)

// Serve calls f.
func (f HandlerFunc) Serve(ctx context.Context, rc relay.Context) {
	f(ctx, rc)
}

// Config tunes a Supervisor. Zero values use the defaults in package common.
type Config struct {
	RetryDelay   time.Duration
	DrainTimeout time.Duration
	OfflineGrace time.Duration

	// OnState is called for every connectivity change, including the final
	// Closed.
	OnState func(core.ConnectionState)

	// OnReconnect is called every time the supervisor gives up on a channel
	// or fails to open one.
	OnReconnect func()
}

// Supervisor runs the accept loop for a single connection mapping.
type Supervisor struct {
	mapping *core.ConnectionMapping
	opener  relay.Opener
	handler Handler
	cfg     Config

	m sync.Mutex
	// +checklocks:m
	phase Phase
	// +checklocks:m
	state core.ConnectionState
	// +checklocks:m
	resume chan struct{}

	handlers sync.WaitGroup
	inflight atomic.Int64
}

// New returns an idle Supervisor.
func New(m *core.ConnectionMapping, opener relay.Opener, handler Handler, cfg Config) *Supervisor {
	cfg.RetryDelay = combinators.Or(cfg.RetryDelay, common.DefaultRetryDelay)
	cfg.DrainTimeout = combinators.Or(cfg.DrainTimeout, common.DefaultDrainTimeout)
	cfg.OfflineGrace = combinators.Or(cfg.OfflineGrace, DefaultOfflineGrace)
	resume := make(chan struct{})
	close(resume)
	return &Supervisor{
		mapping: m,
		opener:  opener,
		handler: handler,
		cfg:     cfg,
		state:   core.Connecting,
		resume:  resume,
	}
}

// Name is the connection name of the supervised mapping.
func (s *Supervisor) Name() string {
	return s.mapping.Name
}

// Mapping returns the supervised mapping.
func (s *Supervisor) Mapping() *core.ConnectionMapping {
	return s.mapping
}

// Phase returns the current lifecycle phase.
func (s *Supervisor) Phase() Phase {
	s.m.Lock()
	defer s.m.Unlock()
	return s.phase
}

// State returns the last reported connectivity state.
func (s *Supervisor) State() core.ConnectionState {
	s.m.Lock()
	defer s.m.Unlock()
	return s.state
}

// InFlight returns the number of requests currently being handled.
func (s *Supervisor) InFlight() int64 {
	return s.inflight.Load()
}

func (s *Supervisor) setPhase(p Phase) {
	s.m.Lock()
	s.phase = p
	s.m.Unlock()
	logrus.Debugf("supervisor %s: %s", s.mapping.Name, p)
}

// onState is handed to the relay transport. While the state is Offline the
// accept loop is paused.
func (s *Supervisor) onState(state core.ConnectionState) {
	s.m.Lock()
	s.state = state
	select {
	case <-s.resume:
		if state == core.Offline {
			s.resume = make(chan struct{})
		}
	default:
		if state != core.Offline {
			close(s.resume)
		}
	}
	s.m.Unlock()

	logrus.Infof("supervisor %s: connection %s", s.mapping.Name, state)
	if s.cfg.OnState != nil {
		s.cfg.OnState(state)
	}
}

func (s *Supervisor) resumed() <-chan struct{} {
	s.m.Lock()
	defer s.m.Unlock()
	return s.resume
}

// Run opens the relay channel and serves requests until ctx is cancelled,
// reopening the channel whenever it fails. On cancellation it stops
// accepting, waits up to DrainTimeout for in-flight requests, cancels the
// ones still running, and closes the channel. Run returns nil after a clean
// shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	// Handlers outlive ctx until the drain deadline.
	handlerCtx, cancelHandlers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHandlers()

	for {
		ch, err := s.open(ctx)
		if err != nil {
			s.shutdown(nil, cancelHandlers)
			return nil
		}
		s.setPhase(Listening)
		err = s.listen(ctx, handlerCtx, ch)
		if ctx.Err() != nil {
			s.shutdown(ch, cancelHandlers)
			return nil
		}

		s.setPhase(Reconnecting)
		logrus.Warnf("supervisor %s: channel lost: %s; reconnecting in %s", s.mapping.Name, err, s.cfg.RetryDelay)
		if s.cfg.OnReconnect != nil {
			s.cfg.OnReconnect()
		}
		if cerr := ch.Close(); cerr != nil {
			logrus.Debugf("supervisor %s: closing channel: %s", s.mapping.Name, cerr)
		}
		if !sleep(ctx, s.cfg.RetryDelay) {
			s.shutdown(nil, cancelHandlers)
			return nil
		}
	}
}

// open retries until the channel opens or ctx is done.
func (s *Supervisor) open(ctx context.Context) (relay.Channel, error) {
	for {
		s.setPhase(Opening)
		ch, err := s.opener.Open(ctx, s.mapping, s.onState)
		if err == nil {
			return ch, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ce *core.ConnectError
		if !errors.As(err, &ce) {
			err = &core.ConnectError{Connection: s.mapping.Name, Err: err}
		}
		logrus.Errorf("supervisor %s: %s; retrying in %s", s.mapping.Name, err, s.cfg.RetryDelay)
		if s.cfg.OnReconnect != nil {
			s.cfg.OnReconnect()
		}
		if !sleep(ctx, s.cfg.RetryDelay) {
			return nil, ctx.Err()
		}
	}
}

// listen accepts until the channel fails or ctx is done. Each request gets its
// own goroutine; the loop never waits for one.
func (s *Supervisor) listen(ctx, handlerCtx context.Context, ch relay.Channel) error {
	for {
		if err := s.waitOnline(ctx); err != nil {
			return err
		}
		rc, err := ch.Accept(ctx)
		if errors.Is(err, relay.ErrClosed) {
			return err
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logrus.Errorf("supervisor %s: accept error: %s", s.mapping.Name, err)
			return err
		}
		s.handlers.Add(1)
		s.inflight.Add(1)
		go s.serve(handlerCtx, rc)
	}
}

func (s *Supervisor) serve(ctx context.Context, rc relay.Context) {
	defer s.handlers.Done()
	defer s.inflight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("supervisor %s: handler panic: %v", s.mapping.Name, r)
		}
	}()
	s.handler.Serve(ctx, rc)
}

func (s *Supervisor) waitOnline(ctx context.Context) error {
	resume := s.resumed()
	select {
	case <-resume:
		return nil
	default:
	}
	logrus.Infof("supervisor %s: paused while offline", s.mapping.Name)
	timer := time.NewTimer(s.cfg.OfflineGrace)
	defer timer.Stop()
	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errOffline
	}
}

func (s *Supervisor) shutdown(ch relay.Channel, cancelHandlers context.CancelFunc) {
	s.setPhase(Closing)
	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		logrus.Warnf("supervisor %s: %d requests still running after %s; cancelling", s.mapping.Name, s.inflight.Load(), s.cfg.DrainTimeout)
		cancelHandlers()
		s.closeChannel(ch)
		ch = nil
		<-done
	}
	s.closeChannel(ch)
	s.setPhase(Closed)
	s.onState(core.Closed)
}

func (s *Supervisor) closeChannel(ch relay.Channel) {
	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		logrus.Debugf("supervisor %s: closing channel: %s", s.mapping.Name, err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
