// Package rendezvous is a development stand-in for the cloud relay. Listeners
// register over a websocket and public HTTP requests to /{connection}/... are
// delivered to them.
package rendezvous

import (
	"crypto/subtle"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"hop.computer/passage/common"
	"hop.computer/passage/pkg/combinators"
	"hop.computer/passage/pkg/thunks"
	"hop.computer/passage/relay/wsrelay"
)

// Defaults for Options.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxBodyBytes   = 16 << 20
)

// ErrNoListener is returned by SetState for an unknown connection.
var ErrNoListener = errors.New("no listener registered")

// Options configure a Server.
type Options struct {
	// Keys maps connection names to the policy key a listener must present.
	// Connections without an entry accept any key.
	Keys           map[string]string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// RateLimit is requests per minute per client address. Zero disables it.
	RateLimit      int
	AllowedOrigins []string
}

// Server routes public requests to registered listeners.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	handler  http.Handler

	m         sync.Mutex
	listeners map[string]*listener
}

// New returns a Server with its routes installed.
func New(opts Options) *Server {
	opts.RequestTimeout = combinators.Or(opts.RequestTimeout, DefaultRequestTimeout)
	opts.MaxBodyBytes = combinators.Or(opts.MaxBodyBytes, DefaultMaxBodyBytes)
	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		listeners: make(map[string]*listener),
	}

	router := mux.NewRouter()
	router.HandleFunc(common.ListenPath, s.handleListen)
	relayed := rateLimit(opts.RateLimit, http.HandlerFunc(s.handleRelay))
	router.Handle("/{connection}", relayed)
	router.Handle("/{connection}/{path:.*}", relayed)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	}).Handler(router)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Listeners returns the registered connection names in order.
func (s *Server) Listeners() []string {
	s.m.Lock()
	defer s.m.Unlock()
	names := make([]string, 0, len(s.listeners))
	for name := range s.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetState tells the listener for name that the relay side went offline or
// came back.
func (s *Server) SetState(name string, online bool) error {
	l := s.lookup(name)
	if l == nil {
		return errors.Wrap(ErrNoListener, name)
	}
	state := wsrelay.StateOffline
	if online {
		state = wsrelay.StateOnline
	}
	return l.send(&wsrelay.Frame{Type: wsrelay.FrameStatus, State: state})
}

// Disconnect drops the listener for name, if any.
func (s *Server) Disconnect(name string) {
	if l := s.lookup(name); l != nil {
		l.close()
	}
}

// Close drops every listener.
func (s *Server) Close() {
	s.m.Lock()
	ls := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.m.Unlock()
	for _, l := range ls {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down")
		l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		l.close()
	}
}

func (s *Server) lookup(name string) *listener {
	s.m.Lock()
	defer s.m.Unlock()
	return s.listeners[name]
}

func (s *Server) authorized(f *wsrelay.Frame) bool {
	want, ok := s.opts.Keys[f.Connection]
	if !ok {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(f.PolicyKey)) == 1
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("rendezvous: websocket upgrade failed: %s", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var f wsrelay.Frame
	if err := conn.ReadJSON(&f); err != nil {
		logrus.Warnf("rendezvous: registration from %s failed: %s", r.RemoteAddr, err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	reject := func(reason string) {
		logrus.WithField("connection", f.Connection).Warnf("rendezvous: rejected listener from %s: %s", r.RemoteAddr, reason)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(&wsrelay.Frame{Type: wsrelay.FrameRejected, Error: reason})
		conn.Close()
	}
	switch {
	case f.Type != wsrelay.FrameRegister:
		reject("expected register frame")
		return
	case f.Connection == "":
		reject("missing connection name")
		return
	case !s.authorized(&f):
		reject("invalid policy key")
		return
	}

	l := newListener(f.Connection, conn)
	s.m.Lock()
	old := s.listeners[l.name]
	s.listeners[l.name] = l
	s.m.Unlock()
	if old != nil {
		old.close()
	}

	if err := l.send(&wsrelay.Frame{Type: wsrelay.FrameAccepted}); err != nil {
		l.close()
	} else {
		logrus.WithField("connection", l.name).Infof("rendezvous: listener registered from %s", r.RemoteAddr)
		l.readLoop()
	}

	s.m.Lock()
	if s.listeners[l.name] == l {
		delete(s.listeners, l.name)
	}
	s.m.Unlock()
	logrus.WithField("connection", l.name).Infof("rendezvous: listener disconnected")
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	start := thunks.TimeNow()
	name := mux.Vars(r)["connection"]
	log := logrus.WithFields(logrus.Fields{
		"connection": name,
		"method":     r.Method,
		"path":       r.URL.Path,
	})

	l := s.lookup(name)
	if l == nil {
		http.Error(w, "no listener for "+name, http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	id := uuid.NewString()
	p := l.register(id)
	defer l.unregister(id)

	err = l.send(&wsrelay.Frame{
		Type:       wsrelay.FrameRequest,
		ID:         id,
		Method:     r.Method,
		URL:        r.URL.RequestURI(),
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
		Body:       body,
	})
	if err != nil {
		log.Warnf("rendezvous: send request: %s", err)
		http.Error(w, "listener unavailable", http.StatusBadGateway)
		return
	}

	code, err := s.stream(w, r, l, p)
	switch {
	case errors.Is(err, errTimeout) && code == 0:
		http.Error(w, "listener did not respond", http.StatusGatewayTimeout)
		code = http.StatusGatewayTimeout
	case errors.Is(err, errListenerGone) && code == 0:
		http.Error(w, "listener disconnected", http.StatusBadGateway)
		code = http.StatusBadGateway
	}
	entry := log.WithFields(logrus.Fields{"request_id": id, "status": code})
	if err != nil {
		entry.Warnf("rendezvous: %s after %s", err, thunks.TimeNow().Sub(start))
		return
	}
	entry.Infof("rendezvous: relayed in %s", thunks.TimeNow().Sub(start))
}

var errTimeout = errors.New("timed out waiting for listener")

// stream copies response frames to w until the end frame. It returns the
// status written, or zero if no head frame arrived.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, l *listener, p *pending) (int, error) {
	timer := time.NewTimer(s.opts.RequestTimeout)
	defer timer.Stop()
	flusher, _ := w.(http.Flusher)

	code := 0
	for {
		select {
		case f := <-p.frames:
			switch f.Type {
			case wsrelay.FrameHead:
				if code != 0 {
					continue
				}
				for k, vs := range f.Header {
					for _, v := range vs {
						w.Header().Add(k, v)
					}
				}
				code = f.Status
				w.WriteHeader(code)
			case wsrelay.FrameData:
				if code == 0 {
					code = http.StatusOK
				}
				if _, err := w.Write(f.Body); err != nil {
					return code, errors.Wrap(err, "write public response")
				}
				if flusher != nil {
					flusher.Flush()
				}
			case wsrelay.FrameEnd:
				if code == 0 {
					code = http.StatusOK
					w.WriteHeader(code)
				}
				return code, nil
			}
			timer.Reset(s.opts.RequestTimeout)
		case <-timer.C:
			return code, errTimeout
		case <-l.done:
			return code, errListenerGone
		case <-r.Context().Done():
			return code, r.Context().Err()
		}
	}
}
