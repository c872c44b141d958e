package rendezvous

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/passage/relay/wsrelay"
)

const (
	writeWait   = 10 * time.Second
	pendingSize = 64
)

var errListenerGone = errors.New("listener disconnected")

// listener is one registered websocket for a connection name.
type listener struct {
	name string
	conn *websocket.Conn

	writeMu sync.Mutex

	m       sync.Mutex
	pending map[string]*pending

	done     chan struct{}
	doneOnce sync.Once
}

// pending collects the response frames for one public request.
type pending struct {
	frames chan *wsrelay.Frame
	done   chan struct{}
}

func newListener(name string, conn *websocket.Conn) *listener {
	return &listener{
		name:    name,
		conn:    conn,
		pending: make(map[string]*pending),
		done:    make(chan struct{}),
	}
}

func (l *listener) send(f *wsrelay.Frame) error {
	select {
	case <-l.done:
		return errListenerGone
	default:
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteJSON(f)
}

func (l *listener) register(id string) *pending {
	p := &pending{
		frames: make(chan *wsrelay.Frame, pendingSize),
		done:   make(chan struct{}),
	}
	l.m.Lock()
	l.pending[id] = p
	l.m.Unlock()
	return p
}

func (l *listener) unregister(id string) {
	l.m.Lock()
	p, ok := l.pending[id]
	delete(l.pending, id)
	l.m.Unlock()
	if ok {
		close(p.done)
	}
}

func (l *listener) close() {
	l.doneOnce.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

// readLoop dispatches response frames until the socket fails.
func (l *listener) readLoop() {
	defer l.close()
	for {
		var f wsrelay.Frame
		if err := l.conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				logrus.WithField("connection", l.name).Warnf("rendezvous: listener read failed: %s", err)
			}
			return
		}
		switch f.Type {
		case wsrelay.FrameHead, wsrelay.FrameData, wsrelay.FrameEnd:
		default:
			logrus.WithField("connection", l.name).Debugf("rendezvous: ignoring %q frame", f.Type)
			continue
		}
		l.m.Lock()
		p, ok := l.pending[f.ID]
		l.m.Unlock()
		if !ok {
			logrus.WithField("connection", l.name).Debugf("rendezvous: response for unknown request %s", f.ID)
			continue
		}
		select {
		case p.frames <- &f:
		case <-p.done:
		case <-l.done:
			return
		}
	}
}
