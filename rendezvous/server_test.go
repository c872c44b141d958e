package rendezvous

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"

	"hop.computer/passage/common"
	"hop.computer/passage/pkg/thunks"
	"hop.computer/passage/relay/wsrelay"
)

func startServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	s := New(opts)
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return s, srv
}

func dialListener(t *testing.T, srv *httptest.Server, register *wsrelay.Frame) (*websocket.Conn, *wsrelay.Frame) {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + common.ListenPath
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	assert.NilError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	assert.NilError(t, conn.WriteJSON(register))
	var reply wsrelay.Frame
	assert.NilError(t, conn.ReadJSON(&reply))
	return conn, &reply
}

func TestNoListener(t *testing.T) {
	_, srv := startServer(t, Options{})
	resp, err := http.Get(srv.URL + "/nobody/here")
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRegisterAndRelay(t *testing.T) {
	s, srv := startServer(t, Options{})
	conn, reply := dialListener(t, srv, &wsrelay.Frame{Type: wsrelay.FrameRegister, Connection: "svc"})
	assert.Equal(t, wsrelay.FrameAccepted, reply.Type)
	assert.DeepEqual(t, []string{"svc"}, s.Listeners())

	go func() {
		var f wsrelay.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		conn.WriteJSON(&wsrelay.Frame{
			Type:   wsrelay.FrameHead,
			ID:     f.ID,
			Status: http.StatusAccepted,
			Header: http.Header{"X-Echo-Url": {f.URL}, "X-Echo-Method": {f.Method}},
		})
		conn.WriteJSON(&wsrelay.Frame{Type: wsrelay.FrameData, ID: f.ID, Body: []byte("got ")})
		conn.WriteJSON(&wsrelay.Frame{Type: wsrelay.FrameData, ID: f.ID, Body: f.Body})
		conn.WriteJSON(&wsrelay.Frame{Type: wsrelay.FrameEnd, ID: f.ID})
	}()

	resp, err := http.Post(srv.URL+"/svc/a/b?c=1", "text/plain", strings.NewReader("payload"))
	assert.NilError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	assert.NilError(t, err)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "/svc/a/b?c=1", resp.Header.Get("X-Echo-Url"))
	assert.Equal(t, http.MethodPost, resp.Header.Get("X-Echo-Method"))
	assert.Equal(t, "got payload", string(body))
}

func TestPolicyKey(t *testing.T) {
	_, srv := startServer(t, Options{Keys: map[string]string{"svc": "secret"}})

	_, reply := dialListener(t, srv, &wsrelay.Frame{Type: wsrelay.FrameRegister, Connection: "svc", PolicyKey: "wrong"})
	assert.Equal(t, wsrelay.FrameRejected, reply.Type)
	assert.Check(t, is.Contains(reply.Error, "policy key"))

	_, reply = dialListener(t, srv, &wsrelay.Frame{Type: wsrelay.FrameRegister, Connection: "svc", PolicyKey: "secret"})
	assert.Equal(t, wsrelay.FrameAccepted, reply.Type)

	_, reply = dialListener(t, srv, &wsrelay.Frame{Type: wsrelay.FrameRegister})
	assert.Equal(t, wsrelay.FrameRejected, reply.Type)
}

func TestListenerTimeout(t *testing.T) {
	_, srv := startServer(t, Options{RequestTimeout: 50 * time.Millisecond})
	dialListener(t, srv, &wsrelay.Frame{Type: wsrelay.FrameRegister, Connection: "svc"})

	resp, err := http.Get(srv.URL + "/svc/slow")
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
}

func TestListenerGone(t *testing.T) {
	_, srv := startServer(t, Options{})
	conn, _ := dialListener(t, srv, &wsrelay.Frame{Type: wsrelay.FrameRegister, Connection: "svc"})

	go func() {
		var f wsrelay.Frame
		conn.ReadJSON(&f)
		conn.Close()
	}()

	resp, err := http.Get(srv.URL + "/svc/")
	assert.NilError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(1992, 12, 31, 1, 2, 3, 4, time.UTC)
	thunks.TimeNow = func() time.Time { return now }
	t.Cleanup(func() { thunks.TimeNow = time.Now })

	l := newIPRateLimiter(2, time.Minute)
	assert.Check(t, l.Allow("10.0.0.1"))
	assert.Check(t, l.Allow("10.0.0.1"))
	assert.Check(t, !l.Allow("10.0.0.1"))
	assert.Check(t, l.Allow("10.0.0.2"))

	now = now.Add(time.Minute)
	assert.Check(t, l.Allow("10.0.0.1"))
}

func TestRateLimiterForgetsIdleAddresses(t *testing.T) {
	now := time.Date(1992, 12, 31, 1, 2, 3, 4, time.UTC)
	thunks.TimeNow = func() time.Time { return now }
	t.Cleanup(func() { thunks.TimeNow = time.Now })

	l := newIPRateLimiter(1, time.Minute)
	for i := 0; i < 100; i++ {
		assert.Check(t, l.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256)))
	}
	assert.Equal(t, 100, l.tracked())

	now = now.Add(30 * time.Second)
	assert.Check(t, !l.Allow("10.0.0.0"))
	assert.Equal(t, 100, l.tracked())

	now = now.Add(time.Minute)
	assert.Check(t, l.Allow("10.9.9.9"))
	assert.Equal(t, 1, l.tracked())
}

func TestRateLimitMiddleware(t *testing.T) {
	_, srv := startServer(t, Options{RateLimit: 1})

	resp, err := http.Get(srv.URL + "/svc/")
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/svc/")
	assert.NilError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
