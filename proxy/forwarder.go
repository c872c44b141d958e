// Package proxy forwards relayed requests to a local HTTP target and relays
// the responses back.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"hop.computer/passage/common"
	"hop.computer/passage/core"
	"hop.computer/passage/logring"
	"hop.computer/passage/pkg/glob"
	"hop.computer/passage/pkg/thunks"
	"hop.computer/passage/relay"
)

// Recorder stores transaction records. *logring.Ring implements it.
type Recorder interface {
	Record(logring.Record) logring.Record
}

// Observer is told about every completed request.
type Observer interface {
	ObserveRequest(connection string, code int, written int64, d time.Duration)
}

// Options change the behavior of a Forwarder.
type Options struct {
	ForceHTMLContentType bool

	// Verbose logs request and response body previews.
	Verbose bool

	// ExcludePaths are glob patterns matched against the inbound path.
	// Matching requests are forwarded but not recorded.
	ExcludePaths []string
}

// Forwarder runs the per-request pipeline for one connection mapping:
// translate, send to the local target, relay the response, record.
type Forwarder struct {
	mapping  *core.ConnectionMapping
	client   *http.Client
	recorder Recorder
	observer Observer
	opts     Options
}

// NewForwarder returns a Forwarder for m. The observer may be nil.
func NewForwarder(m *core.ConnectionMapping, client *http.Client, recorder Recorder, observer Observer, opts Options) *Forwarder {
	return &Forwarder{
		mapping:  m,
		client:   client,
		recorder: recorder,
		observer: observer,
		opts:     opts,
	}
}

// guardedResponse closes the underlying response at most once and remembers
// whether anything was written.
type guardedResponse struct {
	relay.Response

	committed bool
	once      sync.Once
	closeErr  error
}

func (g *guardedResponse) Write(p []byte) (int, error) {
	g.committed = true
	return g.Response.Write(p)
}

func (g *guardedResponse) Close() error {
	g.once.Do(func() {
		g.committed = true
		g.closeErr = g.Response.Close()
	})
	return g.closeErr
}

type teeReadCloser struct {
	io.Reader
	io.Closer
}

// Serve handles one relayed request. It never panics and always closes the
// relayed response exactly once.
func (f *Forwarder) Serve(ctx context.Context, rc relay.Context) {
	in := rc.Request()
	id := rc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	resp := &guardedResponse{Response: rc.Response()}
	rec := logring.Record{
		ID:         id,
		Connection: f.mapping.Name,
		Started:    thunks.TimeNow(),
	}
	if in != nil {
		rec.Method = in.Method
		rec.Path = in.PathAndQuery()
	}
	entry := logrus.WithFields(logrus.Fields{
		"connection": f.mapping.Name,
		"request_id": id,
		"method":     rec.Method,
		"path":       rec.Path,
	})

	defer func() {
		if err := resp.Close(); err != nil {
			entry.Debugf("closing relayed response: %s", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			f.fail(entry, resp, rec, errors.Errorf("panic: %v", r))
		}
	}()

	f.record(rec)
	f.forward(ctx, entry, in, resp, rec)
}

func (f *Forwarder) forward(ctx context.Context, entry *logrus.Entry, in *core.InboundRequest, resp *guardedResponse, rec logring.Record) {
	var reqPreview *Preview
	if f.opts.Verbose && in != nil && in.Body != nil {
		reqPreview = NewPreview(common.CaptureLength)
		in.Body = teeReadCloser{Reader: io.TeeReader(in.Body, reqPreview), Closer: in.Body}
	}

	out, err := Translate(ctx, in, f.mapping)
	if err != nil {
		f.fail(entry, resp, rec, err)
		return
	}
	entry.Debugf("forwarding to %s", out.URL)
	if f.opts.Verbose {
		entry.Infof("request headers:\n%s", FormatHeader(out.Header))
	}

	upstream, err := f.client.Do(out)
	if reqPreview != nil && reqPreview.Total() > 0 {
		entry.Infof("request body:\n%s", FormatBody(in.Header.Get("Content-Type"), reqPreview.Bytes()))
	}
	if err != nil {
		f.fail(entry, resp, rec, err)
		return
	}
	defer upstream.Body.Close()

	capture := NewPreview(common.CaptureLength)
	n, err := Relay(upstream, resp, RelayOptions{
		ForceHTMLContentType: f.opts.ForceHTMLContentType,
		Capture:              capture,
	})
	rec.StatusCode = upstream.StatusCode
	rec.StatusText = Reason(upstream)
	rec.ContentLength = n
	rec.Data = capture.String()
	rec.Truncated = capture.Truncated()
	rec.Header = resp.Header().Clone()
	if err == nil {
		err = resp.Close()
	}
	if err != nil {
		entry.Errorf("relaying response: %s", err)
		if errors.Is(err, core.ErrTransportUnavailable) {
			rec.StatusCode, rec.StatusText = core.StatusForError(err)
		}
	}
	if f.opts.Verbose {
		entry.Infof("response headers:\n%s", FormatHeader(rec.Header))
	}
	if f.opts.Verbose && capture.Total() > 0 {
		entry.Infof("response body:\n%s", FormatBody(upstream.Header.Get("Content-Type"), capture.Bytes()))
	}
	f.finish(entry, rec)
}

// fail reports err as a synthetic status. The status is only sent if nothing
// has been written to the relay yet.
func (f *Forwarder) fail(entry *logrus.Entry, resp *guardedResponse, rec logring.Record, err error) {
	code, text := core.StatusForError(err)
	entry.WithField("status", code).Errorf("request failed: %s", err)
	if !resp.committed {
		body := fmt.Sprintf("%d %s", code, text)
		resp.SetStatus(code, text)
		resp.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, werr := resp.Write([]byte(body)); werr == nil {
			rec.ContentLength = int64(len(body))
			rec.Data = body
		}
		rec.Header = resp.Header().Clone()
	}
	rec.StatusCode = code
	rec.StatusText = text
	f.finish(entry, rec)
}

func (f *Forwarder) finish(entry *logrus.Entry, rec logring.Record) {
	rec.Duration = thunks.TimeNow().Sub(rec.Started)
	f.record(rec)
	if f.observer != nil {
		f.observer.ObserveRequest(rec.Connection, rec.StatusCode, rec.ContentLength, rec.Duration)
	}
	entry.WithField("status", rec.StatusCode).Infof("%s %s %d %s %d bytes in %s",
		rec.Method, rec.Path, rec.StatusCode, rec.StatusText, rec.ContentLength, rec.Duration)
}

func (f *Forwarder) record(rec logring.Record) {
	if f.recorder == nil {
		return
	}
	path := rec.Path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if glob.Any(f.opts.ExcludePaths, path, glob.IgnoreCase) {
		return
	}
	f.recorder.Record(rec)
}

