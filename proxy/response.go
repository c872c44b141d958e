package proxy

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"hop.computer/passage/common"
	"hop.computer/passage/core"
	"hop.computer/passage/headers"
	"hop.computer/passage/relay"
)

// LegacyContentType is forced on every relayed response when
// RelayOptions.ForceHTMLContentType is set.
const LegacyContentType = "text/html; charset=UTF-8"

// RelayOptions change how a response is relayed.
type RelayOptions struct {
	ForceHTMLContentType bool

	// Capture, if non-nil, receives every body byte successfully written to
	// the relay.
	Capture io.Writer
}

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, common.CopyBufferSize)
		return &b
	},
}

// Reason returns the reason phrase of resp, falling back to the standard text
// for its status code.
func Reason(resp *http.Response) string {
	reason := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return http.StatusText(resp.StatusCode)
	}
	return reason
}

// Relay writes resp to dst: status, filtered headers, then the body in
// bounded chunks. It returns the number of body bytes written. A failed write
// to dst returns a *core.RelayWriteError; a failed read from resp.Body is
// returned wrapped. Neither is retried. Relay does not close dst.
func Relay(resp *http.Response, dst relay.Response, opts RelayOptions) (int64, error) {
	dst.SetStatus(resp.StatusCode, Reason(resp))
	h := dst.Header()
	for k, vs := range headers.FilterResponse(resp.Header) {
		h[k] = vs
	}
	if opts.ForceHTMLContentType {
		h.Set("Content-Type", LegacyContentType)
	}
	if resp.Body == nil {
		return 0, nil
	}

	bp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bp)
	buf := *bp

	var written int64
	for {
		nr, rerr := resp.Body.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw < 0 || nw > nr {
				nw = 0
				if werr == nil {
					werr = errors.New("invalid write result")
				}
			}
			if opts.Capture != nil && nw > 0 {
				opts.Capture.Write(buf[:nw])
			}
			written += int64(nw)
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, &core.RelayWriteError{Written: written, Err: werr}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, errors.Wrap(rerr, "reading upstream body")
		}
	}
}
