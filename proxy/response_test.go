package proxy

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/assert"

	"hop.computer/passage/core"
	"hop.computer/passage/relay/relaytest"
)

func upstreamResponse(code int, status string, header http.Header, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestRelay(t *testing.T) {
	resp := upstreamResponse(http.StatusCreated, "201 Created Fresh", http.Header{
		"Content-Type":      {"application/json"},
		"Transfer-Encoding": {"chunked"},
		"Keep-Alive":        {"timeout=5"},
		"Set-Cookie":        {"a=1", "b=2"},
	}, `{"id":1}`)
	dst := relaytest.NewResponse()
	capture := NewPreview(4)

	n, err := Relay(resp, dst, RelayOptions{Capture: capture})
	assert.NilError(t, err)
	assert.NilError(t, dst.Close())
	assert.Equal(t, int64(8), n)

	code, text := dst.Status()
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Created Fresh", text)
	assert.DeepEqual(t, http.Header{
		"Content-Type": {"application/json"},
		"Set-Cookie":   {"a=1", "b=2"},
	}, dst.SentHeader())
	assert.Equal(t, `{"id":1}`, string(dst.Body()))
	assert.Equal(t, `{"id`, capture.String())
	assert.Equal(t, true, capture.Truncated())
	assert.Equal(t, int64(8), capture.Total())
}

func TestRelayLegacyContentType(t *testing.T) {
	resp := upstreamResponse(http.StatusOK, "200 OK", http.Header{"Content-Type": {"application/json"}}, "[]")
	dst := relaytest.NewResponse()
	_, err := Relay(resp, dst, RelayOptions{ForceHTMLContentType: true})
	assert.NilError(t, err)
	assert.Equal(t, LegacyContentType, dst.Header().Get("Content-Type"))
}

func TestRelayLargeBody(t *testing.T) {
	body := strings.Repeat("0123456789", 10000)
	resp := upstreamResponse(http.StatusOK, "200 OK", http.Header{}, body)
	dst := relaytest.NewResponse()
	n, err := Relay(resp, dst, RelayOptions{})
	assert.NilError(t, err)
	assert.Equal(t, int64(len(body)), n)
	assert.Equal(t, body, string(dst.Body()))
}

func TestRelayWriteError(t *testing.T) {
	resp := upstreamResponse(http.StatusOK, "200 OK", http.Header{}, "payload")
	dst := relaytest.NewResponse()
	dst.FailWrites(core.ErrTransportUnavailable)

	n, err := Relay(resp, dst, RelayOptions{})
	assert.Equal(t, int64(0), n)
	var rwe *core.RelayWriteError
	assert.Check(t, errors.As(err, &rwe))
	assert.Check(t, errors.Is(err, core.ErrTransportUnavailable))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "Not Found", Reason(&http.Response{StatusCode: 404, Status: "404 Not Found"}))
	assert.Equal(t, "Not Found", Reason(&http.Response{StatusCode: 404}))
	assert.Equal(t, "Gone Fishing", Reason(&http.Response{StatusCode: 410, Status: "410 Gone Fishing"}))
}

func TestFormatBody(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", FormatBody("application/json", []byte(`{"a":1}`)))
	assert.Equal(t, "plain", FormatBody("text/plain", []byte("plain")))
	// Truncated JSON is shown as is.
	assert.Equal(t, `{"a":`, FormatBody("application/json", []byte(`{"a":`)))
}

func TestFormatHeader(t *testing.T) {
	h := http.Header{
		"X-B":    {"2"},
		"Accept": {"text/html", "application/json"},
	}
	assert.Equal(t, "Accept: text/html,application/json\nX-B: 2\n", FormatHeader(h))
	assert.Equal(t, "", FormatHeader(nil))
}
